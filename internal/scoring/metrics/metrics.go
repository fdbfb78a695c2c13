package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks activity ingestion and scoring outcomes.
type Metrics struct {
	Ingested       *prometheus.CounterVec
	Tiers          *prometheus.CounterVec
	OracleFailures prometheus.Counter
	IngestLatency  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Ingested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_activities_ingested_total",
			Help: "Activities ingested by scoring status",
		}, []string{"status"}), // Scored, Unscored
		Tiers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_activity_scores_total",
			Help: "Scored activities by tier",
		}, []string{"tier"}),
		OracleFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gigsafe_oracle_failures_total",
			Help: "Classifications that failed or were short-circuited",
		}),
		IngestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gigsafe_activity_ingest_duration_seconds",
			Help:    "Duration of activity ingestion including classification",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncIngested(status string) {
	if m != nil {
		m.Ingested.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncTier(tier string) {
	if m != nil {
		m.Tiers.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) IncOracleFailure() {
	if m != nil {
		m.OracleFailures.Inc()
	}
}

func (m *Metrics) ObserveIngestLatency(d time.Duration) {
	if m != nil {
		m.IngestLatency.Observe(d.Seconds())
	}
}
