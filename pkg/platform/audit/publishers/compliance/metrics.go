package compliance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics observes audit persistence.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	PersistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_audit_events_emitted_total",
			Help: "Audit events persisted by category",
		}, []string{"category"}),
		PersistFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_audit_persist_failures_total",
			Help: "Audit events that failed to persist by category",
		}, []string{"category"}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gigsafe_audit_persist_duration_seconds",
			Help:    "Duration of synchronous audit writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncEventsEmitted(category string) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncPersistFailures(category string) {
	if m != nil {
		m.PersistFailures.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) ObservePersistDuration(d time.Duration) {
	if m != nil {
		m.PersistDuration.Observe(d.Seconds())
	}
}
