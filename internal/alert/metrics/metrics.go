package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks alert volume, deduplication and delivery.
type Metrics struct {
	Raised        *prometheus.CounterVec
	Suppressed    *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	PublishErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Raised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_alerts_raised_total",
			Help: "Alerts recorded, by type and severity",
		}, []string{"type", "severity"}),
		Suppressed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_alerts_suppressed_total",
			Help: "Alert candidates dropped by the per-worker cooldown",
		}, []string{"type"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_alert_transitions_total",
			Help: "Alert lifecycle transitions",
		}, []string{"to"}),
		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gigsafe_alert_publish_errors_total",
			Help: "Alerts recorded but not delivered to the alert topic",
		}),
	}
}

func (m *Metrics) IncRaised(alertType, severity string) {
	if m != nil {
		m.Raised.WithLabelValues(alertType, severity).Inc()
	}
}

func (m *Metrics) IncSuppressed(alertType string) {
	if m != nil {
		m.Suppressed.WithLabelValues(alertType).Inc()
	}
}

func (m *Metrics) IncTransition(to string) {
	if m != nil {
		m.Transitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) IncPublishError() {
	if m != nil {
		m.PublishErrors.Inc()
	}
}
