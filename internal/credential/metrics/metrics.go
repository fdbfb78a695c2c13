package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for credential issuance and verification.
type Metrics struct {
	CredentialsIssued  prometheus.Counter
	CredentialsRevoked prometheus.Counter
	Verifications      *prometheus.CounterVec
	VerifyLatency      prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		CredentialsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gigsafe_credentials_issued_total",
			Help: "Credentials issued, including reissues",
		}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gigsafe_credentials_revoked_total",
			Help: "Credentials revoked, including revocations during reissue",
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_credential_verifications_total",
			Help: "Credential verification outcomes",
		}, []string{"method", "outcome"}), // method: payload, hash
		VerifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gigsafe_credential_verify_duration_seconds",
			Help:    "Duration of credential verification",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

func (m *Metrics) IncIssued() {
	if m != nil {
		m.CredentialsIssued.Inc()
	}
}

func (m *Metrics) IncRevoked() {
	if m != nil {
		m.CredentialsRevoked.Inc()
	}
}

func (m *Metrics) IncVerification(method, outcome string) {
	if m != nil {
		m.Verifications.WithLabelValues(method, outcome).Inc()
	}
}

func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}
