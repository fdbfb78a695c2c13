package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks regional context refreshes and lookups.
type Metrics struct {
	Refreshes       *prometheus.CounterVec
	Stale           prometheus.Gauge
	Regions         prometheus.Gauge
	FallbackLookups prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Refreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gigsafe_regional_refresh_total",
			Help: "Regional feed refresh attempts by outcome",
		}, []string{"outcome"}), // success, failure, breaker_open
		Stale: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gigsafe_regional_stale",
			Help: "1 while the regional snapshot is stale",
		}),
		Regions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "gigsafe_regional_regions",
			Help: "Regions in the active snapshot",
		}),
		FallbackLookups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gigsafe_regional_fallback_lookups_total",
			Help: "Lookups for unknown regions answered with the default index",
		}),
	}
}

func (m *Metrics) IncRefresh(outcome string) {
	if m != nil {
		m.Refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SetStale(stale bool) {
	if m == nil {
		return
	}
	if stale {
		m.Stale.Set(1)
		return
	}
	m.Stale.Set(0)
}

func (m *Metrics) SetRegions(n int) {
	if m != nil {
		m.Regions.Set(float64(n))
	}
}

func (m *Metrics) IncFallback() {
	if m != nil {
		m.FallbackLookups.Inc()
	}
}
