package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	actmodels "gigsafe/internal/activity/models"
	regmodels "gigsafe/internal/regional/models"
	"gigsafe/internal/scoring/models"
)

type schemeCase struct {
	scheme    Scheme
	highScore float64
}

var schemes = []schemeCase{
	{scheme: Weighted4(), highScore: 74.79},
	{scheme: Weighted5(), highScore: 64.46},
}

func newEngine(t *testing.T, s Scheme) *Engine {
	t.Helper()
	e, err := New(s, Aggregation{Policy: PolicyCumulativeMean})
	require.NoError(t, err)
	return e
}

// highRiskInput is a night trip at 95 km/h with a heavy route deviation in a
// region with index 76.8, flagged by the oracle.
func highRiskInput() Input {
	return Input{
		Activity: actmodels.Activity{
			ID:             "TRP-HIGH",
			WorkerID:       "DRV00009",
			Timestamp:      time.Date(2025, 3, 12, 23, 30, 0, 0, time.UTC),
			HourOfDay:      23,
			MaxSpeedKmh:    95,
			AvgSpeedKmh:    48,
			RouteDeviation: 35,
		},
		Verdict: actmodels.Verdict{ActivityID: "TRP-HIGH", IsAnomaly: true, Score: -0.45, Cluster: 2},
		Regional: regmodels.Lookup{
			Region: "rajasthan",
			Index:  76.8,
			AsOf:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestHighRiskActivity(t *testing.T) {
	for _, tc := range schemes {
		t.Run(tc.scheme.Name, func(t *testing.T) {
			e := newEngine(t, tc.scheme)
			score := e.ComputeActivityScore(highRiskInput())

			assert.Equal(t, models.StatusScored, score.Status)
			assert.InDelta(t, tc.highScore, score.Score, 1e-9)
			assert.Equal(t, models.TierHigh, score.Tier)
			assert.Equal(t, tc.scheme.Name, score.Scheme)
			assert.Len(t, score.Breakdown, len(tc.scheme.Weights))

			sum := 0.0
			for _, c := range score.Breakdown {
				assert.InDelta(t, c.Value*c.Weight, c.Contribution, 1e-12)
				assert.GreaterOrEqual(t, c.Value, 0.0)
				assert.LessOrEqual(t, c.Value, 100.0)
				sum += c.Contribution
			}
			assert.InDelta(t, score.Score, sum, 0.005)
		})
	}
}

func TestDeterministic(t *testing.T) {
	for _, tc := range schemes {
		t.Run(tc.scheme.Name, func(t *testing.T) {
			e := newEngine(t, tc.scheme)
			in := highRiskInput()
			in.Prior = models.Stats{Count: 7, AnomalousCount: 3}
			first := e.ComputeActivityScore(in)
			for range 100 {
				assert.Equal(t, first, e.ComputeActivityScore(in))
			}
		})
	}
}

func TestCalmActivityIsLow(t *testing.T) {
	for _, tc := range schemes {
		t.Run(tc.scheme.Name, func(t *testing.T) {
			e := newEngine(t, tc.scheme)
			score := e.ComputeActivityScore(Input{
				Activity: actmodels.Activity{ID: "TRP-CALM", MaxSpeedKmh: 40, RouteDeviation: 2},
				Verdict:  actmodels.Verdict{Score: 0.12, Cluster: 1},
				Regional: regmodels.Lookup{Index: 20},
			})
			assert.Equal(t, models.TierLow, score.Tier)
			assert.Less(t, score.Score, 30.0)
		})
	}
}

func TestScoreIsClamped(t *testing.T) {
	for _, tc := range schemes {
		t.Run(tc.scheme.Name, func(t *testing.T) {
			e := newEngine(t, tc.scheme)
			score := e.ComputeActivityScore(Input{
				Activity: actmodels.Activity{MaxSpeedKmh: 500, RouteDeviation: 1000},
				Verdict:  actmodels.Verdict{IsAnomaly: true, Score: -9, Cluster: actmodels.OutlierCluster},
				Regional: regmodels.Lookup{Index: 250},
				Prior:    models.Stats{Count: 4, AnomalousCount: 4},
			})
			assert.Equal(t, 100.0, score.Score)
			assert.Equal(t, models.TierHigh, score.Tier)
		})
	}
}

func TestGovernmentContributionCap(t *testing.T) {
	for _, tc := range schemes {
		t.Run(tc.scheme.Name, func(t *testing.T) {
			e := newEngine(t, tc.scheme)
			score := e.ComputeActivityScore(Input{Regional: regmodels.Lookup{Index: 100}})
			for _, c := range score.Breakdown {
				if c.Factor == models.FactorGovernment {
					assert.InDelta(t, tc.scheme.GovernmentCap(), c.Contribution, 1e-9)
				}
			}
			assert.InDelta(t, 20.0, tc.scheme.GovernmentCap(), 1e-9)
		})
	}
}

func TestAnomalyFactor(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 97.0, AnomalyFactor(actmodels.Verdict{IsAnomaly: true, Score: -0.45, Cluster: 0}, p))
	assert.Equal(t, 0.0, AnomalyFactor(actmodels.Verdict{Score: 0.3}, p))
	assert.Equal(t, 50.0, AnomalyFactor(actmodels.Verdict{Score: -1, Cluster: -1}, p))
	assert.Equal(t, 100.0, AnomalyFactor(actmodels.Verdict{IsAnomaly: true, Score: -1, Cluster: -1}, p))

	p5 := Weighted5().Params
	assert.Equal(t, 30.0, AnomalyFactor(actmodels.Verdict{Score: -1, Cluster: -1}, p5), "outliers only count in the cluster factor")
}

func TestRampFactor(t *testing.T) {
	// speed curve with T = 80
	cases := map[float64]float64{
		0:   0,
		60:  0,
		70:  25,
		80:  50,
		100: 75,
		120: 100,
		150: 100,
	}
	for speed, want := range cases {
		assert.InDelta(t, want, RampFactor(speed, 60, 80, 120), 1e-9, "speed %v", speed)
	}
	assert.Equal(t, 87.5, RampFactor(35, 0, 20, 40))
	assert.Equal(t, 25.0, RampFactor(10, 0, 20, 40))
}

func TestHistoricalFactor(t *testing.T) {
	assert.Zero(t, HistoricalFactor(models.Stats{}))
	assert.Equal(t, 25.0, HistoricalFactor(models.Stats{Count: 4, AnomalousCount: 1}))
}

func TestSchemeValidation(t *testing.T) {
	assert.NoError(t, Weighted4().Validate())
	assert.NoError(t, Weighted5().Validate())

	bad := Weighted4()
	bad.Weights[models.FactorSpeed] = 0.31
	assert.Error(t, bad.Validate())

	unknown := Weighted4()
	unknown.Weights["weather"] = 0
	assert.Error(t, unknown.Validate())

	_, err := New(bad, Aggregation{})
	assert.Error(t, err)
}

func TestParseWeights(t *testing.T) {
	s, err := ParseWeights("anomaly=0.5, speed=0.25, government=0.25")
	require.NoError(t, err)
	assert.Equal(t, 0.5, s.Weights[models.FactorAnomaly])

	s, err = ParseWeights("anomaly=0.5,cluster=0.5")
	require.NoError(t, err)
	assert.Zero(t, s.Params.OutlierPoints)

	_, err = ParseWeights("anomaly=0.5,speed=0.4")
	assert.Error(t, err)

	_, err = ParseWeights("anomaly")
	assert.Error(t, err)
}

func TestSchemeByName(t *testing.T) {
	s, err := SchemeByName("WEIGHTED5")
	require.NoError(t, err)
	assert.Equal(t, SchemeWeighted5, s.Name)

	s, err = SchemeByName("")
	require.NoError(t, err)
	assert.Equal(t, SchemeWeighted4, s.Name)

	_, err = SchemeByName("weighted9")
	assert.Error(t, err)
}

func TestAggregateWorkerScore(t *testing.T) {
	stats := models.Stats{
		Count:          4,
		AnomalousCount: 1,
		SumScore:       160,
		MaxScore:       80,
		Recent:         []float64{70, 80},
	}

	cases := []struct {
		agg  Aggregation
		want float64
	}{
		{agg: Aggregation{Policy: PolicyCumulativeMean}, want: 40},
		{agg: Aggregation{Policy: PolicyRollingWindow, Window: 2}, want: 75},
		{agg: Aggregation{Policy: PolicyBlended}, want: 0.6*40 + 0.3*80 + 0.1*25},
	}
	for _, tc := range cases {
		t.Run(string(tc.agg.Policy), func(t *testing.T) {
			e, err := New(Weighted4(), tc.agg)
			require.NoError(t, err)
			score := e.AggregateWorkerScore("DRV00009", stats)
			assert.Equal(t, models.ScopeWorker, score.Scope)
			assert.InDelta(t, tc.want, score.Score, 1e-9)
			assert.Equal(t, models.Classify(score.Score), score.Tier)
			assert.Len(t, score.Breakdown, 3)
		})
	}

	e := newEngine(t, Weighted4())
	empty := e.AggregateWorkerScore("DRV00010", models.Stats{})
	assert.Equal(t, models.StatusUnscored, empty.Status)
	assert.Equal(t, models.ReasonNoActivity, empty.UnscoredReason)
	assert.Empty(t, empty.Tier)
}

func TestParseAggregation(t *testing.T) {
	a, err := ParseAggregation("", 0)
	require.NoError(t, err)
	assert.Equal(t, PolicyCumulativeMean, a.Policy)

	_, err = ParseAggregation("rolling_window", 0)
	assert.Error(t, err)

	_, err = ParseAggregation("median", 5)
	assert.Error(t, err)
}
