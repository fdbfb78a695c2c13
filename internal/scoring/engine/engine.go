// Package engine computes deterministic risk scores. Every function here is
// pure: the same inputs always produce the same score and breakdown.
package engine

import (
	"fmt"
	"math"
	"strings"

	actmodels "gigsafe/internal/activity/models"
	regmodels "gigsafe/internal/regional/models"
	"gigsafe/internal/scoring/models"
)

// Input is everything an activity score depends on.
type Input struct {
	Activity actmodels.Activity
	Verdict  actmodels.Verdict
	Regional regmodels.Lookup
	// Prior covers the worker's activities before this one.
	Prior models.Stats
}

// Policy selects how activity scores aggregate into a worker score.
type Policy string

const (
	PolicyCumulativeMean Policy = "cumulative_mean"
	PolicyRollingWindow  Policy = "rolling_window"
	PolicyBlended        Policy = "blended"
)

// Blended policy weights.
const (
	blendMean = 0.6
	blendMax  = 0.3
	blendRate = 0.1
)

type Aggregation struct {
	Policy Policy
	Window int
}

func ParseAggregation(policy string, window int) (Aggregation, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(policy)))
	switch p {
	case "":
		p = PolicyCumulativeMean
	case PolicyCumulativeMean, PolicyBlended:
	case PolicyRollingWindow:
		if window <= 0 {
			return Aggregation{}, fmt.Errorf("rolling_window needs a positive window")
		}
	default:
		return Aggregation{}, fmt.Errorf("unknown aggregation policy %q", policy)
	}
	return Aggregation{Policy: p, Window: window}, nil
}

// Engine applies a validated scheme.
type Engine struct {
	scheme      Scheme
	aggregation Aggregation
}

func New(scheme Scheme, aggregation Aggregation) (*Engine, error) {
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	if aggregation.Policy == "" {
		aggregation.Policy = PolicyCumulativeMean
	}
	return &Engine{scheme: scheme, aggregation: aggregation}, nil
}

func (e *Engine) Scheme() Scheme { return e.scheme }

func (e *Engine) Aggregation() Aggregation { return e.aggregation }

// ComputeActivityScore fuses the verdict, rule features and regional index.
func (e *Engine) ComputeActivityScore(in Input) models.RiskScore {
	p := e.scheme.Params
	values := map[models.Factor]float64{
		models.FactorAnomaly:    AnomalyFactor(in.Verdict, p),
		models.FactorCluster:    ClusterFactor(in.Verdict),
		models.FactorRoute:      RampFactor(in.Activity.RouteDeviation, 0, p.RouteThreshold, 2*p.RouteThreshold),
		models.FactorSpeed:      RampFactor(in.Activity.MaxSpeedKmh, 0.75*p.SpeedThreshold, p.SpeedThreshold, 1.5*p.SpeedThreshold),
		models.FactorGovernment: models.Clamp100(in.Regional.Index),
		models.FactorHistorical: HistoricalFactor(in.Prior),
	}

	total := 0.0
	breakdown := make([]models.Component, 0, len(e.scheme.Weights))
	for _, f := range factorOrder {
		w, ok := e.scheme.Weights[f]
		if !ok {
			continue
		}
		contribution := float64(values[f] * w)
		total += contribution
		breakdown = append(breakdown, models.Component{
			Factor:       f,
			Value:        values[f],
			Weight:       w,
			Contribution: contribution,
		})
	}

	score := models.Round2(models.Clamp100(total))
	return models.RiskScore{
		SubjectID: string(in.Activity.ID),
		Scope:     models.ScopeActivity,
		Status:    models.StatusScored,
		Score:     score,
		Tier:      models.Classify(score),
		Scheme:    e.scheme.Name,
		Breakdown: breakdown,
		Regional: &models.RegionalContext{
			Region:   string(in.Regional.Region),
			Index:    in.Regional.Index,
			Fallback: in.Regional.Fallback,
			Stale:    in.Regional.Stale,
			AsOf:     in.Regional.AsOf,
		},
	}
}

// AggregateWorkerScore folds a worker's stats into a worker-level score.
func (e *Engine) AggregateWorkerScore(workerID string, stats models.Stats) models.RiskScore {
	if stats.Count == 0 {
		return models.Unscored(workerID, models.ScopeWorker, models.ReasonNoActivity)
	}

	mean := stats.MeanScore()
	rate := stats.AnomalyRate() * 100

	var wMean, wMax, wRate float64
	switch e.aggregation.Policy {
	case PolicyRollingWindow:
		mean = meanOf(stats.Recent)
		wMean = 1
	case PolicyBlended:
		wMean, wMax, wRate = blendMean, blendMax, blendRate
	default:
		wMean = 1
	}

	breakdown := []models.Component{
		{Factor: models.FactorMean, Value: mean, Weight: wMean, Contribution: float64(mean * wMean)},
		{Factor: models.FactorMax, Value: stats.MaxScore, Weight: wMax, Contribution: float64(stats.MaxScore * wMax)},
		{Factor: models.FactorAnomalyRate, Value: rate, Weight: wRate, Contribution: float64(rate * wRate)},
	}
	total := 0.0
	for _, c := range breakdown {
		total += c.Contribution
	}

	score := models.Round2(models.Clamp100(total))
	return models.RiskScore{
		SubjectID: workerID,
		Scope:     models.ScopeWorker,
		Status:    models.StatusScored,
		Score:     score,
		Tier:      models.Classify(score),
		Scheme:    string(e.aggregation.Policy),
		Breakdown: breakdown,
	}
}

// AnomalyFactor combines the oracle flag, its continuous score and the
// outlier marker.
func AnomalyFactor(v actmodels.Verdict, p Params) float64 {
	total := 0.0
	if v.IsAnomaly {
		total += p.FlagPoints
	}
	total += p.ScorePoints * clamp(-v.Score/p.ScoreScale, 0, 1)
	if v.Outlier() {
		total += p.OutlierPoints
	}
	return models.Clamp100(total)
}

func ClusterFactor(v actmodels.Verdict) float64 {
	if v.Outlier() {
		return 100
	}
	return 0
}

// RampFactor is 0 up to start, rises linearly to 50 at mid and to 100 at
// full, and stays at 100 beyond.
func RampFactor(x, start, mid, full float64) float64 {
	switch {
	case x <= start:
		return 0
	case x <= mid:
		return 50 * (x - start) / (mid - start)
	case x <= full:
		return 50 + 50*(x-mid)/(full-mid)
	default:
		return 100
	}
}

// HistoricalFactor is the anomalous share of prior activities, in points.
func HistoricalFactor(prior models.Stats) float64 {
	return models.Clamp100(prior.AnomalyRate() * 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
