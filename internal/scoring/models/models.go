package models

import (
	"math"
	"time"
)

// Tier is the risk classification of a score.
type Tier string

const (
	TierLow    Tier = "Low"
	TierMedium Tier = "Medium"
	TierHigh   Tier = "High"
)

// Tier boundaries: score < LowUpper is Low, score > MediumUpper is High.
const (
	LowUpper    = 30.0
	MediumUpper = 60.0
)

// Classify maps a rounded score to its tier.
func Classify(score float64) Tier {
	switch {
	case score < LowUpper:
		return TierLow
	case score <= MediumUpper:
		return TierMedium
	default:
		return TierHigh
	}
}

type Scope string

const (
	ScopeActivity Scope = "activity"
	ScopeWorker   Scope = "worker"
)

type Status string

const (
	StatusScored   Status = "Scored"
	StatusUnscored Status = "Unscored"
)

// Unscored reasons.
const (
	ReasonOracleUnavailable = "UpstreamOracleUnavailable"
	ReasonNoActivity        = "NoActivity"
)

// Factor names a score component.
type Factor string

const (
	FactorAnomaly    Factor = "anomaly"
	FactorSpeed      Factor = "speed"
	FactorGovernment Factor = "government"
	FactorHistorical Factor = "historical"
	FactorCluster    Factor = "cluster"
	FactorRoute      Factor = "route"

	// Worker-level breakdown entries.
	FactorMean        Factor = "mean"
	FactorMax         Factor = "max"
	FactorAnomalyRate Factor = "anomaly_rate"
)

// Component is one factor of a score. Contribution = Value * Weight.
type Component struct {
	Factor       Factor  `json:"factor"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// RegionalContext records the regional input a score was computed with.
type RegionalContext struct {
	Region   string    `json:"region"`
	Index    float64   `json:"index"`
	Fallback bool      `json:"fallback"`
	Stale    bool      `json:"stale"`
	AsOf     time.Time `json:"as_of"`
}

// RiskScore is recomputed whenever its inputs change.
type RiskScore struct {
	SubjectID      string           `json:"subject_id"`
	Scope          Scope            `json:"scope"`
	Status         Status           `json:"status"`
	UnscoredReason string           `json:"unscored_reason,omitempty"`
	Score          float64          `json:"score"`
	Tier           Tier             `json:"tier,omitempty"`
	Scheme         string           `json:"scheme,omitempty"`
	Breakdown      []Component      `json:"breakdown,omitempty"`
	Regional       *RegionalContext `json:"regional,omitempty"`
	ComputedAt     time.Time        `json:"computed_at"`
}

// Scored reports whether the score carries a tier.
func (r RiskScore) Scored() bool {
	return r.Status == StatusScored
}

// Unscored builds a score without a tier.
func Unscored(subjectID string, scope Scope, reason string) RiskScore {
	return RiskScore{
		SubjectID:      subjectID,
		Scope:          scope,
		Status:         StatusUnscored,
		UnscoredReason: reason,
	}
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Clamp100 limits v to [0,100].
func Clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// Stats are the incremental per-worker aggregates. Values are replaced, never
// mutated in place.
type Stats struct {
	Count          int       `json:"count"`
	AnomalousCount int       `json:"anomalous_count"`
	SumScore       float64   `json:"sum_score"`
	MaxScore       float64   `json:"max_score"`
	SumAvgSpeed    float64   `json:"sum_avg_speed"`
	Recent         []float64 `json:"recent,omitempty"` // newest last
	UpdatedAt      time.Time `json:"updated_at"`
}

// Add returns stats including one more scored activity. Recent keeps at most
// window entries.
func (s Stats) Add(score float64, anomalous bool, avgSpeed float64, window int, at time.Time) Stats {
	next := Stats{
		Count:          s.Count + 1,
		AnomalousCount: s.AnomalousCount,
		SumScore:       s.SumScore + score,
		MaxScore:       math.Max(s.MaxScore, score),
		SumAvgSpeed:    s.SumAvgSpeed + avgSpeed,
		UpdatedAt:      at,
	}
	if anomalous {
		next.AnomalousCount++
	}
	recent := append(append([]float64(nil), s.Recent...), score)
	if window > 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	next.Recent = recent
	return next
}

func (s Stats) MeanScore() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.SumScore / float64(s.Count)
}

// AnomalyRate is the anomalous share of scored activities in [0,1].
func (s Stats) AnomalyRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.AnomalousCount) / float64(s.Count)
}

func (s Stats) MeanAvgSpeed() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.SumAvgSpeed / float64(s.Count)
}

// Summary is the fleet view of worker scores. Workers without scored
// activity are left out of the average.
type Summary struct {
	ScoredWorkers     int     `json:"scored_workers"`
	AverageScore      float64 `json:"average_score"`
	AnomaliesDetected int     `json:"anomalies_detected"`
	HighRisk          int     `json:"high_risk"`
}
