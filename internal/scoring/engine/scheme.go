package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gigsafe/internal/scoring/models"
)

const weightTolerance = 1e-9

// Scheme names.
const (
	SchemeWeighted4 = "weighted4"
	SchemeWeighted5 = "weighted5"
)

// factorOrder fixes the summation and breakdown order.
var factorOrder = []models.Factor{
	models.FactorAnomaly,
	models.FactorCluster,
	models.FactorRoute,
	models.FactorSpeed,
	models.FactorGovernment,
	models.FactorHistorical,
}

// Params shapes the individual factor curves.
type Params struct {
	// Anomaly factor points: flag, continuous score, cluster outlier.
	FlagPoints    float64
	ScorePoints   float64
	ScoreScale    float64
	OutlierPoints float64

	SpeedThreshold float64 // km/h
	RouteThreshold float64
}

func DefaultParams() Params {
	return Params{
		FlagPoints:     70,
		ScorePoints:    30,
		ScoreScale:     0.5,
		OutlierPoints:  20,
		SpeedThreshold: 80,
		RouteThreshold: 20,
	}
}

// Scheme is a set of factor weights summing to 1.
type Scheme struct {
	Name    string
	Weights map[models.Factor]float64
	Params  Params
}

// Weighted4 is the default four-factor scheme.
func Weighted4() Scheme {
	return Scheme{
		Name: SchemeWeighted4,
		Weights: map[models.Factor]float64{
			models.FactorAnomaly:    0.4,
			models.FactorSpeed:      0.3,
			models.FactorGovernment: 0.2,
			models.FactorHistorical: 0.1,
		},
		Params: DefaultParams(),
	}
}

// Weighted5 scores cluster outliers as a separate factor, so the anomaly
// factor ignores them.
func Weighted5() Scheme {
	p := DefaultParams()
	p.OutlierPoints = 0
	return Scheme{
		Name: SchemeWeighted5,
		Weights: map[models.Factor]float64{
			models.FactorAnomaly:    0.30,
			models.FactorCluster:    0.25,
			models.FactorRoute:      0.15,
			models.FactorSpeed:      0.10,
			models.FactorGovernment: 0.20,
		},
		Params: p,
	}
}

// SchemeByName returns a preset.
func SchemeByName(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemeWeighted4:
		return Weighted4(), nil
	case SchemeWeighted5:
		return Weighted5(), nil
	}
	return Scheme{}, fmt.Errorf("unknown scoring scheme %q", name)
}

// ParseWeights reads "anomaly=0.4,speed=0.3,..." into a custom scheme based on
// the default params.
func ParseWeights(raw string) (Scheme, error) {
	s := Scheme{Name: "custom", Weights: map[models.Factor]float64{}, Params: DefaultParams()}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return Scheme{}, fmt.Errorf("weight %q must be factor=value", part)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Scheme{}, fmt.Errorf("weight %q: %w", part, err)
		}
		s.Weights[models.Factor(strings.TrimSpace(name))] = w
	}
	if _, ok := s.Weights[models.FactorCluster]; ok {
		s.Params.OutlierPoints = 0
	}
	return s, s.Validate()
}

// Validate checks the weights and curve parameters.
func (s Scheme) Validate() error {
	if len(s.Weights) == 0 {
		return fmt.Errorf("scheme %q has no weights", s.Name)
	}
	known := make(map[models.Factor]bool, len(factorOrder))
	for _, f := range factorOrder {
		known[f] = true
	}
	sum := 0.0
	for f, w := range s.Weights {
		if !known[f] {
			return fmt.Errorf("scheme %q: unknown factor %q", s.Name, f)
		}
		if w < 0 || w > 1 || math.IsNaN(w) {
			return fmt.Errorf("scheme %q: weight for %s must be in [0,1]", s.Name, f)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("scheme %q: weights sum to %v, want 1", s.Name, sum)
	}
	p := s.Params
	if p.ScoreScale <= 0 || p.SpeedThreshold <= 0 || p.RouteThreshold <= 0 {
		return fmt.Errorf("scheme %q: thresholds and score scale must be positive", s.Name)
	}
	if p.FlagPoints < 0 || p.ScorePoints < 0 || p.OutlierPoints < 0 {
		return fmt.Errorf("scheme %q: anomaly points must not be negative", s.Name)
	}
	return nil
}

// GovernmentCap is the maximum points the regional index can add.
func (s Scheme) GovernmentCap() float64 {
	return 100 * s.Weights[models.FactorGovernment]
}
