package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := map[float64]Tier{
		0:     TierLow,
		29.99: TierLow,
		29.9:  TierLow,
		30:    TierMedium,
		45:    TierMedium,
		60:    TierMedium,
		60.01: TierHigh,
		60.1:  TierHigh,
		100:   TierHigh,
	}
	for score, want := range cases {
		assert.Equal(t, want, Classify(score), "score %v", score)
	}
}

func TestStatsAdd(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var s Stats
	s = s.Add(20, false, 30, 2, at)
	s = s.Add(80, true, 50, 2, at)
	first := s
	s = s.Add(50, false, 40, 2, at)

	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 1, s.AnomalousCount)
	assert.Equal(t, 50.0, s.MeanScore())
	assert.Equal(t, 80.0, s.MaxScore)
	assert.Equal(t, []float64{80, 50}, s.Recent)
	assert.InDelta(t, 1.0/3, s.AnomalyRate(), 1e-12)
	assert.Equal(t, 40.0, s.MeanAvgSpeed())

	assert.Equal(t, []float64{20, 80}, first.Recent, "earlier values are not mutated")
}

func TestEmptyStats(t *testing.T) {
	var s Stats
	assert.Zero(t, s.MeanScore())
	assert.Zero(t, s.AnomalyRate())
	assert.Zero(t, s.MeanAvgSpeed())
}
