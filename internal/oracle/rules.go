package oracle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gigsafe/internal/activity/models"
	id "gigsafe/pkg/domain"
)

// Rule thresholds for the development oracle.
const (
	RuleSpeedLimitKmh     = 60
	RuleDeviationLimit    = 15
	ruleOutlierMinFired   = 2
	ruleBaselineScore     = 0.1
	ruleScorePerFiredRule = 0.2
	normalCluster         = 0
)

// RuleOracle flags an activity when any rule fires and marks it an outlier
// when at least two fire.
type RuleOracle struct {
	now func() time.Time
}

func NewRuleOracle() *RuleOracle {
	return &RuleOracle{now: time.Now}
}

func (o *RuleOracle) Classify(ctx context.Context, fv models.FeatureVector) (models.Verdict, error) {
	_, span := tracer.Start(ctx, "oracle.rules.classify")
	defer span.End()

	fired := 0
	if fv.MaxSpeedKmh > RuleSpeedLimitKmh {
		fired++
	}
	if fv.IsNight {
		fired++
	}
	if fv.RouteDeviation > RuleDeviationLimit {
		fired++
	}

	cluster := normalCluster
	if fired >= ruleOutlierMinFired {
		cluster = models.OutlierCluster
	}
	span.SetAttributes(attribute.Int("rules.fired", fired))

	return models.Verdict{
		ActivityID:   id.ActivityID(fv.ActivityID),
		IsAnomaly:    fired > 0,
		Score:        ruleBaselineScore - ruleScorePerFiredRule*float64(fired),
		Cluster:      cluster,
		Source:       "rules",
		ClassifiedAt: o.now().UTC(),
	}, nil
}
