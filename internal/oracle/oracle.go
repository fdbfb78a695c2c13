// Package oracle classifies activities as anomalous or normal. The scoring
// engine consumes verdicts through the Oracle port; model serving lives outside
// this service and is reached over HTTP. RuleOracle is a deterministic stand-in
// for development and tests.
package oracle

import (
	"context"

	"go.opentelemetry.io/otel"

	"gigsafe/internal/activity/models"
)

// Oracle returns a verdict for one activity's features.
type Oracle interface {
	Classify(ctx context.Context, fv models.FeatureVector) (models.Verdict, error)
}

var tracer = otel.Tracer("gigsafe/oracle")
