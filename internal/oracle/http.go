package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gigsafe/internal/activity/models"
	id "gigsafe/pkg/domain"
)

const maxVerdictBytes = 64 << 10

// HTTPOracle calls a model-serving endpoint at <baseURL>/classify.
type HTTPOracle struct {
	endpoint   string
	httpClient *http.Client
	now        func() time.Time
}

// NewHTTP creates an HTTP oracle. Per-call deadlines come from the caller's
// context; timeout only bounds connections the caller forgot to bound.
func NewHTTP(baseURL string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		endpoint:   strings.TrimRight(baseURL, "/") + "/classify",
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type classifyResponse struct {
	IsAnomaly    bool     `json:"is_anomaly"`
	AnomalyScore *float64 `json:"anomaly_score"`
	Cluster      *int     `json:"cluster"`
	Model        string   `json:"model"`
}

func (o *HTTPOracle) Classify(ctx context.Context, fv models.FeatureVector) (models.Verdict, error) {
	ctx, span := tracer.Start(ctx, "oracle.http.classify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("activity.id", fv.ActivityID),
			attribute.String("worker.id", fv.WorkerID),
		),
	)
	defer span.End()

	v, err := o.classify(ctx, fv)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return models.Verdict{}, err
	}
	span.SetAttributes(
		attribute.Bool("verdict.anomaly", v.IsAnomaly),
		attribute.Int("verdict.cluster", v.Cluster),
	)
	return v, nil
}

func (o *HTTPOracle) classify(ctx context.Context, fv models.FeatureVector) (models.Verdict, error) {
	body, err := json.Marshal(fv)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("encode features: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxVerdictBytes))
		return models.Verdict{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVerdictBytes)).Decode(&out); err != nil {
		return models.Verdict{}, fmt.Errorf("decode oracle verdict: %w", err)
	}
	if out.AnomalyScore == nil || out.Cluster == nil {
		return models.Verdict{}, fmt.Errorf("oracle verdict is missing anomaly_score or cluster")
	}

	source := "http"
	if out.Model != "" {
		source = "http:" + out.Model
	}
	return models.Verdict{
		ActivityID:   id.ActivityID(fv.ActivityID),
		IsAnomaly:    out.IsAnomaly,
		Score:        *out.AnomalyScore,
		Cluster:      *out.Cluster,
		Source:       source,
		ClassifiedAt: o.now().UTC(),
	}, nil
}
