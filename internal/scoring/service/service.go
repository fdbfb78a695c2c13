// Package service ingests activities and produces their risk scores. It is
// the only writer of the activity log, the verdict cache and worker stats.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	actmodels "gigsafe/internal/activity/models"
	alertmodels "gigsafe/internal/alert/models"
	credmodels "gigsafe/internal/credential/models"
	regmodels "gigsafe/internal/regional/models"
	"gigsafe/internal/scoring/engine"
	"gigsafe/internal/scoring/metrics"
	"gigsafe/internal/scoring/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/keylock"
	"gigsafe/pkg/platform/sentinel"
	txcontext "gigsafe/pkg/platform/tx"
	"gigsafe/pkg/requestcontext"
)

var tracer = otel.Tracer("gigsafe/scoring")

type ActivityStore interface {
	Append(ctx context.Context, a actmodels.Activity) error
	FindByID(ctx context.Context, activityID id.ActivityID) (actmodels.Activity, error)
	SaveVerdict(ctx context.Context, v actmodels.Verdict) error
	FindVerdict(ctx context.Context, activityID id.ActivityID) (actmodels.Verdict, error)
}

type StatsStore interface {
	Get(ctx context.Context, workerID id.WorkerID) (models.Stats, error)
	Put(ctx context.Context, workerID id.WorkerID, stats models.Stats) error
	All(ctx context.Context) (map[id.WorkerID]models.Stats, error)
}

type WorkerLookup interface {
	Get(ctx context.Context, workerID id.WorkerID) (credmodels.Worker, error)
}

type Oracle interface {
	Classify(ctx context.Context, fv actmodels.FeatureVector) (actmodels.Verdict, error)
}

type RegionalContext interface {
	Get(region string) regmodels.Lookup
}

// TxRunner groups the activity, its verdict and the worker stats into one
// unit of work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Dispatcher interface {
	Evaluate(ctx context.Context, e alertmodels.Evaluation) ([]alertmodels.Alert, error)
}

// IngestResult is the outcome of one ingestion. Verdict is nil when the
// oracle could not classify the activity.
type IngestResult struct {
	Activity actmodels.Activity
	Verdict  *actmodels.Verdict
	Score    models.RiskScore
	Alerts   []alertmodels.Alert
}

type Service struct {
	activities ActivityStore
	stats      StatsStore
	workers    WorkerLookup
	oracle     Oracle
	regional   RegionalContext
	engine     *engine.Engine
	dispatcher Dispatcher
	tx         TxRunner
	locks      *keylock.Map
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDispatcher hands every scored activity to the alert dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(activities ActivityStore, stats StatsStore, workers WorkerLookup, oracle Oracle, regional RegionalContext, eng *engine.Engine, opts ...Option) *Service {
	s := &Service{
		activities: activities,
		stats:      stats,
		workers:    workers,
		oracle:     oracle,
		regional:   regional,
		engine:     eng,
		tx:         txcontext.NoopRunner{},
		locks:      keylock.New(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest records an activity and scores it. An oracle failure is not an
// error: the activity is kept and the result is Unscored.
func (s *Service) Ingest(ctx context.Context, a actmodels.Activity) (IngestResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveIngestLatency(time.Since(start)) }()

	if a.ID == "" {
		a.ID = id.NewActivityID()
	}
	ctx, span := tracer.Start(ctx, "scoring.ingest", trace.WithAttributes(
		attribute.String("activity.id", string(a.ID)),
		attribute.String("worker.id", string(a.WorkerID)),
	))
	defer span.End()

	result, err := s.ingest(ctx, a)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
		return IngestResult{}, err
	}
	span.SetAttributes(
		attribute.String("score.status", string(result.Score.Status)),
		attribute.Float64("score.value", result.Score.Score),
		attribute.Int("alerts.raised", len(result.Alerts)),
	)
	return result, nil
}

func (s *Service) ingest(ctx context.Context, a actmodels.Activity) (IngestResult, error) {
	a, err := a.Prepare()
	if err != nil {
		return IngestResult{}, err
	}
	a.IngestedAt = requestcontext.Now(ctx)

	w, err := s.workers.Get(ctx, a.WorkerID)
	if err != nil {
		return IngestResult{}, err
	}

	unlock := s.locks.Lock(string(a.WorkerID))
	defer unlock()

	if _, err := s.activities.FindByID(ctx, a.ID); err == nil {
		return IngestResult{}, errAlreadyIngested
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return IngestResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activity")
	}

	prior, err := s.stats.Get(ctx, a.WorkerID)
	if err != nil {
		return IngestResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load worker stats")
	}

	verdict, err := s.oracle.Classify(ctx, a.Features(prior.MeanAvgSpeed()))
	if err != nil {
		if err := s.append(ctx, a); err != nil {
			return IngestResult{}, err
		}
		s.metrics.IncOracleFailure()
		s.metrics.IncIngested(string(models.StatusUnscored))
		s.logger.WarnContext(ctx, "activity left unscored",
			"activity_id", a.ID,
			"worker_id", a.WorkerID,
			"reason", models.ReasonOracleUnavailable,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return IngestResult{
			Activity: a,
			Score:    models.Unscored(string(a.ID), models.ScopeActivity, models.ReasonOracleUnavailable),
		}, nil
	}
	verdict.ActivityID = a.ID
	if verdict.ClassifiedAt.IsZero() {
		verdict.ClassifiedAt = requestcontext.Now(ctx)
	}
	verdict.PriorCount = prior.Count
	verdict.PriorAnomalous = prior.AnomalousCount

	score := s.engine.ComputeActivityScore(engine.Input{
		Activity: a,
		Verdict:  verdict,
		Regional: s.regional.Get(a.Region),
		Prior:    prior,
	})
	score.ComputedAt = requestcontext.Now(ctx)
	next := prior.Add(score.Score, verdict.IsAnomaly, a.AvgSpeedKmh, s.window(), score.ComputedAt)

	// A scored activity is never stored without its verdict and stats.
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.append(ctx, a); err != nil {
			return err
		}
		if err := s.activities.SaveVerdict(ctx, verdict); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cache verdict")
		}
		if err := s.stats.Put(ctx, a.WorkerID, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update worker stats")
		}
		return nil
	})
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return IngestResult{}, err
		}
		return IngestResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record activity")
	}

	s.metrics.IncIngested(string(models.StatusScored))
	s.metrics.IncTier(string(score.Tier))
	s.logger.InfoContext(ctx, "activity scored",
		"activity_id", a.ID,
		"worker_id", a.WorkerID,
		"score", score.Score,
		"tier", score.Tier,
		"anomaly", verdict.IsAnomaly,
		"request_id", requestcontext.RequestID(ctx),
	)

	result := IngestResult{Activity: a, Verdict: &verdict, Score: score}
	if s.dispatcher != nil {
		alerts, err := s.dispatcher.Evaluate(ctx, alertmodels.Evaluation{
			Activity: a,
			Verdict:  verdict,
			Worker:   w,
			Score:    score,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "alert evaluation failed",
				"activity_id", a.ID,
				"worker_id", a.WorkerID,
				"error", err,
			)
		}
		result.Alerts = alerts
	}
	return result, nil
}

var errAlreadyIngested = dErrors.New(dErrors.CodeConflict, "activity already ingested")

func (s *Service) append(ctx context.Context, a actmodels.Activity) error {
	if err := s.activities.Append(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return errAlreadyIngested
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record activity")
	}
	return nil
}

// window is the number of recent scores kept per worker. Worker stats always
// keep a short history so the aggregation policy can change at runtime.
func (s *Service) window() int {
	if agg := s.engine.Aggregation(); agg.Window > 0 {
		return agg.Window
	}
	return defaultRecentWindow
}

const defaultRecentWindow = 20

// Rescore recomputes an activity score from its cached verdict and the
// current regional context. The historical factor uses the worker history
// recorded with the verdict, so an unchanged activity rescores to its ingest
// score.
func (s *Service) Rescore(ctx context.Context, activityID id.ActivityID) (models.RiskScore, error) {
	ctx, span := tracer.Start(ctx, "scoring.rescore", trace.WithAttributes(
		attribute.String("activity.id", string(activityID)),
	))
	defer span.End()

	a, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.RiskScore{}, dErrors.New(dErrors.CodeNotFound, "activity not found")
		}
		return models.RiskScore{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activity")
	}
	verdict, err := s.activities.FindVerdict(ctx, activityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Unscored(string(activityID), models.ScopeActivity, models.ReasonOracleUnavailable), nil
		}
		return models.RiskScore{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verdict")
	}
	score := s.engine.ComputeActivityScore(engine.Input{
		Activity: a,
		Verdict:  verdict,
		Regional: s.regional.Get(a.Region),
		Prior: models.Stats{
			Count:          verdict.PriorCount,
			AnomalousCount: verdict.PriorAnomalous,
		},
	})
	score.ComputedAt = requestcontext.Now(ctx)
	return score, nil
}

// AggregateWorkerScore returns the worker-level score under the configured
// aggregation policy.
func (s *Service) AggregateWorkerScore(ctx context.Context, workerID id.WorkerID) (models.RiskScore, error) {
	if _, err := s.workers.Get(ctx, workerID); err != nil {
		return models.RiskScore{}, err
	}
	stats, err := s.stats.Get(ctx, workerID)
	if err != nil {
		return models.RiskScore{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load worker stats")
	}
	score := s.engine.AggregateWorkerScore(string(workerID), stats)
	score.ComputedAt = requestcontext.Now(ctx)
	return score, nil
}

// HighRiskWorkers returns High tier worker scores, highest first.
func (s *Service) HighRiskWorkers(ctx context.Context, limit int) ([]models.RiskScore, error) {
	all, err := s.stats.All(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load worker stats")
	}
	now := requestcontext.Now(ctx)
	out := make([]models.RiskScore, 0)
	for workerID, stats := range all {
		score := s.engine.AggregateWorkerScore(string(workerID), stats)
		if score.Tier != models.TierHigh {
			continue
		}
		score.ComputedAt = now
		out = append(out, score)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Summarize aggregates every worker under the configured policy.
func (s *Service) Summarize(ctx context.Context) (models.Summary, error) {
	all, err := s.stats.All(ctx)
	if err != nil {
		return models.Summary{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load worker stats")
	}
	var (
		out models.Summary
		sum float64
	)
	for workerID, stats := range all {
		out.AnomaliesDetected += stats.AnomalousCount
		score := s.engine.AggregateWorkerScore(string(workerID), stats)
		if !score.Scored() {
			continue
		}
		out.ScoredWorkers++
		sum += score.Score
		if score.Tier == models.TierHigh {
			out.HighRisk++
		}
	}
	if out.ScoredWorkers > 0 {
		out.AverageScore = models.Round2(sum / float64(out.ScoredWorkers))
	}
	return out, nil
}
