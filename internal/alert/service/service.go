// Package service turns scored activities into deduplicated alerts and manages
// their lifecycle.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gigsafe/internal/alert/gate"
	"gigsafe/internal/alert/metrics"
	"gigsafe/internal/alert/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	audit "gigsafe/pkg/platform/audit"
	"gigsafe/pkg/platform/sentinel"
	"gigsafe/pkg/requestcontext"
)

// DefaultCooldown is the deduplication window per (worker, alert type).
const DefaultCooldown = time.Hour

type Store interface {
	Save(ctx context.Context, a models.Alert) error
	Update(ctx context.Context, a models.Alert, expected models.State) error
	FindByID(ctx context.Context, alertID id.AlertID) (models.Alert, error)
	List(ctx context.Context, f models.Filter) ([]models.Alert, error)
	CountOpen(ctx context.Context) (int, error)
}

// Gate is the cooldown check-and-set. owner identifies the hold for release.
type Gate interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// Publisher delivers recorded alerts. Delivery is best-effort.
type Publisher interface {
	Publish(ctx context.Context, a models.Alert) error
}

type AuditPublisher interface {
	Track(ctx context.Context, event audit.Event)
}

type Service struct {
	store      Store
	gate       Gate
	publisher  Publisher
	auditor    AuditPublisher
	thresholds models.Thresholds
	cooldown   time.Duration
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

func WithGate(g Gate) Option {
	return func(s *Service) {
		s.gate = g
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithThresholds(t models.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

// WithCooldown sets the deduplication window. Non-positive values are ignored.
func WithCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		gate:       gate.NewInMemory(),
		thresholds: models.DefaultThresholds(),
		cooldown:   DefaultCooldown,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate runs the rule table and records one alert per candidate that
// passes the cooldown gate. A failure on one candidate does not stop the
// others; all failures are returned joined.
func (s *Service) Evaluate(ctx context.Context, e models.Evaluation) ([]models.Alert, error) {
	candidates := models.Candidates(e, s.thresholds)
	if len(candidates) == 0 {
		return nil, nil
	}

	now := requestcontext.Now(ctx)
	severity := models.SeverityFor(e.Score.Tier)
	var (
		raised []models.Alert
		errs   []error
	)
	for _, c := range candidates {
		a := models.Alert{
			ID:         id.NewAlertID(),
			WorkerID:   e.Activity.WorkerID,
			ActivityID: e.Activity.ID,
			Type:       c.Type,
			Severity:   severity,
			Score:      e.Score.Score,
			Message:    c.Message,
			State:      models.StateOpen,
			RaisedAt:   now,
		}
		ok, err := s.raise(ctx, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			raised = append(raised, a)
		}
	}
	return raised, errors.Join(errs...)
}

func (s *Service) raise(ctx context.Context, a models.Alert) (bool, error) {
	key := gate.Key(a.WorkerID, string(a.Type))
	owner := a.ID.String()
	acquired, err := s.gate.Acquire(ctx, key, owner, s.cooldown)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "alert cooldown unavailable")
	}
	if !acquired {
		s.metrics.IncSuppressed(string(a.Type))
		s.logger.DebugContext(ctx, "alert suppressed by cooldown",
			"worker_id", a.WorkerID,
			"alert_type", a.Type,
		)
		return false, nil
	}

	if err := s.store.Save(ctx, a); err != nil {
		if relErr := s.gate.Release(ctx, key, owner); relErr != nil {
			s.logger.WarnContext(ctx, "failed to release alert cooldown", "key", key, "error", relErr)
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record alert")
	}

	s.metrics.IncRaised(string(a.Type), string(a.Severity))
	s.logger.InfoContext(ctx, "alert raised",
		"alert_id", owner,
		"worker_id", a.WorkerID,
		"activity_id", a.ActivityID,
		"alert_type", a.Type,
		"severity", a.Severity,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.track(ctx, audit.EventAlertRaised, a)
	s.publish(ctx, a)
	return true, nil
}

func (s *Service) publish(ctx context.Context, a models.Alert) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, a); err != nil {
		s.metrics.IncPublishError()
		s.logger.WarnContext(ctx, "alert delivery failed",
			"alert_id", a.ID.String(),
			"worker_id", a.WorkerID,
			"error", err,
		)
	}
}

// Acknowledge moves an Open alert to Acknowledged. Acknowledging twice
// returns the alert unchanged.
func (s *Service) Acknowledge(ctx context.Context, alertID id.AlertID) (models.Alert, error) {
	cur, err := s.Get(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	next, changed, err := cur.Acknowledge(requestcontext.Now(ctx))
	if err != nil || !changed {
		return next, err
	}
	if err := s.update(ctx, next, cur.State); err != nil {
		return models.Alert{}, err
	}
	s.metrics.IncTransition(string(next.State))
	s.track(ctx, audit.EventAlertAcknowledged, next)
	return next, nil
}

// Resolve closes an Open or Acknowledged alert and releases its cooldown so
// the next matching activity raises a fresh alert. Resolving twice is a no-op.
func (s *Service) Resolve(ctx context.Context, alertID id.AlertID) (models.Alert, error) {
	cur, err := s.Get(ctx, alertID)
	if err != nil {
		return models.Alert{}, err
	}
	next, changed := cur.Resolve(requestcontext.Now(ctx))
	if !changed {
		return next, nil
	}
	if err := s.update(ctx, next, cur.State); err != nil {
		return models.Alert{}, err
	}
	if err := s.gate.Release(ctx, gate.Key(next.WorkerID, string(next.Type)), next.ID.String()); err != nil {
		s.logger.WarnContext(ctx, "failed to release alert cooldown",
			"alert_id", next.ID.String(),
			"error", err,
		)
	}
	s.metrics.IncTransition(string(next.State))
	s.track(ctx, audit.EventAlertResolved, next)
	return next, nil
}

func (s *Service) update(ctx context.Context, next models.Alert, expected models.State) error {
	if err := s.store.Update(ctx, next, expected); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "alert not found")
		case errors.Is(err, sentinel.ErrConflict):
			return dErrors.New(dErrors.CodeConflict, "alert changed concurrently; retry")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update alert")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, alertID id.AlertID) (models.Alert, error) {
	a, err := s.store.FindByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Alert{}, dErrors.New(dErrors.CodeNotFound, "alert not found")
		}
		return models.Alert{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load alert")
	}
	return a, nil
}

// List returns alerts matching f, newest first.
func (s *Service) List(ctx context.Context, f models.Filter) ([]models.Alert, error) {
	alerts, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list alerts")
	}
	return alerts, nil
}

func (s *Service) CountOpen(ctx context.Context) (int, error) {
	n, err := s.store.CountOpen(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count open alerts")
	}
	return n, nil
}

func (s *Service) track(ctx context.Context, event audit.AuditEvent, a models.Alert) {
	if s.auditor == nil {
		return
	}
	s.auditor.Track(ctx, audit.Event{
		WorkerID: a.WorkerID,
		Action:   string(event),
		Subject:  a.ID.String(),
		Decision: string(a.Type),
	})
}
