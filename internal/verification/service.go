// Package verification answers field verification queries. It composes the
// credential check with the worker's current risk score and last known
// location. Only the credential check can fail a verification.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	actmodels "gigsafe/internal/activity/models"
	alertmodels "gigsafe/internal/alert/models"
	credmodels "gigsafe/internal/credential/models"
	scoremodels "gigsafe/internal/scoring/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/sentinel"
	"gigsafe/pkg/requestcontext"
)

// DefaultTimeout bounds the score and location lookups of one verification.
const DefaultTimeout = 2 * time.Second

type Credentials interface {
	Verify(ctx context.Context, payload string) (credmodels.VerificationResult, error)
	VerifyByHash(ctx context.Context, hash string) (credmodels.VerificationResult, error)
	CountByType(ctx context.Context) (map[credmodels.WorkerType]int, error)
}

type Scores interface {
	AggregateWorkerScore(ctx context.Context, workerID id.WorkerID) (scoremodels.RiskScore, error)
	HighRiskWorkers(ctx context.Context, limit int) ([]scoremodels.RiskScore, error)
	Summarize(ctx context.Context) (scoremodels.Summary, error)
}

type Locations interface {
	LatestWithLocation(ctx context.Context, workerID id.WorkerID) (actmodels.Activity, error)
}

type Alerts interface {
	List(ctx context.Context, f alertmodels.Filter) ([]alertmodels.Alert, error)
	CountOpen(ctx context.Context) (int, error)
}

type Regional interface {
	Stale() bool
}

type Service struct {
	credentials Credentials
	scores      Scores
	locations   Locations
	alerts      Alerts
	regional    Regional
	timeout     time.Duration
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(credentials Credentials, scores Scores, locations Locations, alerts Alerts, regional Regional, opts ...Option) *Service {
	s := &Service{
		credentials: credentials,
		scores:      scores,
		locations:   locations,
		alerts:      alerts,
		regional:    regional,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyPayload checks a scanned credential payload. The worker id is read
// from the payload so the score and location lookups run alongside the check.
func (s *Service) VerifyPayload(ctx context.Context, payload string) (Result, error) {
	scanned, err := credmodels.ParsePayload(payload)
	if err != nil {
		return Result{}, err
	}

	var (
		check    credmodels.VerificationResult
		score    scoremodels.RiskScore
		location actmodels.Activity
		located  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	lookupCtx, cancel := context.WithTimeout(gctx, s.timeout)
	defer cancel()
	g.Go(func() error {
		var err error
		check, err = s.credentials.Verify(gctx, payload)
		return err
	})
	s.lookups(lookupCtx, g, scanned.WorkerID, &score, &location, &located)
	if err := g.Wait(); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return s.notFound(ctx), nil
		}
		return Result{}, err
	}
	return s.compose(ctx, check, score, location, located), nil
}

// VerifyHash resolves a credential by its hash. The worker is only known once
// the hash resolves, so the lookups follow the credential check.
func (s *Service) VerifyHash(ctx context.Context, hash string) (Result, error) {
	check, err := s.credentials.VerifyByHash(ctx, hash)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return s.notFound(ctx), nil
		}
		return Result{}, err
	}

	var (
		score    scoremodels.RiskScore
		location actmodels.Activity
		located  bool
	)
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var g errgroup.Group
	s.lookups(lookupCtx, &g, check.Worker.ID, &score, &location, &located)
	_ = g.Wait()
	return s.compose(ctx, check, score, location, located), nil
}

// lookups schedules the score and location reads under ctx's deadline. They
// never return errors: a failed lookup degrades the result instead.
func (s *Service) lookups(ctx context.Context, g *errgroup.Group, workerID id.WorkerID, score *scoremodels.RiskScore, location *actmodels.Activity, located *bool) {
	g.Go(func() error {
		sc, err := s.scores.AggregateWorkerScore(ctx, workerID)
		if err != nil {
			s.logger.WarnContext(ctx, "risk lookup failed during verification",
				"worker_id", workerID,
				"error", err,
			)
			*score = scoremodels.Unscored(string(workerID), scoremodels.ScopeWorker, SafetyLookupFailed)
			return nil
		}
		*score = sc
		return nil
	})
	g.Go(func() error {
		a, err := s.locations.LatestWithLocation(ctx, workerID)
		if err != nil {
			if !errors.Is(err, sentinel.ErrNotFound) {
				s.logger.WarnContext(ctx, "location lookup failed during verification",
					"worker_id", workerID,
					"error", err,
				)
			}
			return nil
		}
		*location = a
		*located = a.Location != nil
		return nil
	})
}

func (s *Service) compose(ctx context.Context, check credmodels.VerificationResult, score scoremodels.RiskScore, latest actmodels.Activity, located bool) Result {
	w := check.Worker
	at := check.VerifiedAt
	if at.IsZero() {
		at = requestcontext.Now(ctx)
	}
	return Result{
		Status:     check.Status,
		Reason:     check.Reason,
		VerifiedAt: at,
		Identity:   identityOf(w),
		Employment: employmentOf(w, at),
		Safety:     safetyOf(score),
		Location:   locate(w, latest, located),
	}
}

// locate picks the last activity's position, then the onboarding location,
// then the default city.
func locate(w credmodels.Worker, latest actmodels.Activity, located bool) *Location {
	switch {
	case located:
		seen := latest.Timestamp
		return &Location{
			Lat:    latest.Location.Lat,
			Lon:    latest.Location.Lon,
			City:   latest.Location.City,
			Source: LocationLastActivity,
			SeenAt: &seen,
		}
	case w.HomeLocation != nil:
		return &Location{
			Lat:    w.HomeLocation.Lat,
			Lon:    w.HomeLocation.Lon,
			City:   w.HomeLocation.City,
			Source: LocationOnboarding,
		}
	default:
		d := credmodels.DefaultLocation
		return &Location{Lat: d.Lat, Lon: d.Lon, City: d.City, Source: LocationDefault}
	}
}

func (s *Service) notFound(ctx context.Context) Result {
	return Result{
		Status:     credmodels.StatusNotFound,
		VerifiedAt: requestcontext.Now(ctx),
	}
}
