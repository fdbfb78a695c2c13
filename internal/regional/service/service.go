// Package service maintains the regional risk context: an immutable snapshot
// of region risk indices that is swapped atomically on each successful refresh.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"gigsafe/internal/regional/metrics"
	"gigsafe/internal/regional/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/circuit"
)

// Feed supplies accident statistics.
type Feed interface {
	Fetch(ctx context.Context) (models.Dataset, error)
}

// SnapshotStore persists the last-good snapshot.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
}

// ErrRefreshSkipped is returned while the feed breaker is open and the probe
// interval has not elapsed.
var ErrRefreshSkipped = errors.New("regional refresh skipped: feed circuit open")

const (
	defaultRefreshTimeout = 10 * time.Second
	defaultProbeInterval  = 5 * time.Minute
	refreshKey            = "refresh"
)

// Diagnostics is a point-in-time view of the refresher.
type Diagnostics struct {
	Regions      int       `json:"regions"`
	Year         int       `json:"year"`
	Source       string    `json:"source"`
	AsOf         time.Time `json:"as_of"`
	DefaultIndex float64   `json:"default_index"`
	Stale        bool      `json:"stale"`
	LastAttempt  time.Time `json:"last_attempt,omitempty"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	BreakerState string    `json:"breaker_state"`
}

// Service answers region risk lookups from the active snapshot. Lookups never
// block on refresh.
type Service struct {
	feed    Feed
	store   SnapshotStore
	breaker *circuit.Breaker
	group   singleflight.Group

	current atomic.Pointer[models.Snapshot]
	stale   atomic.Bool

	mu          sync.Mutex
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error

	timeout       time.Duration
	probeInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStore enables last-good persistence.
func WithStore(store SnapshotStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithRefreshTimeout bounds a single feed fetch.
func WithRefreshTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithProbeInterval sets how long an open breaker suppresses fetches.
func WithProbeInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.probeInterval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service seeded with the bundled dataset.
func New(feed Feed, opts ...Option) (*Service, error) {
	s := &Service{
		feed:          feed,
		breaker:       circuit.New("regional_feed", circuit.WithFailureThreshold(3)),
		timeout:       defaultRefreshTimeout,
		probeInterval: defaultProbeInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	seed, err := models.BuildSnapshot(models.StaticDataset())
	if err != nil {
		return nil, err
	}
	s.swap(seed)
	return s, nil
}

// Seed replaces the bundled snapshot with the persisted last-good snapshot,
// if one exists. Store errors are logged and leave the bundled data in place.
func (s *Service) Seed(ctx context.Context) {
	if s.store == nil {
		return
	}
	snap, err := s.store.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load cached regional snapshot", "error", err)
		return
	}
	if snap == nil {
		return
	}
	s.swap(snap)
	s.logger.InfoContext(ctx, "regional snapshot seeded from cache",
		"regions", len(snap.Regions),
		"as_of", snap.AsOf,
		"source", snap.Source,
	)
}

// Get returns the risk index for region. Unknown regions get the snapshot's
// default index with Fallback set.
func (s *Service) Get(region string) models.Lookup {
	snap := s.current.Load()
	lookup := models.Lookup{
		Region: id.NormalizeRegion(region),
		Stale:  s.stale.Load(),
		AsOf:   snap.AsOf,
	}
	if r, ok := snap.Find(region); ok {
		lookup.Index = r.Index
		return lookup
	}
	s.metrics.IncFallback()
	lookup.Index = snap.Default
	lookup.Fallback = true
	return lookup
}

// YearOverYear returns the accident count change (percent) against the previous
// year for region.
func (s *Service) YearOverYear(region string) (float64, bool) {
	return s.current.Load().YearOverYear(region)
}

// Top ranks the active snapshot's regions by risk index.
func (s *Service) Top(n int) []models.RegionRisk {
	return s.current.Load().Top(n)
}

// Snapshot returns the active snapshot. Callers must not modify it.
func (s *Service) Snapshot() *models.Snapshot {
	return s.current.Load()
}

// Stale reports whether the last refresh attempt failed.
func (s *Service) Stale() bool {
	return s.stale.Load()
}

// Refresh fetches the feed and swaps in a new snapshot. Concurrent callers
// share one fetch. On failure the current snapshot stays in force and the
// context is marked stale.
func (s *Service) Refresh(ctx context.Context) error {
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		// detached so one caller's cancellation does not fail the shared fetch
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return nil, s.refresh(fetchCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) refresh(ctx context.Context) error {
	now := s.now()

	s.mu.Lock()
	sinceAttempt := now.Sub(s.lastAttempt)
	s.mu.Unlock()
	if s.breaker.IsOpen() && sinceAttempt < s.probeInterval {
		s.metrics.IncRefresh("breaker_open")
		s.markStale(ctx, ErrRefreshSkipped)
		return dErrors.Wrap(ErrRefreshSkipped, dErrors.CodeUnavailable, "regional feed unavailable")
	}

	s.mu.Lock()
	s.lastAttempt = now
	s.mu.Unlock()

	snap, err := s.fetch(ctx)
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "regional feed circuit opened", "breaker", s.breaker.Name())
		}
		s.metrics.IncRefresh("failure")
		s.markStale(ctx, err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "regional feed unavailable")
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "regional feed circuit closed", "breaker", s.breaker.Name())
	}

	s.swap(snap)
	s.stale.Store(false)
	s.metrics.SetStale(false)
	s.metrics.IncRefresh("success")

	s.mu.Lock()
	s.lastSuccess = now
	s.lastErr = nil
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "failed to persist regional snapshot", "error", err)
		}
	}
	s.logger.InfoContext(ctx, "regional snapshot refreshed",
		"regions", len(snap.Regions),
		"year", snap.Year,
		"as_of", snap.AsOf,
		"source", snap.Source,
	)
	return nil
}

func (s *Service) fetch(ctx context.Context) (*models.Snapshot, error) {
	ds, err := s.feed.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if ds.AsOf.IsZero() {
		ds.AsOf = s.now().UTC()
	}
	return models.BuildSnapshot(ds)
}

func (s *Service) markStale(ctx context.Context, err error) {
	s.stale.Store(true)
	s.metrics.SetStale(true)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	snap := s.current.Load()
	s.logger.WarnContext(ctx, "stale regional data",
		"error", err,
		"as_of", snap.AsOf,
		"source", snap.Source,
	)
}

func (s *Service) swap(snap *models.Snapshot) {
	s.current.Store(snap)
	s.metrics.SetRegions(len(snap.Regions))
}

// Run refreshes immediately and then every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Refresh(ctx)
		}
	}
}

// Diagnostics reports the state of the active snapshot and the refresher.
func (s *Service) Diagnostics() Diagnostics {
	snap := s.current.Load()

	s.mu.Lock()
	defer s.mu.Unlock()
	d := Diagnostics{
		Regions:      len(snap.Regions),
		Year:         snap.Year,
		Source:       snap.Source,
		AsOf:         snap.AsOf,
		DefaultIndex: snap.Default,
		Stale:        s.stale.Load(),
		LastAttempt:  s.lastAttempt,
		LastSuccess:  s.lastSuccess,
		BreakerState: string(s.breaker.State()),
	}
	if s.lastErr != nil {
		d.LastError = s.lastErr.Error()
	}
	return d
}
