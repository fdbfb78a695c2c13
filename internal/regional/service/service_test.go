package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"gigsafe/internal/regional/models"
	"gigsafe/internal/regional/service/mocks"
	"gigsafe/internal/regional/store"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/circuit"
)

//go:generate mockgen -source=service.go -destination=mocks/regional-mocks.go -package=mocks Feed,SnapshotStore
type RegionalServiceSuite struct {
	suite.Suite
	ctrl  *gomock.Controller
	feed  *mocks.MockFeed
	now   time.Time
	store *store.InMemoryStore
}

func TestRegionalServiceSuite(t *testing.T) {
	suite.Run(t, new(RegionalServiceSuite))
}

func (s *RegionalServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.feed = mocks.NewMockFeed(s.ctrl)
	s.store = store.NewInMemory()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *RegionalServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStore(s.store),
		WithClock(func() time.Time { return s.now }),
	}
	svc, err := New(s.feed, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func feedDataset(asOf time.Time) models.Dataset {
	return models.Dataset{
		AsOf:   asOf,
		Source: "test-feed",
		Records: []models.Record{
			{Region: "Rajasthan", Year: 2023, TotalAccidents: 768},
			{Region: "Karnataka", Year: 2023, TotalAccidents: 1000},
			{Region: "Goa", Year: 2023, TotalAccidents: 100},
		},
	}
}

func (s *RegionalServiceSuite) TestSeededWithBundledDataset() {
	svc := s.newService()

	lookup := svc.Get("Tamil Nadu")
	s.Equal(100.0, lookup.Index)
	s.False(lookup.Fallback)
	s.False(lookup.Stale)
	s.Equal(models.StaticSource, svc.Diagnostics().Source)
}

func (s *RegionalServiceSuite) TestUnknownRegionFallsBackToMedian() {
	svc := s.newService()

	lookup := svc.Get("Atlantis")
	s.True(lookup.Fallback)
	s.Equal(svc.Snapshot().Default, lookup.Index)
}

func (s *RegionalServiceSuite) TestRefreshSwapsSnapshotAndPersists() {
	asOf := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	s.feed.EXPECT().Fetch(gomock.Any()).Return(feedDataset(asOf), nil)
	svc := s.newService()

	s.Require().NoError(svc.Refresh(context.Background()))

	lookup := svc.Get("rajasthan")
	s.Equal(76.8, lookup.Index)
	s.Equal(asOf, lookup.AsOf)
	s.False(lookup.Stale)

	persisted, err := s.store.Load(context.Background())
	s.Require().NoError(err)
	s.Require().NotNil(persisted)
	s.Equal("test-feed", persisted.Source)

	d := svc.Diagnostics()
	s.Equal(3, d.Regions)
	s.Equal(s.now, d.LastSuccess)
	s.Empty(d.LastError)
}

func (s *RegionalServiceSuite) TestUnreachableFeedKeepsLastGoodAndMarksStale() {
	asOf := time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)
	gomock.InOrder(
		s.feed.EXPECT().Fetch(gomock.Any()).Return(feedDataset(asOf), nil),
		s.feed.EXPECT().Fetch(gomock.Any()).Return(models.Dataset{}, errors.New("dial tcp: connection refused")),
	)
	svc := s.newService()
	ctx := context.Background()

	s.Require().NoError(svc.Refresh(ctx))
	err := svc.Refresh(ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	lookup := svc.Get("Rajasthan")
	s.Equal(76.8, lookup.Index, "last good value stays in force")
	s.True(lookup.Stale)
	s.Equal(asOf, lookup.AsOf)

	d := svc.Diagnostics()
	s.True(d.Stale)
	s.Contains(d.LastError, "connection refused")
}

func (s *RegionalServiceSuite) TestSuccessfulRefreshClearsStale() {
	gomock.InOrder(
		s.feed.EXPECT().Fetch(gomock.Any()).Return(models.Dataset{}, errors.New("timeout")),
		s.feed.EXPECT().Fetch(gomock.Any()).Return(feedDataset(s.now), nil),
	)
	svc := s.newService()

	s.Error(svc.Refresh(context.Background()))
	s.True(svc.Stale())
	s.NoError(svc.Refresh(context.Background()))
	s.False(svc.Stale())
}

func (s *RegionalServiceSuite) TestOpenBreakerSkipsFetchUntilProbeInterval() {
	breaker := circuit.New("test", circuit.WithFailureThreshold(1))
	s.feed.EXPECT().Fetch(gomock.Any()).Return(models.Dataset{}, errors.New("boom"))
	svc := s.newService(WithBreaker(breaker), WithProbeInterval(time.Minute))

	s.Error(svc.Refresh(context.Background()))
	s.True(breaker.IsOpen())

	err := svc.Refresh(context.Background())
	s.ErrorIs(err, ErrRefreshSkipped)

	s.now = s.now.Add(2 * time.Minute)
	s.feed.EXPECT().Fetch(gomock.Any()).Return(feedDataset(s.now), nil)
	s.NoError(svc.Refresh(context.Background()))
	s.False(breaker.IsOpen())
}

func (s *RegionalServiceSuite) TestConcurrentRefreshSharesOneFetch() {
	release := make(chan struct{})
	var calls atomic.Int32
	s.feed.EXPECT().Fetch(gomock.Any()).DoAndReturn(func(context.Context) (models.Dataset, error) {
		calls.Add(1)
		<-release
		return feedDataset(s.now), nil
	}).MinTimes(1)
	svc := s.newService()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Refresh(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.LessOrEqual(calls.Load(), int32(2))
}

func (s *RegionalServiceSuite) TestSeedPrefersCachedSnapshot() {
	cached, err := models.BuildSnapshot(feedDataset(s.now))
	s.Require().NoError(err)
	cached.Source = "cache"
	s.Require().NoError(s.store.Save(context.Background(), cached))

	svc := s.newService()
	svc.Seed(context.Background())

	s.Equal("cache", svc.Diagnostics().Source)
	s.Equal(100.0, svc.Get("Karnataka").Index)
}

func (s *RegionalServiceSuite) TestSeedIgnoresStoreErrors() {
	failing := mocks.NewMockSnapshotStore(s.ctrl)
	failing.EXPECT().Load(gomock.Any()).Return(nil, errors.New("redis down"))
	svc := s.newService(WithStore(failing))

	svc.Seed(context.Background())
	s.Equal(models.StaticSource, svc.Diagnostics().Source)
}

func (s *RegionalServiceSuite) TestRunStopsOnCancel() {
	s.feed.EXPECT().Fetch(gomock.Any()).Return(feedDataset(s.now), nil).AnyTimes()
	svc := s.newService()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("Run did not stop after cancellation")
	}
	s.Equal("test-feed", svc.Diagnostics().Source)
}
