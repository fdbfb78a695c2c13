package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	actmodels "gigsafe/internal/activity/models"
	actstore "gigsafe/internal/activity/store"
	alertmodels "gigsafe/internal/alert/models"
	alertservice "gigsafe/internal/alert/service"
	alertstore "gigsafe/internal/alert/store"
	credmodels "gigsafe/internal/credential/models"
	"gigsafe/internal/oracle"
	"gigsafe/internal/oracle/mocks"
	regmodels "gigsafe/internal/regional/models"
	"gigsafe/internal/scoring/engine"
	"gigsafe/internal/scoring/models"
	"gigsafe/internal/scoring/store"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/requestcontext"
)

type workerMap map[id.WorkerID]credmodels.Worker

func (m workerMap) Get(_ context.Context, workerID id.WorkerID) (credmodels.Worker, error) {
	w, ok := m[workerID]
	if !ok {
		return credmodels.Worker{}, credmodels.ErrUnknownWorker
	}
	return w, nil
}

type fixedRegion struct {
	lookup regmodels.Lookup
}

func (f fixedRegion) Get(string) regmodels.Lookup { return f.lookup }

//go:generate mockgen -source=../../oracle/oracle.go -destination=../../oracle/mocks/oracle-mocks.go -package=mocks Oracle
type ScoringServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	oracle     *mocks.MockOracle
	activities *actstore.InMemoryStore
	stats      *store.InMemoryStore
	alerts     *alertstore.InMemoryStore
	now        time.Time
}

func TestScoringServiceSuite(t *testing.T) {
	suite.Run(t, new(ScoringServiceSuite))
}

func (s *ScoringServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.oracle = mocks.NewMockOracle(s.ctrl)
	s.activities = actstore.NewInMemory()
	s.stats = store.NewInMemory()
	s.alerts = alertstore.NewInMemory()
	s.now = time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC)
}

func (s *ScoringServiceSuite) newService(scheme engine.Scheme, o Oracle) *Service {
	return s.newServiceWith(s.activities, scheme, o)
}

func (s *ScoringServiceSuite) newServiceWith(activities ActivityStore, scheme engine.Scheme, o Oracle, opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(scheme, engine.Aggregation{Policy: engine.PolicyCumulativeMean})
	s.Require().NoError(err)
	workers := workerMap{
		"DRV00009": {ID: "DRV00009", Type: credmodels.WorkerTypeDelivery},
		"DRV00010": {ID: "DRV00010", Type: credmodels.WorkerTypeDelivery},
	}
	regional := fixedRegion{lookup: regmodels.Lookup{
		Region: "rajasthan",
		Index:  76.8,
		AsOf:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	dispatcher := alertservice.New(s.alerts, alertservice.WithLogger(logger))
	opts = append([]Option{WithLogger(logger), WithDispatcher(dispatcher)}, opts...)
	return New(activities, s.stats, workers, o, regional, eng, opts...)
}

type txLogKey struct{}

type txLog struct {
	ops []func() error
}

// stagedTx applies the writes made inside RunInTx only when fn succeeds.
type stagedTx struct{}

func (stagedTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	log := &txLog{}
	if err := fn(context.WithValue(ctx, txLogKey{}, log)); err != nil {
		return err
	}
	for _, op := range log.ops {
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}

func staged(ctx context.Context, op func() error) error {
	if log, ok := ctx.Value(txLogKey{}).(*txLog); ok {
		log.ops = append(log.ops, op)
		return nil
	}
	return op()
}

// stagedActivities joins stagedTx and fails the first failVerdicts verdict writes.
type stagedActivities struct {
	*actstore.InMemoryStore
	failVerdicts int
}

func (s *stagedActivities) Append(ctx context.Context, a actmodels.Activity) error {
	return staged(ctx, func() error { return s.InMemoryStore.Append(ctx, a) })
}

func (s *stagedActivities) SaveVerdict(ctx context.Context, v actmodels.Verdict) error {
	if s.failVerdicts > 0 {
		s.failVerdicts--
		return errors.New("disk full")
	}
	return staged(ctx, func() error { return s.InMemoryStore.SaveVerdict(ctx, v) })
}

func (s *ScoringServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func highRiskTrip(activityID id.ActivityID) actmodels.Activity {
	return actmodels.Activity{
		ID:             activityID,
		WorkerID:       "DRV00009",
		Timestamp:      time.Date(2025, 3, 12, 23, 30, 0, 0, time.UTC),
		DistanceKm:     12,
		DurationMin:    15,
		MaxSpeedKmh:    95,
		AvgSpeedKmh:    48,
		RouteDeviation: 35,
		Region:         "Rajasthan",
	}
}

func calmTrip(activityID id.ActivityID, workerID id.WorkerID) actmodels.Activity {
	return actmodels.Activity{
		ID:          activityID,
		WorkerID:    workerID,
		Timestamp:   time.Date(2025, 3, 12, 13, 0, 0, 0, time.UTC),
		DistanceKm:  5,
		DurationMin: 20,
		MaxSpeedKmh: 40,
		AvgSpeedKmh: 25,
		Region:      "Rajasthan",
	}
}

func flagged() actmodels.Verdict {
	return actmodels.Verdict{IsAnomaly: true, Score: -0.45, Cluster: 2, Source: "test"}
}

func (s *ScoringServiceSuite) TestHighRiskActivityRaisesHighRashDriving() {
	cases := []struct {
		scheme engine.Scheme
		score  float64
	}{
		{engine.Weighted4(), 74.79},
		{engine.Weighted5(), 64.46},
	}
	for _, tc := range cases {
		s.Run(tc.scheme.Name, func() {
			s.SetupTest()
			svc := s.newService(tc.scheme, s.oracle)
			s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(flagged(), nil)

			result, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-HIGH"))
			s.Require().NoError(err)

			s.Equal(models.StatusScored, result.Score.Status)
			s.InDelta(tc.score, result.Score.Score, 1e-9)
			s.Equal(models.TierHigh, result.Score.Tier)
			s.Require().NotNil(result.Verdict)
			s.Equal(id.ActivityID("TRP-HIGH"), result.Verdict.ActivityID)

			var rash *alertmodels.Alert
			for i := range result.Alerts {
				if result.Alerts[i].Type == alertmodels.TypeRashDriving {
					rash = &result.Alerts[i]
				}
			}
			s.Require().NotNil(rash)
			s.Equal(alertmodels.SeverityHigh, rash.Severity)
			s.Equal(result.Score.Score, rash.Score)

			cached, err := s.activities.FindVerdict(s.ctx(), "TRP-HIGH")
			s.Require().NoError(err)
			s.True(cached.IsAnomaly)
		})
	}
}

func (s *ScoringServiceSuite) TestOracleFailureLeavesActivityUnscored() {
	svc := s.newService(engine.Weighted4(), s.oracle)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{}, errors.New("connection refused"))

	result, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)
	s.Equal(models.StatusUnscored, result.Score.Status)
	s.Equal(models.ReasonOracleUnavailable, result.Score.UnscoredReason)
	s.Empty(result.Score.Tier)
	s.Nil(result.Verdict)
	s.Empty(result.Alerts)

	_, err = s.activities.FindByID(s.ctx(), "TRP-1")
	s.NoError(err, "unscored activity is still recorded")

	stats, err := s.stats.Get(s.ctx(), "DRV00009")
	s.Require().NoError(err)
	s.Zero(stats.Count)

	open, err := s.alerts.CountOpen(s.ctx())
	s.Require().NoError(err)
	s.Zero(open)
}

func (s *ScoringServiceSuite) TestOpenBreakerShortCircuits() {
	guarded := oracle.NewGuarded(s.oracle, time.Second)
	svc := s.newService(engine.Weighted4(), guarded)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{}, errors.New("down")).Times(5)

	for i := 0; i < 6; i++ {
		result, err := svc.Ingest(s.ctx(), calmTrip(id.NewActivityID(), "DRV00009"))
		s.Require().NoError(err)
		s.Equal(models.StatusUnscored, result.Score.Status)
	}
}

func (s *ScoringServiceSuite) TestDuplicateActivity() {
	svc := s.newService(engine.Weighted4(), s.oracle)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{Cluster: 0}, nil)

	_, err := svc.Ingest(s.ctx(), calmTrip("TRP-1", "DRV00009"))
	s.Require().NoError(err)

	_, err = svc.Ingest(s.ctx(), calmTrip("TRP-1", "DRV00009"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ScoringServiceSuite) TestUnknownWorkerAndInvalidActivity() {
	svc := s.newService(engine.Weighted4(), s.oracle)

	_, err := svc.Ingest(s.ctx(), calmTrip("TRP-1", "DRV99999"))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	bad := calmTrip("TRP-2", "DRV00009")
	bad.MaxSpeedKmh = 10
	_, err = svc.Ingest(s.ctx(), bad)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ScoringServiceSuite) TestMissingIDIsAssigned() {
	svc := s.newService(engine.Weighted4(), s.oracle)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{}, nil)

	result, err := svc.Ingest(s.ctx(), calmTrip("", "DRV00009"))
	s.Require().NoError(err)
	s.NotEmpty(result.Activity.ID)
	s.Equal(s.now, result.Activity.IngestedAt)
}

func (s *ScoringServiceSuite) TestStatsAndWorkerAggregate() {
	svc := s.newService(engine.Weighted4(), s.oracle)

	none, err := svc.AggregateWorkerScore(s.ctx(), "DRV00009")
	s.Require().NoError(err)
	s.Equal(models.StatusUnscored, none.Status)
	s.Equal(models.ReasonNoActivity, none.UnscoredReason)

	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(flagged(), nil)
	high, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)

	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{}, nil)
	calm, err := svc.Ingest(s.ctx(), calmTrip("TRP-2", "DRV00009"))
	s.Require().NoError(err)

	stats, err := s.stats.Get(s.ctx(), "DRV00009")
	s.Require().NoError(err)
	s.Equal(2, stats.Count)
	s.Equal(1, stats.AnomalousCount)

	agg, err := svc.AggregateWorkerScore(s.ctx(), "DRV00009")
	s.Require().NoError(err)
	s.Equal(models.ScopeWorker, agg.Scope)
	s.InDelta(models.Round2((high.Score.Score+calm.Score.Score)/2), agg.Score, 1e-9)

	_, err = svc.AggregateWorkerScore(s.ctx(), "DRV99999")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ScoringServiceSuite) TestSecondActivityUsesPriorHistory() {
	svc := s.newService(engine.Weighted4(), s.oracle)

	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(flagged(), nil)
	_, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)

	var seen actmodels.FeatureVector
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fv actmodels.FeatureVector) (actmodels.Verdict, error) {
			seen = fv
			return actmodels.Verdict{}, nil
		})
	result, err := svc.Ingest(s.ctx(), calmTrip("TRP-2", "DRV00009"))
	s.Require().NoError(err)

	s.InDelta(25.0-48.0, seen.SpeedVsSelf, 1e-9)
	var historical float64
	for _, c := range result.Score.Breakdown {
		if c.Factor == models.FactorHistorical {
			historical = c.Value
		}
	}
	s.Equal(100.0, historical, "the only prior activity was anomalous")
}

func (s *ScoringServiceSuite) TestRescoreReproducesIngestScore() {
	svc := s.newService(engine.Weighted4(), s.oracle)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(flagged(), nil).Times(2)

	first, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)

	rescored, err := svc.Rescore(s.ctx(), "TRP-1")
	s.Require().NoError(err)
	s.Equal(models.StatusScored, rescored.Status)
	s.Equal(first.Score.Score, rescored.Score)
	s.Equal(first.Score.Tier, rescored.Tier)
	s.Equal(first.Score.Breakdown, rescored.Breakdown)

	second := highRiskTrip("TRP-2")
	second.Timestamp = second.Timestamp.Add(time.Hour)
	_, err = svc.Ingest(s.ctx(), second)
	s.Require().NoError(err)

	rescored, err = svc.Rescore(s.ctx(), "TRP-1")
	s.Require().NoError(err)
	s.Equal(first.Score.Score, rescored.Score, "later activities are not part of this activity's history")

	_, err = svc.Rescore(s.ctx(), "TRP-404")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ScoringServiceSuite) TestFailedVerdictWriteCanBeRetried() {
	activities := &stagedActivities{InMemoryStore: s.activities, failVerdicts: 1}
	svc := s.newServiceWith(activities, engine.Weighted4(), s.oracle, WithTxRunner(stagedTx{}))
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(flagged(), nil).Times(2)

	_, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.activities.FindByID(s.ctx(), "TRP-1")
	s.Require().Error(err, "a failed ingest leaves no activity behind")
	stats, err := s.stats.Get(s.ctx(), "DRV00009")
	s.Require().NoError(err)
	s.Zero(stats.Count)

	retried, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)
	s.Equal(models.StatusScored, retried.Score.Status)

	rescored, err := svc.Rescore(s.ctx(), "TRP-1")
	s.Require().NoError(err)
	s.Equal(models.StatusScored, rescored.Status)
	s.Equal(retried.Score.Score, rescored.Score)
}

func (s *ScoringServiceSuite) TestRescoreUnscoredActivity() {
	svc := s.newService(engine.Weighted4(), s.oracle)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{}, errors.New("timeout"))

	_, err := svc.Ingest(s.ctx(), calmTrip("TRP-1", "DRV00009"))
	s.Require().NoError(err)

	rescored, err := svc.Rescore(s.ctx(), "TRP-1")
	s.Require().NoError(err)
	s.Equal(models.StatusUnscored, rescored.Status)
}

func (s *ScoringServiceSuite) TestHighRiskWorkers() {
	svc := s.newService(engine.Weighted4(), s.oracle)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(flagged(), nil)
	_, err := svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)

	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{}, nil)
	_, err = svc.Ingest(s.ctx(), calmTrip("TRP-2", "DRV00010"))
	s.Require().NoError(err)

	high, err := svc.HighRiskWorkers(s.ctx(), 10)
	s.Require().NoError(err)
	s.Require().Len(high, 1)
	s.Equal("DRV00009", high[0].SubjectID)
}

func (s *ScoringServiceSuite) TestSummarize() {
	svc := s.newService(engine.Weighted4(), s.oracle)

	empty, err := svc.Summarize(s.ctx())
	s.Require().NoError(err)
	s.Equal(models.Summary{}, empty)

	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(flagged(), nil)
	_, err = svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(actmodels.Verdict{}, nil)
	_, err = svc.Ingest(s.ctx(), calmTrip("TRP-2", "DRV00010"))
	s.Require().NoError(err)

	high, err := svc.AggregateWorkerScore(s.ctx(), "DRV00009")
	s.Require().NoError(err)
	calm, err := svc.AggregateWorkerScore(s.ctx(), "DRV00010")
	s.Require().NoError(err)

	summary, err := svc.Summarize(s.ctx())
	s.Require().NoError(err)
	s.Equal(2, summary.ScoredWorkers)
	s.Equal(1, summary.AnomaliesDetected)
	s.Equal(1, summary.HighRisk)
	s.InDelta(models.Round2((high.Score+calm.Score)/2), summary.AverageScore, 1e-9)
}

func (s *ScoringServiceSuite) TestOneWorkerFaultDoesNotBlockAnother() {
	block := make(chan struct{})
	svc := s.newService(engine.Weighted4(), s.oracle)
	s.oracle.EXPECT().Classify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fv actmodels.FeatureVector) (actmodels.Verdict, error) {
			if fv.WorkerID == "DRV00009" {
				<-block
				return actmodels.Verdict{}, errors.New("late failure")
			}
			return actmodels.Verdict{}, nil
		}).Times(2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = svc.Ingest(s.ctx(), calmTrip("TRP-1", "DRV00009"))
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := svc.Ingest(s.ctx(), calmTrip("TRP-2", "DRV00010"))
		s.NoError(err)
		s.Equal(models.StatusScored, result.Score.Status)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("ingest for another worker was blocked")
	}
	close(block)
	wg.Wait()
}
