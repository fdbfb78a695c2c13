//go:build integration

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	actstore "gigsafe/internal/activity/store"
	credmodels "gigsafe/internal/credential/models"
	"gigsafe/internal/oracle"
	regmodels "gigsafe/internal/regional/models"
	"gigsafe/internal/scoring/engine"
	"gigsafe/internal/scoring/models"
	"gigsafe/internal/scoring/store"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	"gigsafe/pkg/platform/sentinel"
	txcontext "gigsafe/pkg/platform/tx"
	"gigsafe/pkg/requestcontext"
	"gigsafe/pkg/testutil/containers"
)

// flakyStats fails the first failPuts writes.
type flakyStats struct {
	*store.PostgresStore
	failPuts int
}

func (f *flakyStats) Put(ctx context.Context, workerID id.WorkerID, stats models.Stats) error {
	if f.failPuts > 0 {
		f.failPuts--
		return errors.New("connection reset")
	}
	return f.PostgresStore.Put(ctx, workerID, stats)
}

type PostgresIngestSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	activities *actstore.PostgresStore
	stats      *flakyStats
	svc        *Service
}

func TestPostgresIngestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresIngestSuite))
}

func (s *PostgresIngestSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.activities = actstore.NewPostgres(s.postgres.DB)
	s.stats = &flakyStats{PostgresStore: store.NewPostgres(s.postgres.DB)}

	eng, err := engine.New(engine.Weighted4(), engine.Aggregation{Policy: engine.PolicyCumulativeMean})
	s.Require().NoError(err)
	workers := workerMap{"DRV00009": {ID: "DRV00009", Type: credmodels.WorkerTypeDelivery}}
	regional := fixedRegion{lookup: regmodels.Lookup{Region: "rajasthan", Index: 76.8}}
	s.svc = New(s.activities, s.stats, workers, oracle.NewRuleOracle(), regional, eng,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTxRunner(txcontext.NewSQLRunner(s.postgres.DB)),
	)
}

func (s *PostgresIngestSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "verdicts", "activities", "worker_stats"))
}

func (s *PostgresIngestSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(2025, 3, 13, 9, 0, 0, 0, time.UTC))
}

func (s *PostgresIngestSuite) TestFailedStatsWriteRollsBackActivity() {
	s.stats.failPuts = 1

	_, err := s.svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.activities.FindByID(s.ctx(), "TRP-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.activities.FindVerdict(s.ctx(), "TRP-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	retried, err := s.svc.Ingest(s.ctx(), highRiskTrip("TRP-1"))
	s.Require().NoError(err)
	s.Equal(models.StatusScored, retried.Score.Status)

	rescored, err := s.svc.Rescore(s.ctx(), "TRP-1")
	s.Require().NoError(err)
	s.Equal(retried.Score.Score, rescored.Score)
	s.Equal(retried.Score.Tier, rescored.Tier)
}
