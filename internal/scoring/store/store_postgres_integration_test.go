//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gigsafe/internal/scoring/models"
	"gigsafe/internal/scoring/store"
	"gigsafe/pkg/testutil/containers"
)

type PostgresStatsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStatsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStatsSuite))
}

func (s *PostgresStatsSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStatsSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "worker_stats"))
}

func (s *PostgresStatsSuite) TestPutGetAll() {
	ctx := context.Background()
	at := time.Date(2025, 3, 12, 23, 30, 0, 0, time.UTC)

	empty, err := s.store.Get(ctx, "DRV00009")
	s.Require().NoError(err)
	s.Zero(empty.Count)

	st := models.Stats{}.Add(74.79, true, 48, 20, at).Add(30, false, 40, 20, at)
	s.Require().NoError(s.store.Put(ctx, "DRV00009", st))

	got, err := s.store.Get(ctx, "DRV00009")
	s.Require().NoError(err)
	s.Equal(2, got.Count)
	s.Equal(1, got.AnomalousCount)
	s.Equal([]float64{74.79, 30}, got.Recent)
	s.InDelta(st.MeanScore(), got.MeanScore(), 1e-9)

	st = st.Add(50, false, 44, 20, at)
	s.Require().NoError(s.store.Put(ctx, "DRV00009", st))
	s.Require().NoError(s.store.Put(ctx, "DRV00010", models.Stats{}.Add(10, false, 30, 20, at)))

	all, err := s.store.All(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal(3, all["DRV00009"].Count)
}
