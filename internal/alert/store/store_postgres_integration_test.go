//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gigsafe/internal/alert/models"
	"gigsafe/internal/alert/store"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/sentinel"
	"gigsafe/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.now = time.Date(2025, 3, 12, 23, 30, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "alerts"))
}

func (s *PostgresStoreSuite) alert(workerID id.WorkerID, typ models.Type, raisedAt time.Time) models.Alert {
	return models.Alert{
		ID:         id.NewAlertID(),
		WorkerID:   workerID,
		ActivityID: "TRP-1",
		Type:       typ,
		Severity:   models.SeverityHigh,
		Score:      74.79,
		Message:    "max speed 95 km/h",
		State:      models.StateOpen,
		RaisedAt:   raisedAt,
	}
}

func (s *PostgresStoreSuite) TestLifecycle() {
	ctx := context.Background()
	a := s.alert("DRV00009", models.TypeRashDriving, s.now)
	s.Require().NoError(s.store.Save(ctx, a))
	s.ErrorIs(s.store.Save(ctx, a), sentinel.ErrConflict)

	acked, _, err := a.Acknowledge(s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().NoError(s.store.Update(ctx, acked, models.StateOpen))
	s.ErrorIs(s.store.Update(ctx, acked, models.StateOpen), sentinel.ErrConflict)

	got, err := s.store.FindByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StateAcknowledged, got.State)
	s.Require().NotNil(got.AcknowledgedAt)
	s.Nil(got.ResolvedAt)

	missing := s.alert("DRV00009", models.TypeRashDriving, s.now)
	s.ErrorIs(s.store.Update(ctx, missing, models.StateOpen), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListAndCount() {
	ctx := context.Background()
	first := s.alert("DRV00009", models.TypeRashDriving, s.now)
	second := s.alert("DRV00009", models.TypeRouteDeviation, s.now.Add(time.Minute))
	other := s.alert("DRV00010", models.TypeUnusualTiming, s.now.Add(2*time.Minute))
	for _, a := range []models.Alert{first, second, other} {
		s.Require().NoError(s.store.Save(ctx, a))
	}
	resolved, _ := other.Resolve(s.now.Add(3 * time.Minute))
	s.Require().NoError(s.store.Update(ctx, resolved, models.StateOpen))

	all, err := s.store.List(ctx, models.Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(other.ID, all[0].ID)

	mine, err := s.store.List(ctx, models.Filter{WorkerID: "DRV00009", Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(second.ID, mine[0].ID)

	open, err := s.store.List(ctx, models.Filter{State: models.StateOpen})
	s.Require().NoError(err)
	s.Len(open, 2)

	n, err := s.store.CountOpen(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}
