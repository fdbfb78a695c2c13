//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "gigsafe/pkg/domain"
	audit "gigsafe/pkg/platform/audit"
	auditpostgres "gigsafe/pkg/platform/audit/store/postgres"
	txcontext "gigsafe/pkg/platform/tx"
	"gigsafe/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events"))
}

func event(workerID id.WorkerID, action audit.AuditEvent, at time.Time) audit.Event {
	return audit.Event{
		Timestamp: at,
		WorkerID:  workerID,
		Action:    string(action),
		Requester: "ops-officer-7",
		RequestID: "req-1",
	}
}

func (s *AuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	at := time.Date(2025, 2, 10, 9, 30, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(ctx, event("DRV00009", audit.EventCredentialIssued, at)))
	s.Require().NoError(s.store.Append(ctx, event("DRV00009", audit.EventCredentialTampered, at.Add(time.Minute))))
	s.Require().NoError(s.store.Append(ctx, event("DRV00010", audit.EventWorkerRegistered, at.Add(2*time.Minute))))

	mine, err := s.store.ListByWorker(ctx, "DRV00009")
	s.Require().NoError(err)
	s.Require().Len(mine, 2)
	s.Equal(string(audit.EventCredentialTampered), mine[0].Action)
	s.Equal(audit.CategorySecurity, mine[0].Category)
	s.Equal(audit.CategoryCompliance, mine[1].Category)

	recent, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.Equal(id.WorkerID("DRV00010"), recent[0].WorkerID)
}

func (s *AuditStoreSuite) TestAppendJoinsTransaction() {
	ctx := context.Background()
	runner := txcontext.NewSQLRunner(s.postgres.DB)

	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, event("DRV00009", audit.EventCredentialIssued, time.Now())); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Require().ErrorIs(err, context.Canceled)

	events, err := s.store.ListByWorker(ctx, "DRV00009")
	s.Require().NoError(err)
	s.Empty(events)
}
