package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigsafe/internal/alert/models"
	"gigsafe/internal/platform/postgres"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/sentinel"
	txcontext "gigsafe/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const alertColumns = `
	id, worker_id, activity_id, type, severity, score, message, state,
	raised_at, acknowledged_at, resolved_at
`

func (s *PostgresStore) Save(ctx context.Context, a models.Alert) error {
	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(a.ID), string(a.WorkerID), string(a.ActivityID), string(a.Type), string(a.Severity),
		a.Score, a.Message, string(a.State), a.RaisedAt, nullTime(a.AcknowledgedAt), nullTime(a.ResolvedAt),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Update is a compare-and-set on the stored state.
func (s *PostgresStore) Update(ctx context.Context, a models.Alert, expected models.State) error {
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		UPDATE alerts SET state = $2, acknowledged_at = $3, resolved_at = $4
		WHERE id = $1 AND state = $5`,
		uuid.UUID(a.ID), string(a.State), nullTime(a.AcknowledgedAt), nullTime(a.ResolvedAt), string(expected),
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.FindByID(ctx, a.ID); err != nil {
		return err
	}
	return sentinel.ErrConflict
}

func (s *PostgresStore) FindByID(ctx context.Context, alertID id.AlertID) (models.Alert, error) {
	row := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, uuid.UUID(alertID))
	a, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Alert{}, sentinel.ErrNotFound
		}
		return models.Alert{}, fmt.Errorf("find alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, f models.Filter) ([]models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.WorkerID != "" {
		args = append(args, string(f.WorkerID))
		where = append(where, "worker_id = $"+strconv.Itoa(len(args)))
	}
	if f.State != "" {
		args = append(args, string(f.State))
		where = append(where, "state = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY raised_at DESC, seq DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := make([]models.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountOpen(ctx context.Context) (int, error) {
	var n int
	err := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE state = $1`, string(models.StateOpen)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open alerts: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var (
		a                          models.Alert
		alertID                    uuid.UUID
		workerID, activityID       string
		typ, severity, state       string
		acknowledgedAt, resolvedAt sql.NullTime
	)
	err := row.Scan(
		&alertID, &workerID, &activityID, &typ, &severity, &a.Score, &a.Message, &state,
		&a.RaisedAt, &acknowledgedAt, &resolvedAt,
	)
	if err != nil {
		return models.Alert{}, err
	}
	a.ID = id.AlertID(alertID)
	a.WorkerID = id.WorkerID(workerID)
	a.ActivityID = id.ActivityID(activityID)
	a.Type = models.Type(typ)
	a.Severity = models.Severity(severity)
	a.State = models.State(state)
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		a.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
