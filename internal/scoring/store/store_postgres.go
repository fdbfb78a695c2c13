package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"gigsafe/internal/scoring/models"
	id "gigsafe/pkg/domain"
	txcontext "gigsafe/pkg/platform/tx"
)

// PostgresStore keeps stats in worker_stats, one row per worker.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const statsColumns = `count, anomalous_count, sum_score, max_score, sum_avg_speed, recent, updated_at`

func (s *PostgresStore) Get(ctx context.Context, workerID id.WorkerID) (models.Stats, error) {
	row := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM worker_stats WHERE worker_id = $1`, string(workerID))
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Stats{}, nil
	}
	if err != nil {
		return models.Stats{}, fmt.Errorf("get worker stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Put(ctx context.Context, workerID id.WorkerID, st models.Stats) error {
	query := `
		INSERT INTO worker_stats (worker_id, ` + statsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (worker_id) DO UPDATE SET
			count = EXCLUDED.count,
			anomalous_count = EXCLUDED.anomalous_count,
			sum_score = EXCLUDED.sum_score,
			max_score = EXCLUDED.max_score,
			sum_avg_speed = EXCLUDED.sum_avg_speed,
			recent = EXCLUDED.recent,
			updated_at = EXCLUDED.updated_at
	`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		string(workerID), st.Count, st.AnomalousCount, st.SumScore, st.MaxScore, st.SumAvgSpeed,
		pq.Array(st.Recent), st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put worker stats: %w", err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) (map[id.WorkerID]models.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT worker_id, `+statsColumns+` FROM worker_stats`)
	if err != nil {
		return nil, fmt.Errorf("list worker stats: %w", err)
	}
	defer rows.Close()

	out := make(map[id.WorkerID]models.Stats)
	for rows.Next() {
		var workerID string
		var st models.Stats
		var recent pq.Float64Array
		if err := rows.Scan(&workerID, &st.Count, &st.AnomalousCount, &st.SumScore, &st.MaxScore,
			&st.SumAvgSpeed, &recent, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan worker stats: %w", err)
		}
		st.Recent = []float64(recent)
		out[id.WorkerID(workerID)] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate worker stats: %w", err)
	}
	return out, nil
}

func scanStats(row *sql.Row) (models.Stats, error) {
	var st models.Stats
	var recent pq.Float64Array
	err := row.Scan(&st.Count, &st.AnomalousCount, &st.SumScore, &st.MaxScore, &st.SumAvgSpeed, &recent, &st.UpdatedAt)
	st.Recent = []float64(recent)
	return st, err
}
