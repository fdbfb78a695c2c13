package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"gigsafe/internal/activity/models"
	credmodels "gigsafe/internal/credential/models"
	"gigsafe/internal/platform/postgres"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/sentinel"
	txcontext "gigsafe/pkg/platform/tx"
)

// PostgresStore persists activities and verdicts. The activities table has no
// UPDATE path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const activityColumns = `
	id, worker_id, occurred_at, hour_of_day, distance_km, duration_min,
	avg_speed_kmh, max_speed_kmh, route_deviation, night_flag, weekend, region,
	lat, lon, city, visit_type, access_attempt, transaction_amount, ingested_at
`

func (s *PostgresStore) Append(ctx context.Context, a models.Activity) error {
	var lat, lon sql.NullFloat64
	var city sql.NullString
	if a.Location != nil {
		lat = sql.NullFloat64{Float64: a.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: a.Location.Lon, Valid: true}
		city = sql.NullString{String: a.Location.City, Valid: a.Location.City != ""}
	}
	query := `INSERT INTO activities (` + activityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		string(a.ID), string(a.WorkerID), a.Timestamp, a.HourOfDay, a.DistanceKm, a.DurationMin,
		a.AvgSpeedKmh, a.MaxSpeedKmh, a.RouteDeviation, a.NightFlag, a.Weekend, a.Region,
		lat, lon, city, string(a.VisitType), a.AccessAttempt, a.TransactionAmount, a.IngestedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, activityID id.ActivityID) (models.Activity, error) {
	row := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE id = $1`, string(activityID))
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Activity{}, sentinel.ErrNotFound
		}
		return models.Activity{}, fmt.Errorf("find activity: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListByWorker(ctx context.Context, workerID id.WorkerID, limit int) ([]models.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities WHERE worker_id = $1 ORDER BY seq DESC`
	args := []any{string(workerID)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Latest(ctx context.Context, workerID id.WorkerID) (models.Activity, error) {
	return s.latestWhere(ctx, workerID, "")
}

func (s *PostgresStore) LatestWithLocation(ctx context.Context, workerID id.WorkerID) (models.Activity, error) {
	return s.latestWhere(ctx, workerID, " AND lat IS NOT NULL")
}

func (s *PostgresStore) latestWhere(ctx context.Context, workerID id.WorkerID, cond string) (models.Activity, error) {
	row := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE worker_id = $1`+cond+` ORDER BY seq DESC LIMIT 1`,
		string(workerID))
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Activity{}, sentinel.ErrNotFound
		}
		return models.Activity{}, fmt.Errorf("latest activity: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) SaveVerdict(ctx context.Context, v models.Verdict) error {
	query := `
		INSERT INTO verdicts (activity_id, is_anomaly, score, cluster, source, classified_at, prior_count, prior_anomalous)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (activity_id) DO UPDATE SET
			is_anomaly = EXCLUDED.is_anomaly,
			score = EXCLUDED.score,
			cluster = EXCLUDED.cluster,
			source = EXCLUDED.source,
			classified_at = EXCLUDED.classified_at,
			prior_count = EXCLUDED.prior_count,
			prior_anomalous = EXCLUDED.prior_anomalous
	`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		string(v.ActivityID), v.IsAnomaly, v.Score, v.Cluster, v.Source, v.ClassifiedAt,
		v.PriorCount, v.PriorAnomalous)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("save verdict: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindVerdict(ctx context.Context, activityID id.ActivityID) (models.Verdict, error) {
	verdicts, err := s.FindVerdicts(ctx, []id.ActivityID{activityID})
	if err != nil {
		return models.Verdict{}, err
	}
	v, ok := verdicts[activityID]
	if !ok {
		return models.Verdict{}, sentinel.ErrNotFound
	}
	return v, nil
}

func (s *PostgresStore) FindVerdicts(ctx context.Context, activityIDs []id.ActivityID) (map[id.ActivityID]models.Verdict, error) {
	out := make(map[id.ActivityID]models.Verdict, len(activityIDs))
	if len(activityIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(activityIDs))
	for i, aid := range activityIDs {
		keys[i] = string(aid)
	}
	rows, err := txcontext.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT activity_id, is_anomaly, score, cluster, source, classified_at, prior_count, prior_anomalous
		FROM verdicts WHERE activity_id = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("find verdicts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.Verdict
		var aid string
		if err := rows.Scan(&aid, &v.IsAnomaly, &v.Score, &v.Cluster, &v.Source, &v.ClassifiedAt,
			&v.PriorCount, &v.PriorAnomalous); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		v.ActivityID = id.ActivityID(aid)
		out[v.ActivityID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (models.Activity, error) {
	var (
		a             models.Activity
		aid, workerID string
		visitType     string
		lat, lon      sql.NullFloat64
		city          sql.NullString
	)
	err := row.Scan(
		&aid, &workerID, &a.Timestamp, &a.HourOfDay, &a.DistanceKm, &a.DurationMin,
		&a.AvgSpeedKmh, &a.MaxSpeedKmh, &a.RouteDeviation, &a.NightFlag, &a.Weekend, &a.Region,
		&lat, &lon, &city, &visitType, &a.AccessAttempt, &a.TransactionAmount, &a.IngestedAt,
	)
	if err != nil {
		return models.Activity{}, err
	}
	a.ID = id.ActivityID(aid)
	a.WorkerID = id.WorkerID(workerID)
	a.VisitType = models.VisitType(visitType)
	if lat.Valid && lon.Valid {
		a.Location = &credmodels.Location{Lat: lat.Float64, Lon: lon.Float64, City: city.String}
	}
	return a, nil
}
