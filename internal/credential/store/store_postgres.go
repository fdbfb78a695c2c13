package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gigsafe/internal/credential/models"
	"gigsafe/internal/platform/postgres"
	id "gigsafe/pkg/domain"
	"gigsafe/pkg/platform/sentinel"
	txcontext "gigsafe/pkg/platform/tx"
)

// PostgresStore persists workers in the workers table. The credential_hash
// column carries a unique index that doubles as the hash lookup index.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const workerColumns = `
	id, national_id, join_date, type, affiliation,
	authorization_expiry, aeps_enabled, credential_hash, issued_at,
	home_lat, home_lon, home_city, registered_at
`

func (s *PostgresStore) Create(ctx context.Context, w models.Worker) error {
	query := `INSERT INTO workers (` + workerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query, workerArgs(w)...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert worker: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, w models.Worker) error {
	query := `
		UPDATE workers SET
			national_id = $2, join_date = $3, type = $4, affiliation = $5,
			authorization_expiry = $6, aeps_enabled = $7, credential_hash = $8, issued_at = $9,
			home_lat = $10, home_lon = $11, home_city = $12, registered_at = $13
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFor(ctx, s.db).ExecContext(ctx, query, workerArgs(w)...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update worker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update worker rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, workerID id.WorkerID) (models.Worker, error) {
	row := txcontext.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE id = $1`, string(workerID))
	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Worker{}, sentinel.ErrNotFound
		}
		return models.Worker{}, fmt.Errorf("find worker by id: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (models.Worker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workerColumns+` FROM workers WHERE credential_hash = $1`, hash)
	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Worker{}, sentinel.ErrNotFound
		}
		return models.Worker{}, fmt.Errorf("find worker by hash: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByType(ctx context.Context) (map[models.WorkerType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM workers GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("count workers by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.WorkerType]int)
	for rows.Next() {
		var (
			typ   string
			count int
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scan worker count: %w", err)
		}
		counts[models.WorkerType(typ)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorker(row rowScanner) (models.Worker, error) {
	var (
		w          models.Worker
		workerID   string
		nationalID string
		typ        string
		expiry     sql.NullTime
		hash       sql.NullString
		issuedAt   sql.NullTime
		lat, lon   sql.NullFloat64
		city       sql.NullString
	)
	if err := row.Scan(
		&workerID, &nationalID, &w.JoinDate, &typ, &w.Affiliation,
		&expiry, &w.AePSEnabled, &hash, &issuedAt,
		&lat, &lon, &city, &w.RegisteredAt,
	); err != nil {
		return models.Worker{}, err
	}
	w.ID = id.WorkerID(workerID)
	w.NationalID = id.NationalID(nationalID)
	w.Type = models.WorkerType(typ)
	w.JoinDate = w.JoinDate.UTC()
	w.AuthorizationExpiry = expiry.Time
	w.CredentialHash = hash.String
	w.IssuedAt = issuedAt.Time
	if lat.Valid && lon.Valid {
		w.HomeLocation = &models.Location{Lat: lat.Float64, Lon: lon.Float64, City: city.String}
	}
	return w, nil
}

func workerArgs(w models.Worker) []any {
	var lat, lon sql.NullFloat64
	var city sql.NullString
	if w.HomeLocation != nil {
		lat = sql.NullFloat64{Float64: w.HomeLocation.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: w.HomeLocation.Lon, Valid: true}
		city = sql.NullString{String: w.HomeLocation.City, Valid: w.HomeLocation.City != ""}
	}
	return []any{
		string(w.ID),
		string(w.NationalID),
		w.JoinDate,
		string(w.Type),
		w.Affiliation,
		nullTime(w.AuthorizationExpiry),
		w.AePSEnabled,
		sql.NullString{String: w.CredentialHash, Valid: w.CredentialHash != ""},
		nullTime(w.IssuedAt),
		lat,
		lon,
		city,
		w.RegisteredAt,
	}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
