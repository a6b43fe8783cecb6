package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/airpulse/airpulse/internal/airquality"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the observations table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS observations (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			site_id TEXT NOT NULL,
			pm25 DOUBLE PRECISION NOT NULL,
			pm25_24h DOUBLE PRECISION NOT NULL,
			aqi_pm25 INTEGER NOT NULL,
			aqi_pm25_24h INTEGER NOT NULL,
			advice TEXT NOT NULL DEFAULT '',
			advice_24h TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION,
			total_sample INTEGER,
			until TIMESTAMPTZ,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS observations_site_recorded_idx
			ON observations (site_id, recorded_at DESC);
	`

	_, err := r.pool.Exec(ctx, ddl)
	return err
}

// Insert archives an observation for a site.
func (r *PostgresRepository) Insert(ctx context.Context, siteID string, obs airquality.Observation) error {
	query := `
		INSERT INTO observations (
			site_id, pm25, pm25_24h, aqi_pm25, aqi_pm25_24h,
			advice, advice_24h, confidence, total_sample, until, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	recordedAt := obs.UpdatedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		siteID,
		obs.PM25,
		obs.PM2524h,
		obs.AQI,
		obs.AQI24h,
		obs.Advice,
		obs.Advice24h,
		obs.Confidence,
		obs.TotalSample,
		obs.Until,
		recordedAt,
	)
	return err
}

// List returns archived entries for a site, newest first.
func (r *PostgresRepository) List(ctx context.Context, siteID string, opts QueryOptions) ([]Entry, error) {
	from, to, limit := opts.window()

	query := `
		SELECT
			id, site_id, pm25, pm25_24h, aqi_pm25, aqi_pm25_24h,
			advice, advice_24h, confidence, total_sample, until, recorded_at
		FROM observations
		WHERE site_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at DESC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, siteID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID,
			&e.SiteID,
			&e.Observation.PM25,
			&e.Observation.PM2524h,
			&e.Observation.AQI,
			&e.Observation.AQI24h,
			&e.Observation.Advice,
			&e.Observation.Advice24h,
			&e.Observation.Confidence,
			&e.Observation.TotalSample,
			&e.Observation.Until,
			&e.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		e.Observation.UpdatedAt = e.RecordedAt
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Prune deletes entries recorded before the given time.
func (r *PostgresRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM observations WHERE recorded_at < $1`

	tag, err := r.pool.Exec(ctx, query, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
