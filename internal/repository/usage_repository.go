package repository

import (
	"context"
	"database/sql"
)

// UsageRepository backs the quota enforcer with an atomic per-day counter.
type UsageRepository struct {
	DB *sql.DB
}

// Increment is the single atomic operation the quota design requires: an
// upsert that adds n in the database, never read-modify-write in Go.
func (r *UsageRepository) Increment(ctx context.Context, tenantID, day string, n int) error {
	query := `
        INSERT INTO daily_usage (tenant_id, day, count)
        VALUES ($1, $2, $3)
        ON CONFLICT (tenant_id, day) DO UPDATE
        SET count = daily_usage.count + EXCLUDED.count
    `
	_, err := r.DB.ExecContext(ctx, query, tenantID, day, n)
	return err
}

func (r *UsageRepository) Get(ctx context.Context, tenantID, day string) (int64, error) {
	var count int64
	err := r.DB.QueryRowContext(ctx,
		`SELECT count FROM daily_usage WHERE tenant_id=$1 AND day=$2`,
		tenantID, day).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}
