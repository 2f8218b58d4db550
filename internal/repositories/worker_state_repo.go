package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkerStateRepo stores small cursors for background jobs.
type WorkerStateRepo struct {
	pool *pgxpool.Pool
}

func NewWorkerStateRepo(pool *pgxpool.Pool) *WorkerStateRepo {
	return &WorkerStateRepo{pool: pool}
}

// GetTime returns the stored cursor, or zero time if none was stored yet.
func (r *WorkerStateRepo) GetTime(ctx context.Context, key string) (time.Time, error) {
	var v string
	err := r.pool.QueryRow(ctx, `SELECT value FROM worker_state WHERE key = $1`, key).Scan(&v)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, v)
}

func (r *WorkerStateRepo) SetTime(ctx context.Context, key string, t time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO worker_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, t.UTC().Format(time.RFC3339Nano))
	return err
}
