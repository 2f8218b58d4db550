package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Pinger is anything /health can ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

type redisPinger struct{ c *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// Dependencies returns the health checks for the api process.
func Dependencies(pool *pgxpool.Pool, rdb *redis.Client) map[string]Pinger {
	return map[string]Pinger{
		"postgres": pool,
		"redis":    redisPinger{rdb},
	}
}

// Check pings every dependency with a short timeout and reports "ok" or the error.
func Check(ctx context.Context, deps map[string]Pinger) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out := make(map[string]string, len(deps))
	healthy := true
	for name, p := range deps {
		if err := p.Ping(ctx); err != nil {
			out[name] = err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}
