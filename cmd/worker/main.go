package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/config"
	"github.com/sprout-escrow/backend/internal/db"
	"github.com/sprout-escrow/backend/internal/events"
	"github.com/sprout-escrow/backend/internal/maturity"
	"github.com/sprout-escrow/backend/internal/metrics"
	"github.com/sprout-escrow/backend/internal/repositories"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "sprout-worker", MaxConns: 4}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New(nil)

	// Repos
	escrowRepo := repositories.NewEscrowRepo(pool)
	stateRepo := repositories.NewWorkerStateRepo(pool)

	publisher := events.NewRedisPublisher(rdb, log)
	sweeper := maturity.NewSweeper(escrowRepo, stateRepo, publisher, m, log)

	// metrics only; the worker has no API
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", m.Handler())
	go func() {
		if err := app.Listen(fmt.Sprintf(":%s", cfg.WorkerMetricsPort)); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down worker")
		cancel()
	}()

	log.Info("worker started", zap.Duration("sweep_interval", cfg.MaturitySweepInterval))

	if _, err := sweeper.Sweep(ctx, time.Now()); err != nil {
		log.Error("initial maturity sweep failed", zap.Error(err))
	}
	sweeper.Run(ctx, cfg.MaturitySweepInterval)

	_ = app.ShutdownWithTimeout(5 * time.Second)
}
