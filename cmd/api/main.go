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

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/config"
	"github.com/sprout-escrow/backend/internal/db"
	"github.com/sprout-escrow/backend/internal/events"
	apphttp "github.com/sprout-escrow/backend/internal/http"
	"github.com/sprout-escrow/backend/internal/http/handlers"
	"github.com/sprout-escrow/backend/internal/metrics"
	"github.com/sprout-escrow/backend/internal/navigation"
	"github.com/sprout-escrow/backend/internal/projection"
	"github.com/sprout-escrow/backend/internal/remote"
	"github.com/sprout-escrow/backend/internal/repositories"
	"github.com/sprout-escrow/backend/internal/services"
	"github.com/sprout-escrow/backend/internal/xrpl"
	"github.com/sprout-escrow/backend/migrations"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{AppName: "sprout-api", MaxConns: cfg.PostgresMaxConns}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	m := metrics.New(nil)

	// Repositories
	escrowRepo := repositories.NewEscrowRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Approvals
	remoteClient := remote.NewClient(cfg.RemoteAPIURL, cfg.RemoteAPIKey, cfg.RemoteTimeout, log)
	approvals := approval.NewManager(ctx, approval.ManagerConfig{
		Interval:    cfg.ApprovalPollInterval,
		MaxDuration: cfg.ApprovalMaxDuration,
		Retention:   cfg.ApprovalRetention,
	}, m, log)
	go approvals.Run(ctx, time.Minute)

	// Live escrow feed
	feed := projection.NewFeed(escrowRepo, m, log)
	if err := feed.Listen(ctx, subscriber); err != nil {
		log.Fatal("failed to subscribe escrow feed", zap.Error(err))
	}

	nav := navigation.NewRouter(cfg.XRPLNetwork, publisher, log)

	// Services
	walletService := services.NewWalletService(remoteClient, approvals, walletRepo, auditRepo, publisher, nav, cfg, log)
	escrowService := services.NewEscrowService(remoteClient, approvals, escrowRepo, payoutRepo, auditRepo, publisher, nav,
		xrpl.NewExplorer(cfg.ExplorerBaseURL), log)

	// Handlers
	wsHub := handlers.NewWSHub(cfg.JWTSecret, feed, nav, subscriber, log)
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to start ws hub", zap.Error(err))
	}

	h := apphttp.Handlers{
		Health:     handlers.NewHealthHandler(db.Dependencies(pool, rdb)),
		Wallet:     handlers.NewWalletHandler(walletService, log),
		Escrow:     handlers.NewEscrowHandler(escrowService, log),
		Approval:   handlers.NewApprovalHandler(escrowService, approvals, log),
		Navigation: handlers.NewNavigationHandler(nav, log),
		WS:         wsHub,
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, m, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		approvals.Shutdown()
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("network", cfg.XRPLNetwork))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
