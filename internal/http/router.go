package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/config"
	"github.com/sprout-escrow/backend/internal/http/handlers"
	"github.com/sprout-escrow/backend/internal/metrics"
	"github.com/sprout-escrow/backend/internal/middleware"
)

type Handlers struct {
	Health     *handlers.HealthHandler
	Wallet     *handlers.WalletHandler
	Escrow     *handlers.EscrowHandler
	Approval   *handlers.ApprovalHandler
	Navigation *handlers.NavigationHandler
	WS         *handlers.WSHub
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	m *metrics.Metrics,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))
	app.Use(m.Middleware())

	app.Get("/health", h.Health.Health)
	app.Get("/metrics", m.Handler())

	api := app.Group("/api/v1")

	// Rate-limited public endpoints, keyed by IP
	var limiter redis.Cmdable
	if rdb != nil {
		limiter = rdb
		api.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimitPerMinute, time.Minute))
	}

	// Wallet login (public)
	api.Get("/wallet/options", h.Wallet.Options)
	api.Post("/wallet/connect", h.Wallet.StartLogin)
	api.Get("/wallet/connect/:id", h.Wallet.LoginStatus)
	api.Delete("/wallet/connect/:id", h.Wallet.CancelLogin)
	api.Get("/approvals/:id/qr.png", h.Approval.QR)
	api.Post("/escrows/estimate", h.Escrow.Estimate)

	// Protected endpoints
	protected := api.Group("", protectedChain(cfg, log, limiter)...)

	// Wallet
	protected.Get("/me/wallet", h.Wallet.GetWallet)
	protected.Delete("/me/wallet", h.Wallet.DisconnectWallet)

	// Escrows
	protected.Get("/escrows", h.Escrow.ListEscrows)
	protected.Post("/escrows", h.Escrow.CreateEscrow)
	protected.Get("/escrows/:id", h.Escrow.GetEscrow)
	protected.Post("/escrows/:id/payment", h.Escrow.StartPayment)
	protected.Post("/escrows/:id/withdraw", h.Escrow.Withdraw)
	protected.Get("/escrows/:id/payout", h.Escrow.GetPayout)
	protected.Get("/escrows/:id/history", h.Escrow.GetHistory)

	// Approvals
	protected.Get("/approvals/:id", h.Approval.Status)
	protected.Delete("/approvals/:id", h.Approval.Cancel)

	// Navigation
	protected.Get("/navigation", h.Navigation.Current)
	protected.Post("/navigation", h.Navigation.Dispatch)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}

// protectedChain проверяет токен, потом считает запросы по кошельку:
// до AuthMiddleware кошелёк ещё неизвестен.
func protectedChain(cfg *config.Config, log *zap.Logger, limiter redis.Cmdable) []fiber.Handler {
	chain := []fiber.Handler{middleware.AuthMiddleware(cfg.JWTSecret, log)}
	if limiter != nil {
		chain = append(chain, middleware.RateLimitMiddleware(limiter, cfg.RateLimitPerMinute, time.Minute))
	}
	return chain
}
