package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/escrowcalc"
	"github.com/sprout-escrow/backend/internal/http/dto"
	"github.com/sprout-escrow/backend/internal/middleware"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/services"
)

type EscrowService interface {
	Dashboard(ctx context.Context, owner string) (*services.Dashboard, error)
	Get(ctx context.Context, owner, id string) (*models.EscrowView, error)
	History(ctx context.Context, owner, id string) ([]models.AuditLog, error)
	Estimate(amount float64, asset string, days int) (escrowcalc.Estimate, error)
	Create(ctx context.Context, sender string, in services.CreateEscrowInput) (*models.EscrowView, error)
	StartPayment(ctx context.Context, sender, escrowID string) (approval.View, error)
	ApprovalStatus(owner, requestID string) (approval.View, error)
	CancelApproval(owner, requestID string) (approval.View, error)
	Withdraw(ctx context.Context, owner, escrowID string) (*models.PayoutSummary, error)
	PayoutSummary(ctx context.Context, owner, escrowID string) (*models.PayoutSummary, error)
}

type EscrowHandler struct {
	escrowService EscrowService
	log           *zap.Logger
}

func NewEscrowHandler(escrowService EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowService: escrowService, log: log}
}

// ListEscrows is the dashboard: every escrow where the wallet is sender or receiver.
// GET /escrows
func (h *EscrowHandler) ListEscrows(c *fiber.Ctx) error {
	d, err := h.escrowService.Dashboard(c.Context(), middleware.GetWallet(c))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: d})
}

// GET /escrows/:id
func (h *EscrowHandler) GetEscrow(c *fiber.Ctx) error {
	v, err := h.escrowService.Get(c.Context(), middleware.GetWallet(c), c.Params("id"))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: v})
}

// GetHistory отдаёт журнал действий по эскроу.
// GET /escrows/:id/history
func (h *EscrowHandler) GetHistory(c *fiber.Ctx) error {
	logs, err := h.escrowService.History(c.Context(), middleware.GetWallet(c), c.Params("id"))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}

// Estimate считает доходность для формы создания.
// POST /escrows/estimate
func (h *EscrowHandler) Estimate(c *fiber.Ctx) error {
	var req dto.EstimateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	est, err := h.escrowService.Estimate(req.Amount, req.Asset, req.LockPeriodDays)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: est})
}

// POST /escrows
func (h *EscrowHandler) CreateEscrow(c *fiber.Ctx) error {
	var req dto.CreateEscrowRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	v, err := h.escrowService.Create(c.Context(), middleware.GetWallet(c), services.CreateEscrowInput{
		Title:          req.Title,
		Asset:          req.Asset,
		Amount:         req.Amount,
		LockPeriodDays: req.LockPeriodDays,
		ReceiverWallet: req.ReceiverWallet,
	})
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: v})
}

// StartPayment создаёт запрос на подпись платежа; результат приходит
// через GET /approvals/:id или websocket.
// POST /escrows/:id/payment
func (h *EscrowHandler) StartPayment(c *fiber.Ctx) error {
	v, err := h.escrowService.StartPayment(c.Context(), middleware.GetWallet(c), c.Params("id"))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: dto.ApprovalResponse{
		View:  v,
		QRURL: qrPath(v.RequestID),
	}})
}

// POST /escrows/:id/withdraw
func (h *EscrowHandler) Withdraw(c *fiber.Ctx) error {
	sum, err := h.escrowService.Withdraw(c.Context(), middleware.GetWallet(c), c.Params("id"))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: sum})
}

// GET /escrows/:id/payout
func (h *EscrowHandler) GetPayout(c *fiber.Ctx) error {
	sum, err := h.escrowService.PayoutSummary(c.Context(), middleware.GetWallet(c), c.Params("id"))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: sum})
}
