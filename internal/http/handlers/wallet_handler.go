package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/http/dto"
	"github.com/sprout-escrow/backend/internal/middleware"
	"github.com/sprout-escrow/backend/internal/models"
	"github.com/sprout-escrow/backend/internal/services"
)

type WalletService interface {
	Options() []models.WalletOption
	StartLogin(ctx context.Context, session, kind string) (approval.View, error)
	LoginStatus(ctx context.Context, requestID, session string) (*services.LoginSession, error)
	CancelLogin(requestID, session string) bool
	GetWallet(ctx context.Context, address string) (*models.Wallet, error)
	Disconnect(ctx context.Context, address string) error
}

type WalletHandler struct {
	walletService WalletService
	log           *zap.Logger
}

func NewWalletHandler(walletService WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{walletService: walletService, log: log}
}

// Options возвращает кошельки для страницы подключения.
// GET /wallet/options
func (h *WalletHandler) Options(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.walletService.Options()})
}

// StartLogin создаёт запрос на подпись логина в кошельке.
// POST /wallet/connect
func (h *WalletHandler) StartLogin(c *fiber.Ctx) error {
	var req dto.StartLoginRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if req.Session == "" {
		req.Session = uuid.NewString()
	}

	v, err := h.walletService.StartLogin(c.Context(), req.Session, req.Kind)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: dto.ApprovalResponse{
		View:    v,
		Session: req.Session,
		QRURL:   qrPath(v.RequestID),
	}})
}

// HeaderLoginSession несёт session, выданный в ответе POST /wallet/connect.
const HeaderLoginSession = "X-Login-Session"

func loginSession(c *fiber.Ctx) string {
	if s := c.Get(HeaderLoginSession); s != "" {
		return s
	}
	return c.Query("session")
}

// LoginStatus опрашивается страницей подключения; после подписи отдаёт токен.
// Без session того же браузера запрос не найден.
// GET /wallet/connect/:id
func (h *WalletHandler) LoginStatus(c *fiber.Ctx) error {
	s, err := h.walletService.LoginStatus(c.Context(), c.Params("id"), loginSession(c))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: s})
}

// CancelLogin
// DELETE /wallet/connect/:id
func (h *WalletHandler) CancelLogin(c *fiber.Ctx) error {
	if !h.walletService.CancelLogin(c.Params("id"), loginSession(c)) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "login request not found"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	w, err := h.walletService.GetWallet(c.Context(), middleware.GetWallet(c))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}

// DisconnectWallet отключает кошелёк.
// DELETE /me/wallet
func (h *WalletHandler) DisconnectWallet(c *fiber.Ctx) error {
	if err := h.walletService.Disconnect(c.Context(), middleware.GetWallet(c)); err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}
