package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/http/dto"
	"github.com/sprout-escrow/backend/internal/middleware"
	"github.com/sprout-escrow/backend/internal/navigation"
)

type Navigator interface {
	Current(session string) navigation.Location
	Dispatch(ctx context.Context, session string, msg navigation.Message) (navigation.Location, error)
}

// NavigationHandler lets the client send page messages. The session is the
// authenticated wallet, so every tab of a wallet follows the same location.
type NavigationHandler struct {
	nav Navigator
	log *zap.Logger
}

func NewNavigationHandler(nav Navigator, log *zap.Logger) *NavigationHandler {
	return &NavigationHandler{nav: nav, log: log}
}

// GET /navigation
func (h *NavigationHandler) Current(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.nav.Current(middleware.GetWallet(c))})
}

// POST /navigation
func (h *NavigationHandler) Dispatch(c *fiber.Ctx) error {
	var req dto.NavigateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Type == "" {
		return badRequest(c, "type is required")
	}

	wallet := middleware.GetWallet(c)
	msg := navigation.Message{Type: req.Type, EscrowID: req.EscrowID}
	if req.Type == navigation.MsgWalletConnected {
		// кошелёк берём из токена, а не из тела
		msg.Wallet = wallet
	}

	loc, err := h.nav.Dispatch(c.Context(), wallet, msg)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: loc})
}
