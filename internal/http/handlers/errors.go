package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/http/dto"
	"github.com/sprout-escrow/backend/internal/middleware"
	"github.com/sprout-escrow/backend/internal/navigation"
	"github.com/sprout-escrow/backend/internal/services"
)

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

// serviceError maps service errors to a status code. Anything unknown is
// logged and reported as an internal error.
func serviceError(c *fiber.Ctx, log *zap.Logger, err error) error {
	resp := dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)}

	var verr *services.ValidationError
	var reqErr *approval.RequestError
	status := fiber.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = fiber.StatusBadRequest
		resp.Field = verr.Field
	case errors.Is(err, services.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, services.ErrLocked), errors.Is(err, services.ErrInvalidStatus):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrUnsupportedWallet):
		status = fiber.StatusBadRequest
	case errors.Is(err, navigation.ErrInvalidTransition), errors.Is(err, approval.ErrCancelled):
		status = fiber.StatusConflict
	case errors.Is(err, navigation.ErrUnknownMessage),
		errors.Is(err, navigation.ErrWalletRequired),
		errors.Is(err, navigation.ErrEscrowRequired):
		status = fiber.StatusBadRequest
	case errors.As(err, &reqErr):
		// удалённый API не ответил или ответил мусором
		status = fiber.StatusBadGateway
		log.Warn("remote request failed", zap.String("path", c.Path()), zap.Error(err))
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		resp.Error = "internal error"
	}
	return c.Status(status).JSON(resp)
}
