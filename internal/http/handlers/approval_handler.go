package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/sprout-escrow/backend/internal/approval"
	"github.com/sprout-escrow/backend/internal/http/dto"
	"github.com/sprout-escrow/backend/internal/middleware"
)

const qrSize = 256

// ApprovalLookup finds an approval by request ID, whoever owns it.
type ApprovalLookup interface {
	Get(requestID string) (*approval.Poller, bool)
}

type ApprovalHandler struct {
	escrowService EscrowService
	approvals     ApprovalLookup
	log           *zap.Logger
}

func NewApprovalHandler(escrowService EscrowService, approvals ApprovalLookup, log *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{escrowService: escrowService, approvals: approvals, log: log}
}

func qrPath(requestID string) string {
	if requestID == "" {
		return ""
	}
	return "/api/v1/approvals/" + requestID + "/qr.png"
}

// Status отдаёт состояние подписи платежа.
// GET /approvals/:id
func (h *ApprovalHandler) Status(c *fiber.Ctx) error {
	v, err := h.escrowService.ApprovalStatus(middleware.GetWallet(c), c.Params("id"))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ApprovalResponse{View: v, QRURL: qrPath(v.RequestID)}})
}

// Cancel останавливает опрос; повторная отмена ничего не меняет.
// DELETE /approvals/:id
func (h *ApprovalHandler) Cancel(c *fiber.Ctx) error {
	v, err := h.escrowService.CancelApproval(middleware.GetWallet(c), c.Params("id"))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: v})
}

// QR renders the sign link of a pending request for scanning with the wallet app.
// GET /approvals/:id/qr.png
func (h *ApprovalHandler) QR(c *fiber.Ctx) error {
	p, ok := h.approvals.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "approval not found"})
	}
	if p.State() != approval.StatePending {
		return c.Status(fiber.StatusGone).JSON(dto.ErrorResponse{Error: "approval is " + string(p.State())})
	}

	png, err := qrcode.Encode(p.Request().Reference, qrcode.Medium, qrSize)
	if err != nil {
		h.log.Error("failed to render qr code", zap.String("request_id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}
