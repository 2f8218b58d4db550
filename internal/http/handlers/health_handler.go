package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sprout-escrow/backend/internal/db"
	"github.com/sprout-escrow/backend/internal/http/dto"
)

type HealthHandler struct {
	deps map[string]db.Pinger
}

func NewHealthHandler(deps map[string]db.Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	checks, ok := db.Check(c.Context(), h.deps)
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.HealthResponse{Status: "degraded", Checks: checks})
	}
	return c.JSON(dto.HealthResponse{Status: "ok", Checks: checks})
}
