package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/voxscribe/backend/internal/core/services"
	"github.com/voxscribe/backend/internal/infrastructure/logger"
)

type StatsHandler struct {
	service *services.StatsService
	logger  *logger.Logger
}

func NewStatsHandler(service *services.StatsService, logger *logger.Logger) *StatsHandler {
	return &StatsHandler{service: service, logger: logger}
}

func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.service.Snapshot(c.UserContext())
	if err != nil {
		h.logger.Warnw("stats_snapshot_failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "queue statistics unavailable"})
	}
	return c.JSON(stats)
}
