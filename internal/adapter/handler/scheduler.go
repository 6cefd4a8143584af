package handler

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/agbanzy/Spendly-v4--sub000/internal/core/scheduler"
)

type SchedulerHandler struct {
	Scheduler *scheduler.Scheduler
}

// RunOnce triggers one scheduler tick on demand. Serialized against the
// background ticker by the scheduler's own single-flight guard.
func (h *SchedulerHandler) RunOnce(c *fiber.Ctx) error {
	if err := h.Scheduler.RunOnce(c.Context()); err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "tick completed"})
}
