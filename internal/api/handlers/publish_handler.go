package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/queue"
	"github.com/connorpauley-png/content-command-sub001/internal/service"
)

type Runner interface {
	Run(ctx context.Context) (queue.RunSummary, error)
}

// PublishHandler is the external trigger for the publish engine.
type PublishHandler struct {
	engine Runner
	tasks  queue.Enqueuer
	health service.HealthService
	unique time.Duration
}

// NewPublishHandler runs the engine in-request when tasks is nil; otherwise a drain task is
// enqueued for the asynq worker.
func NewPublishHandler(engine Runner, tasks queue.Enqueuer, health service.HealthService, unique time.Duration) *PublishHandler {
	return &PublishHandler{engine: engine, tasks: tasks, health: health, unique: unique}
}

func (h *PublishHandler) Publish(c *fiber.Ctx) error {
	if h.tasks != nil && !c.QueryBool("sync", false) {
		if err := queue.EnqueueDrain(h.tasks, h.unique); err != nil {
			slog.Warn("enqueue publish drain failed, running inline", "error", err)
		} else {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"message": "Publish run enqueued",
			})
		}
	}

	summary, err := h.engine.Run(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *PublishHandler) Health(c *fiber.Ctx) error {
	health, err := h.health.Check(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(health)
}
