package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/service"
)

type ScheduleHandler struct {
	s service.ScheduleService
}

func NewScheduleHandler(s service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{s: s}
}

func (h *ScheduleHandler) Fill(c *fiber.Ctx) error {
	resp, err := h.s.Fill(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
