package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/lifecycle"
	"github.com/connorpauley-png/content-command-sub001/internal/repository"
	"github.com/connorpauley-png/content-command-sub001/internal/service"
)

// GetSubject returns the caller set by the auth middleware.
func GetSubject(c *fiber.Ctx) string {
	subject, _ := c.Locals("subject").(string)
	return subject
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrInvariant):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrGeneratorDisabled), errors.Is(err, service.ErrLibraryDisabled):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		slog.Error(err.Error(), "path", c.Path())
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
