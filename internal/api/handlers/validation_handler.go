package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/fingerprint"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/transfer"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
)

type ValidationHandler struct {
	gate validation.Gate
}

func NewValidationHandler(gate validation.Gate) *ValidationHandler {
	return &ValidationHandler{gate: gate}
}

// ValidateDraft checks unsaved content as if it were approved for publishing.
func (h *ValidationHandler) ValidateDraft(c *fiber.Ctx) error {
	var req transfer.ValidationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	findings := h.gate.Validate(validation.Input{
		Content:   req.Content,
		Platforms: req.Platforms,
		PhotoURLs: req.PhotoURLs,
		Status:    models.PostStatusApproved,
	})
	return c.Status(fiber.StatusOK).JSON(validationResponse(findings))
}

// MatchPhotos pairs before and after photos by their scene fingerprints.
func (h *ValidationHandler) MatchPhotos(c *fiber.Ctx) error {
	var req transfer.MatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	resp := transfer.MatchResponse{Pairs: []transfer.MatchedPair{}}
	for _, p := range fingerprint.Match(req.Photos) {
		resp.Pairs = append(resp.Pairs, transfer.MatchedPair{Pair: p, Caption: fingerprint.Caption(p)})
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
