package handlers

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/service"
	"github.com/connorpauley-png/content-command-sub001/internal/transfer"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	var req transfer.PostCreation
	if err := c.BodyParser(&req); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.CreatePost(c.Context(), &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	if postID := c.Query("id"); postID != "" {
		post, err := h.s.PostInfo(c.Context(), postID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), models.PostStatus(c.Query("status")), c.QueryInt("limit", 100))
	if err != nil {
		return respondError(c, err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.s.PostInfo(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

// ValidatePost runs the gate over a stored post.
func (h *PostHandler) ValidatePost(c *fiber.Ctx) error {
	findings, err := h.s.Validate(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(validationResponse(findings))
}

func (h *PostHandler) Action(c *fiber.Ctx) error {
	var req transfer.WorkflowAction
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	ctx := c.Context()
	postID := c.Params("id")

	var (
		post *models.Post
		err  error
	)
	switch req.Action {
	case transfer.ActionApproveIdea:
		post, err = h.s.ApproveIdea(ctx, postID)
	case transfer.ActionApproveTextOnly:
		post, err = h.s.ApproveTextOnly(ctx, postID)
	case transfer.ActionAddPhotos:
		post, err = h.s.AddPhotos(ctx, postID, service.PhotoRequest{Prompt: req.Prompt, Library: req.Library, URLs: req.PhotoURLs})
	case transfer.ActionCheckGeneration:
		post, err = h.s.CheckGeneration(ctx, postID)
	case transfer.ActionApprovePhotos:
		post, err = h.s.ApprovePhotos(ctx, postID, req.SelectedPhotos)
	case transfer.ActionReject:
		post, err = h.s.Reject(ctx, postID, req.Reason)
	case transfer.ActionEnqueue:
		var n int
		n, err = h.s.EnqueueForPublishing(ctx, postID)
		if err == nil {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"post_id": postID, "enqueued": n})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Unknown action %q", req.Action),
		})
	}
	if err != nil {
		return respondError(c, err)
	}

	slog.Info("workflow action", "action", req.Action, "post_id", postID, "status", post.Status, "by", GetSubject(c))
	return c.Status(fiber.StatusOK).JSON(post)
}

func validationResponse(findings []validation.Finding) transfer.ValidationResponse {
	errs, warnings := validation.Split(findings)
	if errs == nil {
		errs = []validation.Finding{}
	}
	if warnings == nil {
		warnings = []validation.Finding{}
	}
	return transfer.ValidationResponse{
		Valid:      !validation.HasBlockingErrors(findings),
		Errors:     errs,
		Warnings:   warnings,
		ByPlatform: validation.GroupByPlatform(findings),
		Skipped:    validation.SkippedPlatforms(findings),
		Summary:    validation.Summary(findings),
	}
}
