package handlers

import (
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/service"
)

type PlatformHandler struct {
	ps      service.PlatformService
	posts   service.PostService
	library service.PhotoLibrary
	secret  string
}

func NewPlatformHandler(ps service.PlatformService, posts service.PostService, library service.PhotoLibrary, webhookSecret string) *PlatformHandler {
	return &PlatformHandler{
		ps:      ps,
		posts:   posts,
		library: library,
		secret:  webhookSecret,
	}
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	accounts, err := h.ps.List(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *PlatformHandler) LibraryPhotos(c *fiber.Ctx) error {
	if h.library == nil {
		return respondError(c, service.ErrLibraryDisabled)
	}
	photos, err := h.library.RecentPhotos(c.Context(), c.QueryInt("limit", 12))
	if err != nil {
		return respondError(c, err)
	}
	if photos == nil {
		photos = []service.LibraryPhoto{}
	}
	return c.Status(fiber.StatusOK).JSON(photos)
}

// AstriaCallback receives finished prompt notifications. The callback URL carries the shared
// secret as ?secret=.
func (h *PlatformHandler) AstriaCallback(c *fiber.Ctx) error {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.Query("secret")), []byte(h.secret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid callback secret",
		})
	}

	job, err := service.ParseAstriaCallback(c.Body())
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	post, err := h.posts.GenerationCallback(c.Context(), job)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"post_id": post.ID,
		"status":  post.Status,
	})
}
