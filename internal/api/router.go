package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/connorpauley-png/content-command-sub001/internal/api/handlers"
	"github.com/connorpauley-png/content-command-sub001/internal/api/middleware"
)

type Handlers struct {
	Auth       *middleware.AuthMiddleware
	Publish    *handlers.PublishHandler
	Posts      *handlers.PostHandler
	Validation *handlers.ValidationHandler
	Schedule   *handlers.ScheduleHandler
	Platform   *handlers.PlatformHandler
}

func NewApp(accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    10 * 1024 * 1024, // 10 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error(err.Error(), "path", c.Path())
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	if accessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))
	return app
}

func Register(app *fiber.App, h Handlers) {
	app.Post("/webhooks/astria", h.Platform.AstriaCallback)

	api := app.Group("/api")
	api.Use(h.Auth.AuthMiddleware())

	// cron trigger
	api.Get("/cron/publish", h.Publish.Health)
	api.Post("/cron/publish", h.Publish.Publish)

	api.Post("/posts", h.Posts.CreatePost)
	api.Get("/posts", h.Posts.ListPosts)
	api.Get("/posts/:id", h.Posts.GetPost)
	api.Get("/posts/:id/validate", h.Posts.ValidatePost)
	api.Post("/posts/:id/actions", h.Posts.Action)

	api.Post("/validate", h.Validation.ValidateDraft)
	api.Post("/match", h.Validation.MatchPhotos)

	api.Post("/schedule/fill", h.Schedule.Fill)

	api.Get("/accounts", h.Platform.ListSocialAccounts)
	api.Get("/photos/library", h.Platform.LibraryPhotos)
}
