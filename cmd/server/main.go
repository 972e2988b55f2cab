package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/robfig/cron"

	config "github.com/connorpauley-png/content-command-sub001/configs"
	"github.com/connorpauley-png/content-command-sub001/internal/api"
	"github.com/connorpauley-png/content-command-sub001/internal/api/handlers"
	"github.com/connorpauley-png/content-command-sub001/internal/api/middleware"
	"github.com/connorpauley-png/content-command-sub001/internal/bootstrap"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	ctx := context.Background()
	components, err := bootstrap.Open(ctx, cfg, client, logger)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer closeComponents(components)

	app := api.NewApp(true)
	api.Register(app, api.Handlers{
		Auth:       middleware.NewAuthMiddleware(cfg.SecretKey, cfg.CronSecret),
		Publish:    handlers.NewPublishHandler(components.Engine, client, components.Health, cfg.Queue.PublishInterval),
		Posts:      handlers.NewPostHandler(components.Posts),
		Validation: handlers.NewValidationHandler(components.Gate),
		Schedule:   handlers.NewScheduleHandler(components.Schedule),
		Platform:   handlers.NewPlatformHandler(components.Platforms, components.Posts, components.Library, cfg.CronSecret),
	})

	// cron jobs
	c := cron.New()
	c.AddFunc("@every "+cfg.Queue.PublishInterval.String(), func() {
		if err := queue.EnqueueDrain(client, cfg.Queue.PublishInterval); err != nil {
			slog.Info(err.Error())
		}
	})
	if components.Refresh != nil {
		c.AddFunc("@every 00h10m00s", components.Refresh.RefreshTokens)
	}
	c.Start()
	defer c.Stop()

	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})
	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishDrain, components.Engine.HandleDrainTask)
		mux.HandleFunc(queue.TaskTypeEnqueuePost, components.Posts.HandleEnqueuePostTask)
		mux.HandleFunc(queue.TaskTypeGenerationCheck, components.Posts.HandleGenerationCheckTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is listening on %s", cfg.ListenAddr)

	gracefulShutdown(app, server)
}

func closeComponents(c *bootstrap.Components) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := c.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}
	server.Shutdown()

	log.Println("Server shutdown complete.")
}
