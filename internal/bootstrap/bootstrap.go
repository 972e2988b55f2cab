// Package bootstrap assembles the publishing stack from configuration. The HTTP server and the
// contentctl CLI share it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	config "github.com/connorpauley-png/content-command-sub001/configs"
	job "github.com/connorpauley-png/content-command-sub001/internal/jobs"
	"github.com/connorpauley-png/content-command-sub001/internal/lifecycle"
	"github.com/connorpauley-png/content-command-sub001/internal/notify"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
	"github.com/connorpauley-png/content-command-sub001/internal/repository"
	"github.com/connorpauley-png/content-command-sub001/internal/scheduler"
	"github.com/connorpauley-png/content-command-sub001/internal/service"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
	"github.com/connorpauley-png/content-command-sub001/pkg/utils"
)

type Components struct {
	Config    *config.Config
	DB        *sql.DB
	Store     *repository.Store
	Catalog   platform.Catalog
	Gate      validation.Gate
	Platforms service.PlatformService
	Posts     service.PostService
	Schedule  service.ScheduleService
	Health    service.HealthService
	Engine    *queue.Engine
	Library   service.PhotoLibrary
	Refresh   *job.TokenRefreshJob
}

// Open connects to Postgres, applies migrations and wires every service. tasks may be nil, in
// which case deferred work (delayed enqueue, generation polling) is skipped.
func Open(ctx context.Context, cfg *config.Config, tasks queue.Enqueuer, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := repository.NewStore(db)
	if err := store.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	c, err := Wire(ctx, cfg, store, tasks, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.DB = db
	return c, nil
}

// Wire builds the services over an already opened store.
func Wire(ctx context.Context, cfg *config.Config, store *repository.Store, tasks queue.Enqueuer, logger *slog.Logger) (*Components, error) {
	catalog, err := platform.LoadCatalog(cfg.PlatformsFile)
	if err != nil {
		return nil, err
	}

	var cipher *utils.TokenCipher
	if cfg.SecretKey != "" {
		if cipher, err = utils.NewTokenCipher(cfg.SecretKey); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("SECRET_KEY is not set, stored account tokens are read as plain text")
	}

	platforms := service.NewPlatformService(store, cipher, StaticCredentials(cfg))
	if err := platforms.Reload(ctx); err != nil {
		logger.Warn("unable to load social accounts", "error", err)
	}

	gate := validation.New(catalog, cfg.EnhancedPrefix(), platforms.Connected)
	machine := lifecycle.Machine{RequiresMedia: catalog.RequiresMedia, PhotoSourceFor: catalog.PhotoSourceFor}
	notifier := notify.Logged(notify.FromConfig(cfg.DiscordWebhookID, cfg.DiscordWebhookToken), logger)

	var enhancer queue.Enhancer
	if cfg.R2.BucketName != "" && cfg.R2.PublicBaseURL != "" {
		r2, err := service.NewR2Service(ctx, cfg.R2)
		if err != nil {
			return nil, err
		}
		enhancer = service.NewEnhanceService(r2, cfg.EnhanceEndpoint, cfg.EnhancedPrefix(), logger)
	} else {
		logger.Info("R2 is not configured, photo enhancement disabled")
	}

	var generator service.Generator
	if cfg.AstriaAPIKey != "" && cfg.AstriaTuneID != "" {
		generator = service.NewAstriaService(cfg.AstriaAPIKey, cfg.AstriaTuneID, cfg.AstriaCallbackURL)
	}

	var library service.PhotoLibrary
	if cfg.DriveCredentials != "" && cfg.DriveFolderID != "" {
		drive, err := service.NewDriveService(ctx, cfg.DriveCredentials, cfg.DriveFolderID)
		if err != nil {
			return nil, err
		}
		library = drive
	}

	engine := queue.NewEngine(queue.Deps{
		Store:    store,
		Adapters: Adapters(cfg, catalog, platforms),
		Gate:     gate,
		Machine:  machine,
		Enhancer: enhancer,
		Notifier: notifier,
		Logger:   logger,
	}, queue.Options{
		BatchSize:       cfg.Queue.BatchSize,
		LegacyBatchSize: cfg.Queue.LegacyBatchSize,
		Workers:         cfg.Queue.Workers,
		MaxAttempts:     cfg.Queue.MaxAttempts,
		AdapterTimeout:  cfg.Queue.AdapterTimeout,
		StaleAfter:      cfg.Queue.StaleProcessingAfter,
		Legacy:          cfg.LegacyMode(),
	})

	posts := service.NewPostService(service.PostDeps{
		Store:     store,
		Catalog:   catalog,
		Machine:   machine,
		Gate:      gate,
		Generator: generator,
		Library:   library,
		Enhancer:  enhancer,
		Tasks:     tasks,
		Notifier:  notifier,
		Logger:    logger,
	}, service.PostOptions{
		MaxAttempts: cfg.Queue.MaxAttempts,
		LeadTime:    cfg.Scheduler.LeadTime,
	})

	schedule := service.NewScheduleService(store, posts, nil, scheduler.Options{
		MinSpacing: cfg.Scheduler.MinSpacing,
		LeadTime:   cfg.Scheduler.LeadTime,
	}, logger)

	var refresh *job.TokenRefreshJob
	if cipher != nil {
		refresh = job.NewTokenRefreshJob(store, cipher, job.OAuthConfigs(cfg), nil, logger, platforms.Reload)
	}

	mode := "queue"
	if cfg.LegacyMode() {
		mode = "legacy"
	}

	return &Components{
		Config:    cfg,
		Store:     store,
		Catalog:   catalog,
		Gate:      gate,
		Platforms: platforms,
		Posts:     posts,
		Schedule:  schedule,
		Health:    service.NewHealthService(store, nil, mode, cfg.Queue.DryRun),
		Engine:    engine,
		Library:   library,
		Refresh:   refresh,
	}, nil
}

func (c *Components) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// StaticCredentials maps the environment tokens onto platform keys. Connected accounts in the
// database take precedence.
func StaticCredentials(cfg *config.Config) platform.StaticCredentials {
	return platform.StaticCredentials{
		platform.Facebook:   {AccountID: cfg.FacebookPageID, AccessToken: cfg.FacebookPageToken},
		platform.Instagram:  {AccountID: cfg.InstagramAccountID, AccessToken: cfg.InstagramToken},
		platform.IGPersonal: {AccountID: cfg.IGPersonalAccountID, AccessToken: cfg.IGPersonalToken},
		platform.LinkedIn:   {AccountID: cfg.LinkedInOrgID, AccessToken: cfg.LinkedInToken},
		platform.X:          {AccessToken: cfg.Twitter.AccessToken},
	}
}

// Adapters registers one adapter per catalog platform. Platforms without an integration get an
// adapter that always fails, and DRY_RUN replaces every adapter with a no-op.
func Adapters(cfg *config.Config, catalog platform.Catalog, creds platform.CredentialSource) *platform.Registry {
	var adapters []platform.Adapter
	for _, key := range catalog.Keys() {
		spec, _ := catalog.Lookup(key)

		var a platform.Adapter
		switch {
		case !spec.Available:
			a = platform.Unavailable(spec)
		case key == platform.Instagram || key == platform.IGPersonal:
			a = platform.NewInstagramAdapter(key, creds)
		case key == platform.Facebook:
			a = platform.NewFacebookAdapter(creds)
		case key == platform.LinkedIn:
			a = platform.NewLinkedInAdapter(creds)
		case key == platform.X:
			a = platform.NewTwitterAdapter(platform.TwitterKeys{
				ConsumerKey:    cfg.Twitter.ConsumerKey,
				ConsumerSecret: cfg.Twitter.ConsumerSecret,
				AccessToken:    cfg.Twitter.AccessToken,
				AccessSecret:   cfg.Twitter.AccessTokenSecret,
			}, spec.CharLimit)
		default:
			a = platform.Unavailable(spec)
		}
		adapters = append(adapters, a)
	}

	registry := platform.NewRegistry(adapters...)
	if cfg.Queue.DryRun {
		registry = registry.Wrap(platform.DryRun)
	}
	return registry
}
