package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	config "github.com/connorpauley-png/content-command-sub001/configs"
	"github.com/connorpauley-png/content-command-sub001/internal/bootstrap"
)

type commandContext struct {
	envFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(envFlag *string) *commandContext {
	return &commandContext{envFlag: envFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if c.envFlag != nil {
			if path := strings.TrimSpace(*c.envFlag); path != "" {
				if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					c.configErr = err
					return
				}
			}
		}
		c.config = config.LoadConfig()
	})
	return c.config, c.configErr
}

// withComponents opens the database and wires the services for the duration of fn.
func (c *commandContext) withComponents(ctx context.Context, fn func(*bootstrap.Components) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURI})
	defer client.Close()

	components, err := bootstrap.Open(ctx, cfg, client, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components)
}
