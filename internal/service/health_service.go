package service

import (
	"context"
	"errors"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/clock"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
)

type HealthStore interface {
	CountDuePosts(ctx context.Context, now time.Time) (int, error)
	QueueStats(ctx context.Context) (models.QueueStats, error)
}

type Health struct {
	Status      string            `json:"status"`
	CheckedAt   time.Time         `json:"checked_at"`
	DuePosts    int               `json:"due_posts"`
	Queue       models.QueueStats `json:"queue,omitempty"`
	QueueActive bool              `json:"queue_active"`
	Mode        string            `json:"mode"`
	DryRun      bool              `json:"dry_run"`
}

type HealthService interface {
	Check(ctx context.Context) (Health, error)
}

type healthService struct {
	store  HealthStore
	clock  clock.Clock
	mode   string
	dryRun bool
}

func NewHealthService(store HealthStore, clk clock.Clock, mode string, dryRun bool) HealthService {
	if clk == nil {
		clk = clock.System()
	}
	return &healthService{store: store, clock: clk, mode: mode, dryRun: dryRun}
}

// Check reports due approved posts and queue counts. A missing queue table is reported, not
// treated as unhealthy.
func (s *healthService) Check(ctx context.Context) (Health, error) {
	now := s.clock.Now().UTC()
	h := Health{Status: "ok", CheckedAt: now, Mode: s.mode, DryRun: s.dryRun}

	due, err := s.store.CountDuePosts(ctx, now)
	if err != nil {
		return h, err
	}
	h.DuePosts = due

	stats, err := s.store.QueueStats(ctx)
	switch {
	case errors.Is(err, queue.ErrQueueUnavailable):
		h.Status = "degraded"
	case err != nil:
		return h, err
	default:
		h.Queue = stats
		h.QueueActive = true
	}
	return h, nil
}
