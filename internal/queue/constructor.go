package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/clock"
	"github.com/connorpauley-png/content-command-sub001/internal/lifecycle"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/notify"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
)

// ErrQueueUnavailable is returned by a Store whose queue table does not exist. The engine then
// falls back to the synchronous publish path.
var ErrQueueUnavailable = errors.New("publish queue unavailable")

// Store is the persistence the engine needs.
type Store interface {
	SelectDueQueueItems(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error)
	UpdateQueueItem(ctx context.Context, id string, patch models.QueueItemPatch) error
	ListQueueItemsByPost(ctx context.Context, postID string) ([]models.QueueItem, error)
	ResetStaleProcessing(ctx context.Context, startedBefore, now time.Time) (int, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePostStatus(ctx context.Context, postID string, patch models.PostPatch) error
	SelectDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error)
}

// Enhancer improves photos before they are published. The result always has the input's length
// and order; a URL that could not be enhanced is returned as-is and reported in the error.
type Enhancer interface {
	Enhance(ctx context.Context, urls []string) ([]string, error)
}

type Options struct {
	BatchSize       int
	LegacyBatchSize int
	Workers         int
	MaxAttempts     int
	AdapterTimeout  time.Duration
	StaleAfter      time.Duration
	Legacy          bool
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.LegacyBatchSize <= 0 {
		o.LegacyBatchSize = 10
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = models.DefaultMaxAttempts
	}
	if o.AdapterTimeout <= 0 {
		o.AdapterTimeout = 60 * time.Second
	}
	return o
}

type Engine struct {
	store    Store
	adapters *platform.Registry
	gate     validation.Gate
	machine  lifecycle.Machine
	enhancer Enhancer
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	opts     Options
}

type Deps struct {
	Store    Store
	Adapters *platform.Registry
	Gate     validation.Gate
	Machine  lifecycle.Machine
	Enhancer Enhancer
	Notifier notify.Notifier
	Clock    clock.Clock
	Logger   *slog.Logger
}

func NewEngine(deps Deps, opts Options) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop()
	}
	if deps.Enhancer == nil {
		deps.Enhancer = passthrough{}
	}
	return &Engine{
		store:    deps.Store,
		adapters: deps.Adapters,
		gate:     deps.Gate,
		machine:  deps.Machine,
		enhancer: deps.Enhancer,
		notifier: deps.Notifier,
		clock:    deps.Clock,
		logger:   deps.Logger,
		opts:     opts.withDefaults(),
	}
}

type passthrough struct{}

func (passthrough) Enhance(ctx context.Context, urls []string) ([]string, error) { return urls, nil }

const (
	TaskTypePublishDrain    = "publish:drain"
	TaskTypeGenerationCheck = "generation:check"
	TaskTypeEnqueuePost     = "post:enqueue"
)

type EnqueuePostPayload struct {
	PostID string `json:"post_id"`
}

type GenerationCheckPayload struct {
	PostID  string `json:"post_id"`
	Attempt int    `json:"attempt"`
}
