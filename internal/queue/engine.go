package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connorpauley-png/content-command-sub001/internal/lifecycle"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
)

const (
	ModeQueue  = "queue"
	ModeLegacy = "legacy"

	backoffBase = time.Minute
)

// Backoff is the wait before the next attempt after attempts failures.
func Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 20 {
		attempts = 20
	}
	return backoffBase << attempts
}

type RunSummary struct {
	Mode       string                       `json:"mode"`
	StaleReset int                          `json:"stale_reset"`
	Selected   int                          `json:"selected"`
	Completed  int                          `json:"completed"`
	Failed     int                          `json:"failed"`
	Exhausted  int                          `json:"exhausted"`
	Posts      map[string]models.PostStatus `json:"posts,omitempty"`
	Errors     []string                     `json:"errors,omitempty"`
}

type summaryRecorder struct {
	mu sync.Mutex
	s  *RunSummary
}

func (r *summaryRecorder) item(completed, exhausted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case completed:
		r.s.Completed++
	case exhausted:
		r.s.Failed++
		r.s.Exhausted++
	default:
		r.s.Failed++
	}
}

func (r *summaryRecorder) post(id string, status models.PostStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.Posts == nil {
		r.s.Posts = make(map[string]models.PostStatus)
	}
	r.s.Posts[id] = status
}

func (r *summaryRecorder) err(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Errors = append(r.s.Errors, err.Error())
}

// Run drains due queue items once. Without a queue table, or in legacy mode, it publishes due
// approved posts synchronously instead.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	if e.opts.Legacy {
		return e.runLegacy(ctx)
	}

	now := e.clock.Now()
	summary := RunSummary{Mode: ModeQueue}

	if e.opts.StaleAfter > 0 {
		n, err := e.store.ResetStaleProcessing(ctx, now.Add(-e.opts.StaleAfter), now)
		if errors.Is(err, ErrQueueUnavailable) {
			return e.runLegacy(ctx)
		}
		if err != nil {
			return summary, fmt.Errorf("reset stale queue items: %w", err)
		}
		if n > 0 {
			e.logger.Warn("reset stale processing items", "count", n)
		}
		summary.StaleReset = n
	}

	items, err := e.store.SelectDueQueueItems(ctx, now, e.opts.BatchSize)
	if errors.Is(err, ErrQueueUnavailable) {
		e.logger.Warn("queue table missing, using legacy publish path")
		return e.runLegacy(ctx)
	}
	if err != nil {
		return summary, fmt.Errorf("select due queue items: %w", err)
	}
	summary.Selected = len(items)
	if len(items) == 0 {
		return summary, nil
	}

	rec := &summaryRecorder{s: &summary}
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)
	for _, group := range groupByPost(items) {
		g.Go(func() error {
			e.processPost(ctx, group, rec)
			return nil
		})
	}
	g.Wait()

	return summary, nil
}

// groupByPost keeps selection order for posts and for items within a post.
func groupByPost(items []models.QueueItem) [][]models.QueueItem {
	index := make(map[string]int)
	var groups [][]models.QueueItem
	for _, item := range items {
		i, ok := index[item.PostID]
		if !ok {
			i = len(groups)
			index[item.PostID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], item)
	}
	return groups
}

// processPost runs one post's items in order, so reconciliation for a post never races.
func (e *Engine) processPost(ctx context.Context, items []models.QueueItem, rec *summaryRecorder) {
	postID := items[0].PostID
	log := e.logger.With("post_id", postID)

	for _, item := range items {
		post, err := e.store.GetPost(ctx, postID)
		if err != nil {
			log.Error("load post for queue item", "queue_item_id", item.ID, "error", err)
			rec.err(fmt.Errorf("post %s: %w", postID, err))
			return
		}

		completed, exhausted, err := e.processItem(ctx, post, item)
		if err != nil {
			log.Error("queue item not recorded", "queue_item_id", item.ID, "error", err)
			rec.err(fmt.Errorf("queue item %s: %w", item.ID, err))
			continue
		}
		rec.item(completed, exhausted)

		status, err := e.reconcile(ctx, postID)
		if err != nil {
			log.Error("reconcile post status", "error", err)
			rec.err(fmt.Errorf("reconcile %s: %w", postID, err))
			continue
		}
		rec.post(postID, status)
	}
}

func (e *Engine) processItem(ctx context.Context, post *models.Post, item models.QueueItem) (completed, exhausted bool, err error) {
	now := e.clock.Now()
	attempts := item.Attempts + 1
	max := item.MaxAttempts
	if max <= 0 {
		max = e.opts.MaxAttempts
	}
	log := e.logger.With("post_id", item.PostID, "queue_item_id", item.ID, "platform", item.Platform, "attempts", attempts)

	processing := models.QueueStateProcessing
	if err := e.store.UpdateQueueItem(ctx, item.ID, models.QueueItemPatch{
		State:         &processing,
		Attempts:      &attempts,
		LastAttemptAt: &now,
	}); err != nil {
		return false, false, fmt.Errorf("mark processing: %w", err)
	}

	findings := e.gate.Validate(validation.Input{
		Content:   item.Content,
		Platforms: []string{item.Platform},
		PhotoURLs: item.PhotoURLs,
		Status:    post.Status,
	})
	if f, blocked := validation.BlockingFor(findings, item.Platform); blocked {
		return false, true, e.failTerminal(ctx, item, max, "validation: "+f.Message, log)
	}
	if reason, skipped := validation.SkippedPlatforms(findings)[item.Platform]; skipped {
		return false, true, e.failTerminal(ctx, item, max, "skipped: "+reason, log)
	}

	adapter, ok := e.adapters.Get(item.Platform)
	if !ok {
		return false, true, e.failTerminal(ctx, item, max, fmt.Sprintf("no adapter registered for %q", item.Platform), log)
	}

	result := e.publish(ctx, adapter, platform.Content{Text: item.Content, Media: item.PhotoURLs})
	done := e.clock.Now()

	if result.Success {
		state := models.QueueStateCompleted
		noError := ""
		externalID := result.ExternalPostID
		if err := e.store.UpdateQueueItem(ctx, item.ID, models.QueueItemPatch{
			State:          &state,
			CompletedAt:    &done,
			ExternalPostID: &externalID,
			ErrorMessage:   &noError,
		}); err != nil {
			return false, false, fmt.Errorf("mark completed: %w", err)
		}
		if err := e.store.UpdatePostStatus(ctx, item.PostID, models.PostPatch{
			PostedIDs: map[string]string{item.Platform: externalID},
			UpdatedAt: done,
		}); err != nil {
			return false, false, fmt.Errorf("record outcome: %w", err)
		}
		log.Info("published", "external_post_id", externalID)
		return true, false, nil
	}

	failed := models.QueueStateFailed
	message := result.Error
	if message == "" {
		message = "adapter reported failure"
	}
	next := done.Add(Backoff(attempts))
	if err := e.store.UpdateQueueItem(ctx, item.ID, models.QueueItemPatch{
		State:        &failed,
		NextRetryAt:  &next,
		ErrorMessage: &message,
	}); err != nil {
		return false, false, fmt.Errorf("mark failed: %w", err)
	}

	exhausted = attempts >= max
	if exhausted {
		log.Error("publish failed permanently", "error", message)
	} else {
		log.Warn("publish failed, will retry", "error", message, "next_retry_at", next)
	}
	return false, exhausted, nil
}

// failTerminal marks an item dead without waiting for its remaining attempts.
func (e *Engine) failTerminal(ctx context.Context, item models.QueueItem, max int, message string, log *slog.Logger) error {
	failed := models.QueueStateFailed
	if err := e.store.UpdateQueueItem(ctx, item.ID, models.QueueItemPatch{
		State:        &failed,
		Attempts:     &max,
		ErrorMessage: &message,
	}); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	log.Warn("queue item dropped", "reason", message)
	return nil
}

// publish calls the adapter with the per-call timeout. A timeout or panic is a failed result.
func (e *Engine) publish(ctx context.Context, adapter platform.Adapter, content platform.Content) platform.Result {
	ctx, cancel := context.WithTimeout(ctx, e.opts.AdapterTimeout)
	defer cancel()

	done := make(chan platform.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- platform.Failed("adapter panic: %v", r)
			}
		}()
		done <- adapter.Publish(ctx, content)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return platform.Failed("%s adapter timed out after %s", adapter.Platform(), e.opts.AdapterTimeout)
	}
}

// Aggregate folds a post's queue items into its publish status. ok is false while any item is
// still in flight or retryable.
func Aggregate(items []models.QueueItem) (status models.PostStatus, ok bool) {
	if len(items) == 0 {
		return "", false
	}
	completed, dead := 0, 0
	for i := range items {
		switch {
		case items[i].State == models.QueueStateCompleted:
			completed++
		case items[i].TerminallyFailed():
			dead++
		default:
			return "", false
		}
	}
	switch {
	case dead == 0:
		return models.PostStatusPosted, true
	case completed == 0:
		return models.PostStatusFailed, true
	default:
		return models.PostStatusPartial, true
	}
}

// Current keeps the newest item per platform. items must be in creation order. Items left over
// from an earlier publish round of a re-approved post drop out.
func Current(items []models.QueueItem) []models.QueueItem {
	index := make(map[string]int, len(items))
	var out []models.QueueItem
	for _, item := range items {
		if i, ok := index[item.Platform]; ok {
			out[i] = item
			continue
		}
		index[item.Platform] = len(out)
		out = append(out, item)
	}
	return out
}

func (e *Engine) reconcile(ctx context.Context, postID string) (models.PostStatus, error) {
	all, err := e.store.ListQueueItemsByPost(ctx, postID)
	if err != nil {
		return "", err
	}
	items := Current(all)
	post, err := e.store.GetPost(ctx, postID)
	if err != nil {
		return "", err
	}

	target, ok := Aggregate(items)
	if !ok || target == post.Status {
		return post.Status, nil
	}
	if !lifecycle.CanTransition(post.Status, target) {
		e.logger.Warn("post left its publish state, status not reconciled", "post_id", postID, "status", post.Status, "outcome", target)
		return post.Status, nil
	}

	patch, err := e.machine.Transition(post, target, e.clock.Now())
	if err != nil {
		return post.Status, err
	}
	if target != models.PostStatusPosted {
		notes := appendNote(post.Notes, failureNote(items))
		patch.Notes = &notes
	}
	if err := e.store.UpdatePostStatus(ctx, postID, patch); err != nil {
		return post.Status, err
	}

	e.logger.Info("post status reconciled", "post_id", postID, "from", post.Status, "to", target)
	if target != models.PostStatusPosted {
		if err := e.notifier.Notify(ctx, fmt.Sprintf("Post %s finished as %s. %s", postID, target, failureNote(items))); err != nil {
			e.logger.Warn("notify reconciliation", "post_id", postID, "error", err)
		}
	}
	return target, nil
}

func failureNote(items []models.QueueItem) string {
	var parts []string
	for _, item := range items {
		if item.State != models.QueueStateCompleted {
			parts = append(parts, fmt.Sprintf("%s: %s", item.Platform, item.ErrorMessage))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Failed platforms: " + strings.Join(parts, "; ")
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
