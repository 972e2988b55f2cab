package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
)

// runLegacy publishes due approved posts to all their platforms in one pass. Nothing is retried:
// the post lands directly in posted, partial or failed.
func (e *Engine) runLegacy(ctx context.Context) (RunSummary, error) {
	now := e.clock.Now()
	summary := RunSummary{Mode: ModeLegacy}

	posts, err := e.store.SelectDuePosts(ctx, now, e.opts.LegacyBatchSize)
	if err != nil {
		return summary, fmt.Errorf("select due posts: %w", err)
	}
	summary.Selected = len(posts)

	for i := range posts {
		post := &posts[i]
		status, completed, failed, err := e.publishLegacy(ctx, post)
		summary.Completed += completed
		summary.Failed += failed
		summary.Exhausted += failed
		if err != nil {
			e.logger.Error("legacy publish", "post_id", post.ID, "error", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("post %s: %v", post.ID, err))
			continue
		}
		if summary.Posts == nil {
			summary.Posts = make(map[string]models.PostStatus)
		}
		summary.Posts[post.ID] = status
	}
	return summary, nil
}

func (e *Engine) publishLegacy(ctx context.Context, post *models.Post) (models.PostStatus, int, int, error) {
	log := e.logger.With("post_id", post.ID)
	findings := e.gate.ForPost(*post)

	if validation.HasBlockingErrors(findings) {
		errs, _ := validation.Split(findings)
		note := "Blocked: " + joinMessages(errs)
		if err := e.finish(ctx, post, models.PostStatusFailed, note); err != nil {
			return post.Status, 0, 0, err
		}
		return models.PostStatusFailed, 0, 0, nil
	}

	media, err := e.enhancer.Enhance(ctx, post.PhotoURLs)
	if err != nil {
		log.Warn("photo enhancement incomplete, publishing originals where needed", "error", err)
	}
	if len(media) != len(post.PhotoURLs) {
		media = post.PhotoURLs
	}

	skipped := validation.SkippedPlatforms(findings)
	postedIDs := make(map[string]string)
	var failures []string
	for _, key := range post.Platforms {
		if reason, ok := skipped[key]; ok {
			failures = append(failures, fmt.Sprintf("%s: skipped: %s", key, reason))
			continue
		}
		adapter, ok := e.adapters.Get(key)
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: no adapter registered", key))
			continue
		}
		res := e.publish(ctx, adapter, platform.Content{Text: post.Content, Media: media})
		if res.Success {
			postedIDs[key] = res.ExternalPostID
			log.Info("published", "platform", key, "external_post_id", res.ExternalPostID)
			continue
		}
		log.Warn("publish failed", "platform", key, "error", res.Error)
		failures = append(failures, fmt.Sprintf("%s: %s", key, res.Error))
	}

	if len(postedIDs) > 0 {
		now := e.clock.Now()
		if err := e.store.UpdatePostStatus(ctx, post.ID, models.PostPatch{PostedIDs: postedIDs, UpdatedAt: now}); err != nil {
			return post.Status, len(postedIDs), len(failures), err
		}
		if post.PostedIDs == nil {
			post.PostedIDs = make(map[string]string, len(postedIDs))
		}
		for k, v := range postedIDs {
			post.PostedIDs[k] = v
		}
	}

	target := models.PostStatusPosted
	switch {
	case len(postedIDs) == 0:
		target = models.PostStatusFailed
	case len(failures) > 0:
		target = models.PostStatusPartial
	}

	note := ""
	if len(failures) > 0 {
		sort.Strings(failures)
		note = "Failed platforms: " + strings.Join(failures, "; ")
	}
	if err := e.finish(ctx, post, target, note); err != nil {
		return post.Status, len(postedIDs), len(failures), err
	}
	return target, len(postedIDs), len(failures), nil
}

func (e *Engine) finish(ctx context.Context, post *models.Post, target models.PostStatus, note string) error {
	patch, err := e.machine.Transition(post, target, e.clock.Now())
	if err != nil {
		return err
	}
	if note != "" {
		notes := appendNote(post.Notes, note)
		patch.Notes = &notes
	}
	if err := e.store.UpdatePostStatus(ctx, post.ID, patch); err != nil {
		return err
	}
	if target != models.PostStatusPosted {
		if err := e.notifier.Notify(ctx, fmt.Sprintf("Post %s finished as %s. %s", post.ID, target, note)); err != nil {
			e.logger.Warn("notify legacy outcome", "post_id", post.ID, "error", err)
		}
	}
	return nil
}

func joinMessages(findings []validation.Finding) string {
	msgs := make([]string, 0, len(findings))
	for _, f := range findings {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, " ")
}
