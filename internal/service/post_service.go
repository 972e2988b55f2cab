package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/connorpauley-png/content-command-sub001/internal/clock"
	"github.com/connorpauley-png/content-command-sub001/internal/dedup"
	"github.com/connorpauley-png/content-command-sub001/internal/lifecycle"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/notify"
	"github.com/connorpauley-png/content-command-sub001/internal/platform"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
	"github.com/connorpauley-png/content-command-sub001/internal/repository"
	"github.com/connorpauley-png/content-command-sub001/internal/transfer"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
)

var ErrInvalidRequest = errors.New("invalid request")

// PostStore is the persistence the workflow needs.
type PostStore interface {
	repository.PostRepository
	CreateQueueItems(ctx context.Context, items []models.QueueItem) (int, error)
}

type PhotoRequest struct {
	Prompt  string   `json:"prompt"`
	Library bool     `json:"library"`
	URLs    []string `json:"urls"`
}

type PostService interface {
	CreatePost(ctx context.Context, in *transfer.PostCreation) (*models.Post, error)
	PostInfo(ctx context.Context, postID string) (*models.Post, error)
	List(ctx context.Context, status models.PostStatus, limit int) ([]models.Post, error)
	Validate(ctx context.Context, postID string) ([]validation.Finding, error)

	ApproveIdea(ctx context.Context, postID string) (*models.Post, error)
	ApproveTextOnly(ctx context.Context, postID string) (*models.Post, error)
	AddPhotos(ctx context.Context, postID string, req PhotoRequest) (*models.Post, error)
	CheckGeneration(ctx context.Context, postID string) (*models.Post, error)
	GenerationCallback(ctx context.Context, job GenerationJob) (*models.Post, error)
	ApprovePhotos(ctx context.Context, postID string, selected []string) (*models.Post, error)
	Reject(ctx context.Context, postID, reason string) (*models.Post, error)

	ScheduleEnqueue(ctx context.Context, postID string) error
	EnqueueForPublishing(ctx context.Context, postID string) (int, error)

	HandleEnqueuePostTask(ctx context.Context, task *asynq.Task) error
	HandleGenerationCheckTask(ctx context.Context, task *asynq.Task) error
}

type PostDeps struct {
	Store     PostStore
	Catalog   platform.Catalog
	Machine   lifecycle.Machine
	Gate      validation.Gate
	Detector  *dedup.Detector
	Generator Generator
	Library   PhotoLibrary
	Enhancer  queue.Enhancer
	Tasks     queue.Enqueuer
	Notifier  notify.Notifier
	Clock     clock.Clock
	Logger    *slog.Logger
}

type PostOptions struct {
	MaxAttempts  int
	LeadTime     time.Duration
	PollInterval time.Duration
	MaxPolls     int
	LibraryCount int
}

type postService struct {
	store     PostStore
	catalog   platform.Catalog
	machine   lifecycle.Machine
	gate      validation.Gate
	detector  *dedup.Detector
	generator Generator
	library   PhotoLibrary
	enhancer  queue.Enhancer
	tasks     queue.Enqueuer
	notifier  notify.Notifier
	clock     clock.Clock
	logger    *slog.Logger
	opts      PostOptions
}

func NewPostService(deps PostDeps, opts PostOptions) PostService {
	if deps.Catalog == nil {
		deps.Catalog = platform.DefaultCatalog()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop()
	}
	if deps.Detector == nil {
		deps.Detector = dedup.NewDetector(deps.Store)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = models.DefaultMaxAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 36
	}
	if opts.LibraryCount <= 0 {
		opts.LibraryCount = 6
	}
	return &postService{
		store:     deps.Store,
		catalog:   deps.Catalog,
		machine:   deps.Machine,
		gate:      deps.Gate,
		detector:  deps.Detector,
		generator: deps.Generator,
		library:   deps.Library,
		enhancer:  deps.Enhancer,
		tasks:     deps.Tasks,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		logger:    deps.Logger,
		opts:      opts,
	}
}

func (s *postService) CreatePost(ctx context.Context, in *transfer.PostCreation) (*models.Post, error) {
	if strings.TrimSpace(in.Content) == "" {
		err := fmt.Errorf("%w: content cannot be empty", ErrInvalidRequest)
		slog.Info(err.Error())
		return nil, err
	}
	for _, key := range in.Platforms {
		if _, ok := s.catalog.Lookup(key); !ok {
			return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidRequest, key)
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	now := s.clock.Now()
	post := &models.Post{
		ID:          id,
		AccountID:   in.AccountID,
		Content:     in.Content,
		PhotoURLs:   in.PhotoURLs,
		Hashtags:    in.Hashtags,
		Tags:        in.Tags,
		Platforms:   in.Platforms,
		Status:      models.PostStatusIdea,
		PostedIDs:   map[string]string{},
		ContentHash: dedup.Hash(in.Content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		post.ScheduledAt = &at
	}
	if len(in.PhotoURLs) > 0 {
		post.PhotoSource = models.PhotoSourceManual
	}

	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	s.logger.Info("post created", "post_id", post.ID, "platforms", post.Platforms)
	return post, nil
}

func (s *postService) PostInfo(ctx context.Context, postID string) (*models.Post, error) {
	if postID == "" {
		return nil, fmt.Errorf("%w: post id is not valid", ErrInvalidRequest)
	}
	return s.store.GetPost(ctx, postID)
}

func (s *postService) List(ctx context.Context, status models.PostStatus, limit int) ([]models.Post, error) {
	if status != "" {
		if _, ok := models.ParsePostStatus(string(status)); !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
		}
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListPosts(ctx, status, limit)
}

func (s *postService) Validate(ctx context.Context, postID string) ([]validation.Finding, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return s.gate.ForPost(*post), nil
}

// transition persists post -> to with extra fields layered on the lifecycle patch and returns
// the updated post.
func (s *postService) transition(ctx context.Context, post *models.Post, to models.PostStatus, extra func(*models.PostPatch)) (*models.Post, error) {
	patch, err := s.machine.Transition(post, to, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if extra != nil {
		extra(&patch)
	}
	if err := s.store.UpdatePostStatus(ctx, post.ID, patch); err != nil {
		return nil, err
	}
	s.logger.Info("post status changed", "post_id", post.ID, "from", post.Status, "to", to)
	patch.Apply(post)
	return post, nil
}

func (s *postService) ApproveIdea(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	source := s.machine.PhotoSource(post.Platforms)
	return s.transition(ctx, post, models.PostStatusIdeaApproved, func(p *models.PostPatch) {
		p.PhotoSource = &source
	})
}

// ApproveTextOnly approves a post straight from idea. Without photos, platforms that require
// media are dropped first.
func (s *postService) ApproveTextOnly(ctx context.Context, postID string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	platforms := post.Platforms
	if len(post.PhotoURLs) == 0 {
		platforms = make([]string, 0, len(post.Platforms))
		for _, key := range post.Platforms {
			if !s.catalog.RequiresMedia(key) {
				platforms = append(platforms, key)
			}
		}
		if len(platforms) == 0 {
			return nil, fmt.Errorf("%w: every selected platform requires a photo", ErrInvalidRequest)
		}
	}
	post.Platforms = platforms

	post, err = s.transition(ctx, post, models.PostStatusApproved, func(p *models.PostPatch) {
		p.Platforms = &platforms
	})
	if err != nil {
		return nil, err
	}
	if err := s.ScheduleEnqueue(ctx, post.ID); err != nil {
		s.logger.Warn("enqueue after approval", "post_id", post.ID, "error", err)
	}
	return post, nil
}

func (s *postService) AddPhotos(ctx context.Context, postID string, req PhotoRequest) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	switch {
	case req.Prompt != "":
		return s.startGeneration(ctx, post, req.Prompt)
	case req.Library:
		if s.library == nil {
			return nil, ErrLibraryDisabled
		}
		photos, err := s.library.RecentPhotos(ctx, s.opts.LibraryCount)
		if err != nil {
			return nil, err
		}
		urls := make([]string, 0, len(photos))
		for _, p := range photos {
			urls = append(urls, p.URL)
		}
		return s.toPhotoReview(ctx, post, urls, models.PhotoSourceLibrary)
	case len(req.URLs) > 0:
		return s.toPhotoReview(ctx, post, req.URLs, models.PhotoSourceManual)
	default:
		return nil, fmt.Errorf("%w: a prompt, library selection or photo urls are required", ErrInvalidRequest)
	}
}

func (s *postService) startGeneration(ctx context.Context, post *models.Post, prompt string) (*models.Post, error) {
	if s.generator == nil {
		return nil, ErrGeneratorDisabled
	}
	if !lifecycle.CanTransition(post.Status, models.PostStatusGenerating) {
		return nil, fmt.Errorf("%w: %s -> %s", lifecycle.ErrInvalidTransition, post.Status, models.PostStatusGenerating)
	}

	jobID, err := s.generator.StartGeneration(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("start generation: %w", err)
	}

	notes := appendNote(post.Notes, "[AI] Prompt: "+prompt)
	source := models.PhotoSourceGenerated
	ai := true
	post, err = s.transition(ctx, post, models.PostStatusGenerating, func(p *models.PostPatch) {
		p.GenerationID = &jobID
		p.AIGenerated = &ai
		p.PhotoSource = &source
		p.Notes = &notes
	})
	if err != nil {
		return nil, err
	}

	if s.tasks != nil {
		payload := queue.GenerationCheckPayload{PostID: post.ID, Attempt: 1}
		if err := queue.EnqueueGenerationCheck(s.tasks, payload, s.opts.PollInterval); err != nil {
			s.logger.Warn("schedule generation poll", "post_id", post.ID, "error", err)
		}
	}
	return post, nil
}

func (s *postService) toPhotoReview(ctx context.Context, post *models.Post, urls []string, source models.PhotoSource) (*models.Post, error) {
	merged := mergeURLs(post.PhotoURLs, urls)
	if len(merged) == 0 {
		return nil, fmt.Errorf("%w: no photos found", ErrInvalidRequest)
	}
	return s.transition(ctx, post, models.PostStatusPhotoReview, func(p *models.PostPatch) {
		p.PhotoURLs = &merged
		p.PhotoSource = &source
	})
}

func (s *postService) CheckGeneration(ctx context.Context, postID string) (*models.Post, error) {
	if s.generator == nil {
		return nil, ErrGeneratorDisabled
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusGenerating || post.GenerationID == "" {
		return post, nil
	}
	job, err := s.generator.CheckJob(ctx, post.GenerationID)
	if err != nil {
		return nil, fmt.Errorf("check generation: %w", err)
	}
	return s.applyGeneration(ctx, post, job)
}

func (s *postService) GenerationCallback(ctx context.Context, job GenerationJob) (*models.Post, error) {
	posts, err := s.store.ListPosts(ctx, models.PostStatusGenerating, 500)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].GenerationID == job.ID {
			return s.applyGeneration(ctx, &posts[i], job)
		}
	}
	return nil, fmt.Errorf("generation %s: %w", job.ID, repository.ErrNotFound)
}

// applyGeneration moves a generating post forward on completion and back to idea_approved on
// failure. A failed job is never resubmitted.
func (s *postService) applyGeneration(ctx context.Context, post *models.Post, job GenerationJob) (*models.Post, error) {
	switch job.Status {
	case GenerationCompleted:
		images := append([]string(nil), job.Images...)
		return s.transition(ctx, post, models.PostStatusPhotoReview, func(p *models.PostPatch) {
			p.PhotoURLs = &images
		})
	case GenerationFailed:
		msg := job.Error
		if msg == "" {
			msg = "provider reported failure"
		}
		notes := appendNote(post.Notes, "Generation failed: "+msg)
		post, err := s.transition(ctx, post, models.PostStatusIdeaApproved, func(p *models.PostPatch) {
			p.Notes = &notes
		})
		if err != nil {
			return nil, err
		}
		if err := s.notifier.Notify(ctx, fmt.Sprintf("Image generation failed for post %s: %s", post.ID, msg)); err != nil {
			s.logger.Warn("notify generation failure", "post_id", post.ID, "error", err)
		}
		return post, nil
	default:
		return post, nil
	}
}

func (s *postService) ApprovePhotos(ctx context.Context, postID string, selected []string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.Status != models.PostStatusPhotoReview {
		return nil, fmt.Errorf("%w: %s -> %s", lifecycle.ErrInvalidTransition, post.Status, models.PostStatusApproved)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: select at least one photo", ErrInvalidRequest)
	}
	candidates := make(map[string]bool, len(post.PhotoURLs))
	for _, u := range post.PhotoURLs {
		candidates[u] = true
	}
	chosen := make([]string, 0, len(selected))
	for _, u := range selected {
		if !candidates[u] {
			return nil, fmt.Errorf("%w: %s is not one of the candidate photos", ErrInvalidRequest, u)
		}
		chosen = append(chosen, u)
	}
	chosen = mergeURLs(nil, chosen)
	post.PhotoURLs = chosen

	post, err = s.transition(ctx, post, models.PostStatusApproved, func(p *models.PostPatch) {
		p.PhotoURLs = &chosen
	})
	if err != nil {
		return nil, err
	}
	if err := s.ScheduleEnqueue(ctx, post.ID); err != nil {
		s.logger.Warn("enqueue after approval", "post_id", post.ID, "error", err)
	}
	return post, nil
}

func (s *postService) Reject(ctx context.Context, postID, reason string) (*models.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	note := "Rejected"
	if reason != "" {
		note += ": " + reason
	}
	notes := appendNote(post.Notes, note)
	return s.transition(ctx, post, models.PostStatusIdea, func(p *models.PostPatch) {
		p.Notes = &notes
	})
}

// ScheduleEnqueue creates the post's queue items now, or defers creation through a post:enqueue
// task until the lead time before its slot. Unscheduled posts wait for the schedule fill.
func (s *postService) ScheduleEnqueue(ctx context.Context, postID string) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.Status != models.PostStatusApproved || post.ScheduledAt == nil {
		return nil
	}

	delay := post.ScheduledAt.Sub(s.clock.Now()) - s.opts.LeadTime
	if s.tasks != nil && delay > 0 {
		return queue.EnqueuePost(s.tasks, queue.EnqueuePostPayload{PostID: post.ID}, delay)
	}
	_, err = s.EnqueueForPublishing(ctx, post.ID)
	return err
}

// EnqueueForPublishing snapshots an approved, scheduled post into one queue item per platform.
// Skipped platforms get an exhausted failed item, and a post with only skipped platforms fails
// here. The duplicate check runs here and only annotates.
func (s *postService) EnqueueForPublishing(ctx context.Context, postID string) (int, error) {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	log := s.logger.With("post_id", post.ID)
	if post.Status != models.PostStatusApproved {
		log.Info("post no longer approved, nothing to enqueue", "status", post.Status)
		return 0, nil
	}
	if post.ScheduledAt == nil {
		return 0, fmt.Errorf("%w: post %s has no schedule", ErrInvalidRequest, post.ID)
	}

	s.checkDuplicate(ctx, post)

	photos := post.PhotoURLs
	if s.enhancer != nil && len(photos) > 0 {
		enhanced, err := s.enhancer.Enhance(ctx, photos)
		if err != nil {
			log.Warn("photo enhancement incomplete", "error", err)
		}
		if len(enhanced) == len(photos) && !equalURLs(enhanced, photos) {
			photos = enhanced
			if err := s.store.UpdatePostStatus(ctx, post.ID, models.PostPatch{PhotoURLs: &photos, UpdatedAt: s.clock.Now()}); err != nil {
				return 0, err
			}
			post.PhotoURLs = photos
		}
	}

	findings := s.gate.ForPost(*post)
	skipped := validation.SkippedPlatforms(findings)
	items := make([]models.QueueItem, 0, len(post.Platforms))
	var dropped []models.QueueItem
	for _, key := range post.Platforms {
		id, err := gonanoid.New()
		if err != nil {
			return 0, err
		}
		item := models.QueueItem{
			ID:          id,
			PostID:      post.ID,
			Platform:    key,
			Content:     post.Content,
			PhotoURLs:   append([]string(nil), photos...),
			State:       models.QueueStatePending,
			MaxAttempts: s.opts.MaxAttempts,
			ScheduledAt: *post.ScheduledAt,
		}
		if reason, ok := skipped[key]; ok {
			log.Info("platform skipped", "platform", key, "reason", reason)
			item.State = models.QueueStateFailed
			item.Attempts = s.opts.MaxAttempts
			item.ErrorMessage = "skipped: " + reason
			dropped = append(dropped, item)
			continue
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return 0, s.failUnpublishable(ctx, post, dropped)
	}
	created, err := s.store.CreateQueueItems(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("create queue items: %w", err)
	}
	if created == 0 {
		log.Info("post already enqueued", "items", len(items))
		return 0, nil
	}
	if len(dropped) > 0 {
		if _, err := s.store.CreateQueueItems(ctx, dropped); err != nil {
			return created, fmt.Errorf("record skipped platforms: %w", err)
		}
	}
	log.Info("post enqueued", "items", created, "skipped", len(dropped), "scheduled_at", post.ScheduledAt)
	return created, nil
}

// failUnpublishable records the skipped platforms of a post that has nothing left to publish
// and moves it to failed.
func (s *postService) failUnpublishable(ctx context.Context, post *models.Post, dropped []models.QueueItem) error {
	note := "No platforms selected"
	if len(dropped) > 0 {
		if _, err := s.store.CreateQueueItems(ctx, dropped); err != nil {
			return fmt.Errorf("record skipped platforms: %w", err)
		}
		reasons := make([]string, 0, len(dropped))
		for _, item := range dropped {
			reasons = append(reasons, fmt.Sprintf("%s: %s", item.Platform, item.ErrorMessage))
		}
		sort.Strings(reasons)
		note = "Failed platforms: " + strings.Join(reasons, "; ")
	}
	notes := appendNote(post.Notes, note)
	if _, err := s.transition(ctx, post, models.PostStatusFailed, func(p *models.PostPatch) {
		p.Notes = &notes
	}); err != nil {
		return err
	}
	s.logger.Warn("no publishable platforms", "post_id", post.ID, "skipped", len(dropped))
	if err := s.notifier.Notify(ctx, fmt.Sprintf("Post %s finished as %s. %s", post.ID, models.PostStatusFailed, note)); err != nil {
		s.logger.Warn("notify unpublishable post", "post_id", post.ID, "error", err)
	}
	return nil
}

func (s *postService) checkDuplicate(ctx context.Context, post *models.Post) {
	res, err := s.detector.Check(ctx, dedup.Candidate{
		Content:   post.Content,
		Platforms: post.Platforms,
		ExcludeID: post.ID,
	})
	if err != nil {
		s.logger.Warn("duplicate check skipped", "post_id", post.ID, "error", err)
		return
	}
	if !res.IsDuplicate {
		return
	}
	note := res.Note()
	if strings.Contains(post.Notes, note) {
		return
	}
	notes := appendNote(post.Notes, note)
	if err := s.store.UpdatePostStatus(ctx, post.ID, models.PostPatch{Notes: &notes, UpdatedAt: s.clock.Now()}); err != nil {
		s.logger.Warn("record duplicate note", "post_id", post.ID, "error", err)
		return
	}
	post.Notes = notes
	if err := s.notifier.Notify(ctx, fmt.Sprintf("Post %s: %s", post.ID, note)); err != nil {
		s.logger.Warn("notify duplicate", "post_id", post.ID, "error", err)
	}
}

func (s *postService) HandleEnqueuePostTask(ctx context.Context, task *asynq.Task) error {
	var payload queue.EnqueuePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	_, err := s.EnqueueForPublishing(ctx, payload.PostID)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func (s *postService) HandleGenerationCheckTask(ctx context.Context, task *asynq.Task) error {
	var payload queue.GenerationCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}

	post, err := s.CheckGeneration(ctx, payload.PostID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrGeneratorDisabled) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if post.Status != models.PostStatusGenerating {
		return nil
	}
	if payload.Attempt >= s.opts.MaxPolls {
		s.logger.Warn("generation still running after last poll", "post_id", post.ID, "polls", payload.Attempt)
		return nil
	}
	next := queue.GenerationCheckPayload{PostID: post.ID, Attempt: payload.Attempt + 1}
	return queue.EnqueueGenerationCheck(s.tasks, next, s.opts.PollInterval)
}

func mergeURLs(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, group := range [][]string{existing, added} {
		for _, u := range group {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func equalURLs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
