package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/clock"
	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/scheduler"
	"github.com/connorpauley-png/content-command-sub001/internal/transfer"
)

type ScheduleStore interface {
	ListUnscheduledPosts(ctx context.Context, status models.PostStatus) ([]models.Post, error)
	BookedSlots(ctx context.Context, from time.Time) (map[string][]time.Time, error)
	UpdatePostStatus(ctx context.Context, postID string, patch models.PostPatch) error
	ListAccounts(ctx context.Context) ([]models.Account, error)
}

type ScheduleService interface {
	Fill(ctx context.Context) (transfer.ScheduleFillResponse, error)
}

type scheduleService struct {
	store  ScheduleStore
	posts  PostService
	clock  clock.Clock
	opts   scheduler.Options
	logger *slog.Logger
}

func NewScheduleService(store ScheduleStore, posts PostService, clk clock.Clock, opts scheduler.Options, logger *slog.Logger) ScheduleService {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &scheduleService{store: store, posts: posts, clock: clk, opts: opts, logger: logger}
}

// Fill slots every approved, unscheduled post into its account's cadence, commits the slots and
// then enqueues the posts.
func (s *scheduleService) Fill(ctx context.Context) (transfer.ScheduleFillResponse, error) {
	var resp transfer.ScheduleFillResponse
	now := s.clock.Now().UTC()

	posts, err := s.store.ListUnscheduledPosts(ctx, models.PostStatusApproved)
	if err != nil {
		return resp, fmt.Errorf("load unscheduled posts: %w", err)
	}
	if len(posts) == 0 {
		return resp, nil
	}

	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return resp, fmt.Errorf("load accounts: %w", err)
	}
	booked, err := s.store.BookedSlots(ctx, now.Add(-s.opts.MinSpacing))
	if err != nil {
		return resp, fmt.Errorf("load booked slots: %w", err)
	}

	req := scheduler.Request{Now: now, Booked: booked}
	for _, a := range accounts {
		req.Accounts = append(req.Accounts, scheduler.Account{
			ID:           a.ID,
			PostsPerWeek: a.PostsPerWeek,
			BestTimes:    a.BestTimes,
			Location:     s.location(a),
		})
	}
	for _, p := range posts {
		accountID := p.AccountID
		if accountID == "" && len(accounts) == 1 {
			accountID = accounts[0].ID
		}
		req.Posts = append(req.Posts, scheduler.Pending{PostID: p.ID, AccountID: accountID})
	}

	result := scheduler.Fill(req, s.opts)
	resp.Skipped = result.Skipped

	unassigned := make(map[string]bool)
	for _, p := range posts {
		if p.AccountID == "" {
			unassigned[p.ID] = true
		}
	}
	for _, a := range result.Assignments {
		at := a.At
		patch := models.PostPatch{ScheduledAt: &at, UpdatedAt: now}
		if unassigned[a.PostID] {
			accountID := a.AccountID
			patch.AccountID = &accountID
		}
		if err := s.store.UpdatePostStatus(ctx, a.PostID, patch); err != nil {
			return resp, fmt.Errorf("commit slot for %s: %w", a.PostID, err)
		}
		resp.Assigned = append(resp.Assigned, a)
		s.logger.Info("post scheduled", "post_id", a.PostID, "account_id", a.AccountID, "scheduled_at", a.At)
	}

	for _, a := range resp.Assigned {
		if s.posts == nil {
			break
		}
		if err := s.posts.ScheduleEnqueue(ctx, a.PostID); err != nil {
			s.logger.Warn("enqueue scheduled post", "post_id", a.PostID, "error", err)
			continue
		}
		resp.Enqueued++
	}
	return resp, nil
}

func (s *scheduleService) location(a models.Account) *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		s.logger.Warn("unknown account timezone, using UTC", "account_id", a.ID, "timezone", a.Timezone)
		return time.UTC
	}
	return loc
}
