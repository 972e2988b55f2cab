package transfer

import (
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/fingerprint"
	"github.com/connorpauley-png/content-command-sub001/internal/scheduler"
	"github.com/connorpauley-png/content-command-sub001/internal/validation"
)

type PostCreation struct {
	Content     string     `json:"content"`
	Platforms   []string   `json:"platforms"`
	PhotoURLs   []string   `json:"photo_urls"`
	Hashtags    []string   `json:"hashtags"`
	Tags        []string   `json:"tags"`
	AccountID   string     `json:"account_id"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// WorkflowAction is the body of POST /api/posts/:id/actions.
type WorkflowAction struct {
	Action         string   `json:"action"`
	Prompt         string   `json:"prompt,omitempty"`
	Library        bool     `json:"library,omitempty"`
	PhotoURLs      []string `json:"photo_urls,omitempty"`
	SelectedPhotos []string `json:"selected_photos,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

const (
	ActionApproveIdea     = "approve_idea"
	ActionApproveTextOnly = "approve_text_only"
	ActionAddPhotos       = "add_photos"
	ActionCheckGeneration = "check_generation"
	ActionApprovePhotos   = "approve_photos"
	ActionReject          = "reject"
	ActionEnqueue         = "enqueue"
)

// ValidationRequest checks a draft without storing it.
type ValidationRequest struct {
	Content   string   `json:"content"`
	Platforms []string `json:"platforms"`
	PhotoURLs []string `json:"photo_urls"`
}

type ValidationResponse struct {
	Valid      bool                            `json:"valid"`
	Errors     []validation.Finding            `json:"errors"`
	Warnings   []validation.Finding            `json:"warnings"`
	ByPlatform map[string][]validation.Finding `json:"by_platform"`
	Skipped    map[string]string               `json:"skipped,omitempty"`
	Summary    []string                        `json:"summary"`
}

type MatchRequest struct {
	Photos []fingerprint.Photo `json:"photos"`
}

type MatchResponse struct {
	Pairs []MatchedPair `json:"pairs"`
}

type MatchedPair struct {
	fingerprint.Pair
	Caption string `json:"caption"`
}

// ScheduleFillResponse reports one schedule fill run.
type ScheduleFillResponse struct {
	Assigned []scheduler.Assignment `json:"assigned"`
	Skipped  []scheduler.Skipped    `json:"skipped,omitempty"`
	Enqueued int                    `json:"enqueued"`
}
