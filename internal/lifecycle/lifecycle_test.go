package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
)

func testMachine() Machine {
	return Machine{
		RequiresMedia: func(p string) bool { return p == "instagram" },
		PhotoSourceFor: func(p string) models.PhotoSource {
			switch p {
			case "x", "linkedin":
				return models.PhotoSourceGenerated
			case "facebook", "instagram":
				return models.PhotoSourceLibrary
			}
			return models.PhotoSourceNone
		},
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.PostStatus
		want     bool
	}{
		{models.PostStatusIdea, models.PostStatusIdeaApproved, true},
		{models.PostStatusIdea, models.PostStatusApproved, true},
		{models.PostStatusIdea, models.PostStatusGenerating, false},
		{models.PostStatusIdeaApproved, models.PostStatusGenerating, true},
		{models.PostStatusGenerating, models.PostStatusPhotoReview, true},
		{models.PostStatusGenerating, models.PostStatusIdeaApproved, true},
		{models.PostStatusGenerating, models.PostStatusApproved, false},
		{models.PostStatusPhotoReview, models.PostStatusApproved, true},
		{models.PostStatusApproved, models.PostStatusPosted, true},
		{models.PostStatusApproved, models.PostStatusPartial, true},
		{models.PostStatusApproved, models.PostStatusFailed, true},
		{models.PostStatusPosted, models.PostStatusApproved, false},
		{models.PostStatusPosted, models.PostStatusIdea, true},
		{models.PostStatusFailed, models.PostStatusApproved, true},
		{models.PostStatusFailed, models.PostStatusPosted, false},
		{models.PostStatusIdea, models.PostStatusIdea, false},
		{models.PostStatus("scheduled"), models.PostStatusPosted, false},
		{models.PostStatusApproved, models.PostStatus("draft"), false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionRejectsUndefinedMove(t *testing.T) {
	post := &models.Post{ID: "p1", Status: models.PostStatusIdea}
	_, err := testMachine().Transition(post, models.PostStatusPosted, time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionToPostedStampsPublishedAtOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	post := &models.Post{
		ID:        "p1",
		Status:    models.PostStatusApproved,
		PostedIDs: map[string]string{"x": "abc"},
	}
	patch, err := testMachine().Transition(post, models.PostStatusPosted, now)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if patch.PublishedAt == nil || !patch.PublishedAt.Equal(now) {
		t.Fatalf("expected published_at %v, got %v", now, patch.PublishedAt)
	}
	if !patch.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at stamped")
	}

	earlier := now.Add(-time.Hour)
	post.PublishedAt = &earlier
	patch, err = testMachine().Transition(post, models.PostStatusPosted, now)
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if patch.PublishedAt != nil {
		t.Fatalf("published_at must not be re-stamped, got %v", patch.PublishedAt)
	}
}

func TestTransitionToPostedRequiresOutcome(t *testing.T) {
	post := &models.Post{ID: "p1", Status: models.PostStatusApproved}
	if _, err := testMachine().Transition(post, models.PostStatusPosted, time.Now()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if _, err := testMachine().Transition(post, models.PostStatusPartial, time.Now()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant for partial, got %v", err)
	}
	if _, err := testMachine().Transition(post, models.PostStatusFailed, time.Now()); err != nil {
		t.Fatalf("failed needs no outcome: %v", err)
	}
}

func TestTransitionToApprovedChecksMedia(t *testing.T) {
	post := &models.Post{ID: "p1", Status: models.PostStatusPhotoReview, Platforms: []string{"instagram", "x"}}
	if _, err := testMachine().Transition(post, models.PostStatusApproved, time.Now()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	post.PhotoURLs = []string{"https://cdn.example.com/a.jpg"}
	if _, err := testMachine().Transition(post, models.PostStatusApproved, time.Now()); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
}

func TestRejectClearsArtifacts(t *testing.T) {
	post := &models.Post{
		ID:           "p1",
		Status:       models.PostStatusPhotoReview,
		PhotoURLs:    []string{"https://cdn.example.com/a.jpg"},
		GenerationID: "job-1",
		AIGenerated:  true,
		PhotoSource:  models.PhotoSourceGenerated,
	}
	patch, err := testMachine().Transition(post, models.PostStatusIdea, time.Now())
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	patch.Apply(post)
	if post.Status != models.PostStatusIdea || len(post.PhotoURLs) != 0 || post.GenerationID != "" || post.AIGenerated {
		t.Fatalf("expected artifacts cleared, got %#v", post)
	}
}

func TestPhotoSource(t *testing.T) {
	m := testMachine()
	cases := []struct {
		platforms []string
		want      models.PhotoSource
	}{
		{[]string{"facebook", "x"}, models.PhotoSourceGenerated},
		{[]string{"facebook", "instagram"}, models.PhotoSourceLibrary},
		{[]string{"nextdoor"}, models.PhotoSourceManual},
	}
	for _, tc := range cases {
		if got := m.PhotoSource(tc.platforms); got != tc.want {
			t.Fatalf("PhotoSource(%v) = %q, want %q", tc.platforms, got, tc.want)
		}
	}
}
