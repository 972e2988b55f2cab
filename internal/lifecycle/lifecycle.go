// Package lifecycle owns the post status model: the closed set of transitions between
// statuses and the timestamp and invariant side effects each transition carries.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvariant         = errors.New("status invariant violated")
)

// transitions lists every allowed move except the universal rejection back to idea.
var transitions = map[models.PostStatus][]models.PostStatus{
	models.PostStatusIdea:         {models.PostStatusIdeaApproved, models.PostStatusApproved},
	models.PostStatusIdeaApproved: {models.PostStatusGenerating, models.PostStatusPhotoReview, models.PostStatusApproved},
	models.PostStatusGenerating:   {models.PostStatusPhotoReview, models.PostStatusIdeaApproved},
	models.PostStatusPhotoReview:  {models.PostStatusApproved},
	models.PostStatusApproved:     {models.PostStatusPosted, models.PostStatusPartial, models.PostStatusFailed},
	models.PostStatusPosted:       nil,
	models.PostStatusPartial:      nil,
	models.PostStatusFailed:       {models.PostStatusIdeaApproved, models.PostStatusApproved},
}

// CanTransition reports whether from -> to is defined.
func CanTransition(from, to models.PostStatus) bool {
	if _, ok := transitions[from]; !ok {
		return false
	}
	if _, ok := transitions[to]; !ok {
		return false
	}
	if to == models.PostStatusIdea {
		return from != models.PostStatusIdea
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine applies transitions. The media predicate comes from the platform catalog.
type Machine struct {
	RequiresMedia  func(platform string) bool
	PhotoSourceFor func(platform string) models.PhotoSource
}

// Transition validates from -> to for post and returns the patch to persist. The post itself
// is not modified.
func (m Machine) Transition(post *models.Post, to models.PostStatus, now time.Time) (models.PostPatch, error) {
	if post == nil {
		return models.PostPatch{}, errors.New("post is nil")
	}
	if !CanTransition(post.Status, to) {
		return models.PostPatch{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, post.Status, to)
	}

	now = now.UTC()
	status := to
	patch := models.PostPatch{Status: &status, UpdatedAt: now}

	switch to {
	case models.PostStatusIdea:
		empty := []string{}
		none := models.PhotoSourceNone
		noJob := ""
		notAI := false
		patch.PhotoURLs = &empty
		patch.PhotoSource = &none
		patch.GenerationID = &noJob
		patch.AIGenerated = &notAI
	case models.PostStatusApproved:
		if missing := m.MissingMedia(post.Platforms, post.PhotoURLs); len(missing) > 0 {
			return models.PostPatch{}, fmt.Errorf("%w: %v require media", ErrInvariant, missing)
		}
	case models.PostStatusPosted:
		if len(post.PostedIDs) == 0 {
			return models.PostPatch{}, fmt.Errorf("%w: posted without a platform outcome", ErrInvariant)
		}
		if post.PublishedAt == nil {
			patch.PublishedAt = &now
		}
	case models.PostStatusPartial:
		if len(post.PostedIDs) == 0 {
			return models.PostPatch{}, fmt.Errorf("%w: partial without a platform outcome", ErrInvariant)
		}
	}
	return patch, nil
}

// MissingMedia lists the platforms that require media when none is attached.
func (m Machine) MissingMedia(platforms, photoURLs []string) []string {
	if len(photoURLs) > 0 || m.RequiresMedia == nil {
		return nil
	}
	var missing []string
	for _, p := range platforms {
		if m.RequiresMedia(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// PhotoSource picks how an approved idea gets its images. AI generation wins when any target
// platform wants generated imagery, then the business library.
func (m Machine) PhotoSource(platforms []string) models.PhotoSource {
	if m.PhotoSourceFor == nil {
		return models.PhotoSourceManual
	}
	library := false
	for _, p := range platforms {
		switch m.PhotoSourceFor(p) {
		case models.PhotoSourceGenerated:
			return models.PhotoSourceGenerated
		case models.PhotoSourceLibrary:
			library = true
		}
	}
	if library {
		return models.PhotoSourceLibrary
	}
	return models.PhotoSourceManual
}
