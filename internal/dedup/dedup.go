// Package dedup flags content that repeats something already posted or queued.
// Findings are advisory; callers decide whether to block.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
)

const (
	HistoryWindow    = 200
	SimilarThreshold = 0.7
	hashLength       = 16
	minWordLength    = 4
	excerptLength    = 100
)

type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchSimilar MatchType = "similar"
)

type Result struct {
	IsDuplicate    bool      `json:"is_duplicate"`
	MatchType      MatchType `json:"match_type,omitempty"`
	MatchedPostID  string    `json:"matched_post_id,omitempty"`
	MatchedContent string    `json:"matched_content,omitempty"`
	Similarity     float64   `json:"similarity,omitempty"`
}

// Candidate is the content being checked. ExcludeID skips the candidate's own stored row.
type Candidate struct {
	Content   string
	Platforms []string
	ExcludeID string
}

var lower = cases.Lower(language.Und)

// Hash digests text after lower-casing, dropping punctuation and collapsing whitespace, so
// texts that differ only in those respects share a hash.
func Hash(text string) string {
	folded := lower.String(text)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	normalized := strings.Join(strings.Fields(b.String()), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// Similarity is the Jaccard index over words of at least four characters.
func Similarity(a, b string) float64 {
	wordsA := words(a)
	wordsB := words(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	shared := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			shared++
		}
	}
	union := len(wordsA) + len(wordsB) - shared
	return float64(shared) / float64(union)
}

func words(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(lower.String(text)) {
		if utf8.RuneCountInString(w) >= minWordLength {
			set[w] = struct{}{}
		}
	}
	return set
}

// Check scans history, newest first, and returns the first exact or similar match among posts
// that share a platform with the candidate.
func Check(c Candidate, history []models.Post) Result {
	hash := Hash(c.Content)
	for _, post := range history {
		if c.ExcludeID != "" && post.ID == c.ExcludeID {
			continue
		}
		if !overlaps(c.Platforms, post.Platforms) {
			continue
		}

		stored := post.ContentHash
		if stored == "" {
			stored = Hash(post.Content)
		}
		if stored == hash {
			return Result{
				IsDuplicate:    true,
				MatchType:      MatchExact,
				MatchedPostID:  post.ID,
				MatchedContent: excerpt(post.Content),
				Similarity:     1,
			}
		}

		if sim := Similarity(c.Content, post.Content); sim > SimilarThreshold {
			return Result{
				IsDuplicate:    true,
				MatchType:      MatchSimilar,
				MatchedPostID:  post.ID,
				MatchedContent: excerpt(post.Content),
				Similarity:     sim,
			}
		}
	}
	return Result{}
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptLength {
		return s
	}
	return string([]rune(s)[:excerptLength])
}

// History is the store view the detector reads, newest posts first.
type History interface {
	SelectPostsByStatusWindow(ctx context.Context, statuses []models.PostStatus, limit int) ([]models.Post, error)
}

type Detector struct {
	history History
}

func NewDetector(history History) *Detector {
	return &Detector{history: history}
}

// Check loads the recent posted/approved window and runs Check against it.
func (d *Detector) Check(ctx context.Context, c Candidate) (Result, error) {
	posts, err := d.history.SelectPostsByStatusWindow(ctx,
		[]models.PostStatus{models.PostStatusPosted, models.PostStatusApproved}, HistoryWindow)
	if err != nil {
		return Result{}, fmt.Errorf("load duplicate window: %w", err)
	}
	return Check(c, posts), nil
}

// Note renders a match for the post's reviewer notes.
func (r Result) Note() string {
	if !r.IsDuplicate {
		return ""
	}
	if r.MatchType == MatchExact {
		return fmt.Sprintf("Possible duplicate: exact match of post %s", r.MatchedPostID)
	}
	return fmt.Sprintf("Possible duplicate: %.0f%% similar to post %s", r.Similarity*100, r.MatchedPostID)
}
