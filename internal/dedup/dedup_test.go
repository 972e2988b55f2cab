package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
)

func TestHashIgnoresCasePunctuationAndSpacing(t *testing.T) {
	base := Hash("Spring cleanup is here, book now!")
	variants := []string{
		"spring cleanup is here book now",
		"SPRING   CLEANUP is here... book NOW",
		"  Spring cleanup, is here; book now?  ",
	}
	for _, v := range variants {
		if got := Hash(v); got != base {
			t.Fatalf("Hash(%q) = %s, want %s", v, got, base)
		}
	}
	if len(base) != 16 {
		t.Fatalf("hash length = %d", len(base))
	}
	if Hash("Spring cleanup is here") == base {
		t.Fatal("different words must hash differently")
	}
}

func TestSimilaritySymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"fresh mulch around the oak trees", "fresh mulch around maple trees"},
		{"", "anything here"},
		{"a an the", "fresh mulch"},
		{"gutters cleaned today", "gutters cleaned today"},
	}
	for _, p := range pairs {
		ab := Similarity(p[0], p[1])
		ba := Similarity(p[1], p[0])
		if ab != ba {
			t.Fatalf("Similarity not symmetric for %q/%q: %v vs %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("Similarity out of range: %v", ab)
		}
	}
	if got := Similarity("", "anything here"); got != 0 {
		t.Fatalf("empty side = %v", got)
	}
	if got := Similarity("gutters cleaned today", "GUTTERS cleaned today"); got != 1 {
		t.Fatalf("identical words = %v", got)
	}
}

func TestCheck(t *testing.T) {
	history := []models.Post{
		{ID: "self", Content: "Spring cleanup is here, book now", Platforms: []string{"facebook"}},
		{ID: "li", Content: "Spring cleanup is here, book now", Platforms: []string{"linkedin"}},
		{ID: "fb-similar", Content: "Fresh mulch makes every flower garden look brand new this spring", Platforms: []string{"facebook", "x"}},
		{ID: "fb-exact", Content: "spring cleanup IS here book now!", Platforms: []string{"facebook"}},
	}

	tests := []struct {
		name    string
		c       Candidate
		want    MatchType
		matchID string
	}{
		{
			name:    "exact on shared platform",
			c:       Candidate{Content: "Spring cleanup is here. Book now.", Platforms: []string{"facebook"}, ExcludeID: "self"},
			want:    MatchExact,
			matchID: "fb-exact",
		},
		{
			name:    "similar",
			c:       Candidate{Content: "Fresh mulch makes every flower garden look brand new this summer", Platforms: []string{"x"}},
			want:    MatchSimilar,
			matchID: "fb-similar",
		},
		{
			name: "no platform overlap",
			c:    Candidate{Content: "Fresh mulch makes every flower garden look brand new this spring", Platforms: []string{"instagram"}},
		},
		{
			name: "unrelated",
			c:    Candidate{Content: "Gutter guards installed on Maple Street", Platforms: []string{"facebook"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.c, history)
			if got.MatchType != tt.want || got.MatchedPostID != tt.matchID || got.IsDuplicate != (tt.want != "") {
				t.Fatalf("Check = %+v", got)
			}
		})
	}
}

type fakeHistory struct {
	posts    []models.Post
	err      error
	limit    int
	statuses []models.PostStatus
}

func (f *fakeHistory) SelectPostsByStatusWindow(ctx context.Context, statuses []models.PostStatus, limit int) ([]models.Post, error) {
	f.limit = limit
	f.statuses = statuses
	return f.posts, f.err
}

func TestDetectorUsesRecentWindow(t *testing.T) {
	h := &fakeHistory{posts: []models.Post{{ID: "p1", Content: "Deck stained", ContentHash: Hash("deck stained"), Platforms: []string{"x"}}}}
	res, err := NewDetector(h).Check(context.Background(), Candidate{Content: "Deck Stained!", Platforms: []string{"x"}})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.IsDuplicate || res.MatchType != MatchExact {
		t.Fatalf("result = %+v", res)
	}
	if h.limit != HistoryWindow || len(h.statuses) != 2 {
		t.Fatalf("window = %d statuses = %v", h.limit, h.statuses)
	}
	if res.Note() == "" {
		t.Fatal("expected a reviewer note")
	}
}

func TestDetectorPropagatesStoreError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewDetector(&fakeHistory{err: boom}).Check(context.Background(), Candidate{Content: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
