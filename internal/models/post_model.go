package models

import "time"

type PostStatus string

const (
	PostStatusIdea         PostStatus = "idea"
	PostStatusIdeaApproved PostStatus = "idea_approved"
	PostStatusGenerating   PostStatus = "generating"
	PostStatusPhotoReview  PostStatus = "photo_review"
	PostStatusApproved     PostStatus = "approved"
	PostStatusPosted       PostStatus = "posted"
	PostStatusPartial      PostStatus = "partial"
	PostStatusFailed       PostStatus = "failed"
)

var postStatuses = map[PostStatus]struct{}{
	PostStatusIdea:         {},
	PostStatusIdeaApproved: {},
	PostStatusGenerating:   {},
	PostStatusPhotoReview:  {},
	PostStatusApproved:     {},
	PostStatusPosted:       {},
	PostStatusPartial:      {},
	PostStatusFailed:       {},
}

// ParsePostStatus rejects any value outside the closed status set.
func ParsePostStatus(s string) (PostStatus, bool) {
	status := PostStatus(s)
	_, ok := postStatuses[status]
	return status, ok
}

// Terminal reports whether the status ends the publishing pipeline.
func (s PostStatus) Terminal() bool {
	return s == PostStatusPosted || s == PostStatusPartial || s == PostStatusFailed
}

type PhotoSource string

const (
	PhotoSourceNone      PhotoSource = ""
	PhotoSourceGenerated PhotoSource = "generated"
	PhotoSourceLibrary   PhotoSource = "library"
	PhotoSourceManual    PhotoSource = "manual"
)

type Post struct {
	ID           string            `db:"id" json:"id"`
	AccountID    string            `db:"account_id" json:"account_id,omitempty"`
	Content      string            `db:"content" json:"content"`
	PhotoURLs    []string          `db:"photo_urls" json:"photo_urls"`
	Hashtags     []string          `db:"hashtags" json:"hashtags"`
	Tags         []string          `db:"tags" json:"tags"`
	Platforms    []string          `db:"platforms" json:"platforms"`
	ScheduledAt  *time.Time        `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Status       PostStatus        `db:"status" json:"status"`
	PhotoSource  PhotoSource       `db:"photo_source" json:"photo_source,omitempty"`
	GenerationID string            `db:"generation_id" json:"generation_id,omitempty"`
	AIGenerated  bool              `db:"ai_generated" json:"ai_generated"`
	PostedIDs    map[string]string `db:"posted_ids" json:"posted_ids"`
	Notes        string            `db:"notes" json:"notes,omitempty"`
	ContentHash  string            `db:"content_hash" json:"content_hash"`
	PublishedAt  *time.Time        `db:"published_at" json:"published_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// HasPlatform reports whether the post targets the given platform key.
func (p *Post) HasPlatform(platform string) bool {
	for _, key := range p.Platforms {
		if key == platform {
			return true
		}
	}
	return false
}

// PostPatch carries the mutable fields written by updatePostStatus. Nil fields are left as-is;
// PostedIDs entries are merged into the stored map.
type PostPatch struct {
	Status       *PostStatus
	AccountID    *string
	PhotoURLs    *[]string
	Platforms    *[]string
	ScheduledAt  *time.Time
	PhotoSource  *PhotoSource
	GenerationID *string
	AIGenerated  *bool
	PostedIDs    map[string]string
	Notes        *string
	PublishedAt  *time.Time
	UpdatedAt    time.Time
}

// Apply copies the patch onto post.
func (p PostPatch) Apply(post *Post) {
	if p.Status != nil {
		post.Status = *p.Status
	}
	if p.AccountID != nil {
		post.AccountID = *p.AccountID
	}
	if p.PhotoURLs != nil {
		post.PhotoURLs = append([]string(nil), (*p.PhotoURLs)...)
	}
	if p.Platforms != nil {
		post.Platforms = append([]string(nil), (*p.Platforms)...)
	}
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		post.ScheduledAt = &t
	}
	if p.PhotoSource != nil {
		post.PhotoSource = *p.PhotoSource
	}
	if p.GenerationID != nil {
		post.GenerationID = *p.GenerationID
	}
	if p.AIGenerated != nil {
		post.AIGenerated = *p.AIGenerated
	}
	if len(p.PostedIDs) > 0 {
		if post.PostedIDs == nil {
			post.PostedIDs = make(map[string]string, len(p.PostedIDs))
		}
		for platform, id := range p.PostedIDs {
			post.PostedIDs[platform] = id
		}
	}
	if p.Notes != nil {
		post.Notes = *p.Notes
	}
	if p.PublishedAt != nil && post.PublishedAt == nil {
		t := *p.PublishedAt
		post.PublishedAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		post.UpdatedAt = p.UpdatedAt
	}
}
