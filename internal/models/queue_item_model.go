package models

import "time"

type QueueState string

const (
	QueueStatePending    QueueState = "pending"
	QueueStateProcessing QueueState = "processing"
	QueueStateCompleted  QueueState = "completed"
	QueueStateFailed     QueueState = "failed"
)

const DefaultMaxAttempts = 3

// QueueItem is one platform-scoped publish attempt for a post. Content and media are
// snapshotted at enqueue time so per-platform retries do not depend on later edits.
type QueueItem struct {
	ID             string     `db:"id" json:"id"`
	PostID         string     `db:"post_id" json:"post_id"`
	Platform       string     `db:"platform" json:"platform"`
	Content        string     `db:"content" json:"content"`
	PhotoURLs      []string   `db:"photo_urls" json:"photo_urls"`
	State          QueueState `db:"status" json:"status"`
	Attempts       int        `db:"attempts" json:"attempts"`
	MaxAttempts    int        `db:"max_attempts" json:"max_attempts"`
	ScheduledAt    time.Time  `db:"scheduled_at" json:"scheduled_at"`
	LastAttemptAt  *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ExternalPostID string     `db:"external_post_id" json:"external_post_id,omitempty"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Exhausted reports whether the retry budget is spent.
func (q *QueueItem) Exhausted() bool {
	max := q.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	return q.Attempts >= max
}

// TerminallyFailed reports a failed item that must never be selected again.
func (q *QueueItem) TerminallyFailed() bool {
	return q.State == QueueStateFailed && q.Exhausted()
}

// Open reports an item that still holds its post and platform: in flight or retryable.
func (q *QueueItem) Open() bool {
	switch q.State {
	case QueueStatePending, QueueStateProcessing:
		return true
	case QueueStateFailed:
		return !q.Exhausted()
	default:
		return false
	}
}

// Due reports whether the item is eligible for selection at now.
func (q *QueueItem) Due(now time.Time) bool {
	switch q.State {
	case QueueStatePending:
		return !q.ScheduledAt.After(now)
	case QueueStateFailed:
		return !q.Exhausted() && q.NextRetryAt != nil && !q.NextRetryAt.After(now)
	default:
		return false
	}
}

// QueueItemPatch carries the fields written by updateQueueItem. Nil fields are left as-is.
type QueueItemPatch struct {
	State          *QueueState
	Attempts       *int
	LastAttemptAt  *time.Time
	NextRetryAt    *time.Time
	CompletedAt    *time.Time
	ExternalPostID *string
	ErrorMessage   *string
}

// Apply copies the patch onto item. Stores use it to keep in-memory and SQL paths aligned.
func (p QueueItemPatch) Apply(item *QueueItem) {
	if p.State != nil {
		item.State = *p.State
	}
	if p.Attempts != nil {
		item.Attempts = *p.Attempts
	}
	if p.LastAttemptAt != nil {
		t := *p.LastAttemptAt
		item.LastAttemptAt = &t
	}
	if p.NextRetryAt != nil {
		t := *p.NextRetryAt
		item.NextRetryAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		item.CompletedAt = &t
	}
	if p.ExternalPostID != nil {
		item.ExternalPostID = *p.ExternalPostID
	}
	if p.ErrorMessage != nil {
		item.ErrorMessage = *p.ErrorMessage
	}
}

// QueueStats counts queue items by state.
type QueueStats map[QueueState]int
