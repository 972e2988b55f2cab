package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
)

// postgres undefined_table
const codeUndefinedTable = "42P01"

type QueueItemRepository interface {
	CreateQueueItems(ctx context.Context, items []models.QueueItem) (int, error)
	SelectDueQueueItems(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error)
	UpdateQueueItem(ctx context.Context, id string, patch models.QueueItemPatch) error
	ListQueueItemsByPost(ctx context.Context, postID string) ([]models.QueueItem, error)
	ResetStaleProcessing(ctx context.Context, startedBefore, now time.Time) (int, error)
	QueueStats(ctx context.Context) (models.QueueStats, error)
}

type queueItemRepository struct {
	db *sql.DB
}

func NewQueueItemRepository(db *sql.DB) QueueItemRepository {
	return &queueItemRepository{db: db}
}

// queueErr maps a missing queue table to queue.ErrQueueUnavailable.
func queueErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeUndefinedTable {
		return fmt.Errorf("%w: %s", queue.ErrQueueUnavailable, pqErr.Message)
	}
	return err
}

const queueItemColumns = `id, post_id, platform, content, photo_urls, status, attempts, max_attempts, scheduled_at,
	last_attempt_at, next_retry_at, completed_at, external_post_id, error_message, created_at, updated_at`

func scanQueueItem(row rowScanner) (models.QueueItem, error) {
	var item models.QueueItem
	err := row.Scan(
		&item.ID,
		&item.PostID,
		&item.Platform,
		&item.Content,
		pq.Array(&item.PhotoURLs),
		&item.State,
		&item.Attempts,
		&item.MaxAttempts,
		&item.ScheduledAt,
		&item.LastAttemptAt,
		&item.NextRetryAt,
		&item.CompletedAt,
		&item.ExternalPostID,
		&item.ErrorMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// CreateQueueItems inserts items and returns how many were written. An item whose post and
// platform already have an open item is ignored.
func (r *queueItemRepository) CreateQueueItems(ctx context.Context, items []models.QueueItem) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return 0, queueErr(err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO queue_items (id, post_id, platform, content, photo_urls, status, attempts, max_attempts, scheduled_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (post_id, platform)
		WHERE status IN ('pending', 'processing') OR (status = 'failed' AND attempts < max_attempts)
		DO NOTHING
	`
	created := 0
	for _, item := range items {
		state := item.State
		if state == "" {
			state = models.QueueStatePending
		}
		res, err := tx.ExecContext(ctx, query,
			item.ID,
			item.PostID,
			item.Platform,
			item.Content,
			pq.Array(nonNil(item.PhotoURLs)),
			state,
			item.Attempts,
			item.MaxAttempts,
			item.ScheduledAt,
			item.ErrorMessage,
		)
		if err != nil {
			slog.Info(err.Error())
			return 0, queueErr(err)
		}
		if n, err := res.RowsAffected(); err == nil {
			created += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return created, nil
}

func (r *queueItemRepository) SelectDueQueueItems(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items
		WHERE (status = 'pending' AND scheduled_at <= $1)
		   OR (status = 'failed' AND attempts < max_attempts AND next_retry_at IS NOT NULL AND next_retry_at <= $1)
		ORDER BY scheduled_at ASC, created_at ASC
		LIMIT $2`
	return r.queryItems(ctx, query, now, limit)
}

func (r *queueItemRepository) ListQueueItemsByPost(ctx context.Context, postID string) ([]models.QueueItem, error) {
	query := `SELECT ` + queueItemColumns + ` FROM queue_items WHERE post_id = $1 ORDER BY created_at ASC`
	return r.queryItems(ctx, query, postID)
}

func (r *queueItemRepository) UpdateQueueItem(ctx context.Context, id string, patch models.QueueItemPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.State != nil {
		set("status", string(*patch.State))
	}
	if patch.Attempts != nil {
		set("attempts", *patch.Attempts)
	}
	if patch.LastAttemptAt != nil {
		set("last_attempt_at", *patch.LastAttemptAt)
	}
	if patch.NextRetryAt != nil {
		set("next_retry_at", *patch.NextRetryAt)
	}
	if patch.CompletedAt != nil {
		set("completed_at", *patch.CompletedAt)
	}
	if patch.ExternalPostID != nil {
		set("external_post_id", *patch.ExternalPostID)
	}
	if patch.ErrorMessage != nil {
		set("error_message", *patch.ErrorMessage)
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE queue_items SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return queueErr(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	return nil
}

// ResetStaleProcessing turns items stuck in processing into retryable failures due now.
// Items that already used their last attempt become terminal.
func (r *queueItemRepository) ResetStaleProcessing(ctx context.Context, startedBefore, now time.Time) (int, error) {
	query := `
		UPDATE queue_items
		SET status = 'failed',
			next_retry_at = $2,
			error_message = 'processing interrupted',
			updated_at = CURRENT_TIMESTAMP
		WHERE status = 'processing' AND (last_attempt_at IS NULL OR last_attempt_at < $1)
	`
	res, err := r.db.ExecContext(ctx, query, startedBefore, now)
	if err != nil {
		slog.Info(err.Error())
		return 0, queueErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *queueItemRepository) QueueStats(ctx context.Context) (models.QueueStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		slog.Info(err.Error())
		return nil, queueErr(err)
	}
	defer rows.Close()

	stats := make(models.QueueStats)
	for rows.Next() {
		var state models.QueueState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		stats[state] = n
	}
	return stats, rows.Err()
}

func (r *queueItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, queueErr(err)
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
