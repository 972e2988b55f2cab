package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (*models.Post, error)
	ListPosts(ctx context.Context, status models.PostStatus, limit int) ([]models.Post, error)
	UpdatePostStatus(ctx context.Context, postID string, patch models.PostPatch) error
	SelectPostsByStatusWindow(ctx context.Context, statuses []models.PostStatus, limit int) ([]models.Post, error)
	SelectDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error)
	ListUnscheduledPosts(ctx context.Context, status models.PostStatus) ([]models.Post, error)
	BookedSlots(ctx context.Context, from time.Time) (map[string][]time.Time, error)
	CountDuePosts(ctx context.Context, now time.Time) (int, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, account_id, content, photo_urls, hashtags, tags, platforms, scheduled_at, status,
	photo_source, generation_id, ai_generated, posted_ids, notes, content_hash, published_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (models.Post, error) {
	var (
		post      models.Post
		accountID sql.NullString
		postedIDs []byte
		source    string
	)
	err := row.Scan(
		&post.ID,
		&accountID,
		&post.Content,
		pq.Array(&post.PhotoURLs),
		pq.Array(&post.Hashtags),
		pq.Array(&post.Tags),
		pq.Array(&post.Platforms),
		&post.ScheduledAt,
		&post.Status,
		&source,
		&post.GenerationID,
		&post.AIGenerated,
		&postedIDs,
		&post.Notes,
		&post.ContentHash,
		&post.PublishedAt,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return post, err
	}
	post.AccountID = accountID.String
	post.PhotoSource = models.PhotoSource(source)
	if len(postedIDs) > 0 {
		if err := json.Unmarshal(postedIDs, &post.PostedIDs); err != nil {
			return post, fmt.Errorf("decode posted_ids: %w", err)
		}
	}
	return post, nil
}

func (r *postRepository) CreatePost(ctx context.Context, post *models.Post) error {
	postedIDs, err := json.Marshal(nonNilMap(post.PostedIDs))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO posts (id, account_id, content, photo_urls, hashtags, tags, platforms, scheduled_at, status,
			photo_source, generation_id, ai_generated, posted_ids, notes, content_hash)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		post.ID,
		post.AccountID,
		post.Content,
		pq.Array(nonNil(post.PhotoURLs)),
		pq.Array(nonNil(post.Hashtags)),
		pq.Array(nonNil(post.Tags)),
		pq.Array(nonNil(post.Platforms)),
		post.ScheduledAt,
		post.Status,
		string(post.PhotoSource),
		post.GenerationID,
		post.AIGenerated,
		postedIDs,
		post.Notes,
		post.ContentHash,
	).Scan(&post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) GetPost(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListPosts(ctx context.Context, status models.PostStatus, limit int) ([]models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE ($1::text = '' OR status = $1::text) ORDER BY created_at DESC LIMIT $2`
	return r.queryPosts(ctx, query, string(status), limit)
}

func (r *postRepository) SelectPostsByStatusWindow(ctx context.Context, statuses []models.PostStatus, limit int) ([]models.Post, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = ANY($1) ORDER BY created_at DESC LIMIT $2`
	return r.queryPosts(ctx, query, pq.Array(values), limit)
}

func (r *postRepository) SelectDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at ASC LIMIT $3`
	return r.queryPosts(ctx, query, models.PostStatusApproved, now, limit)
}

func (r *postRepository) ListUnscheduledPosts(ctx context.Context, status models.PostStatus) ([]models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE status = $1 AND scheduled_at IS NULL ORDER BY created_at ASC`
	return r.queryPosts(ctx, query, status)
}

func (r *postRepository) BookedSlots(ctx context.Context, from time.Time) (map[string][]time.Time, error) {
	query := `SELECT account_id, scheduled_at FROM posts
		WHERE account_id IS NOT NULL AND scheduled_at IS NOT NULL AND scheduled_at >= $1`
	rows, err := r.db.QueryContext(ctx, query, from)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	booked := make(map[string][]time.Time)
	for rows.Next() {
		var accountID string
		var at time.Time
		if err := rows.Scan(&accountID, &at); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		booked[accountID] = append(booked[accountID], at.UTC())
	}
	return booked, rows.Err()
}

func (r *postRepository) CountDuePosts(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2`,
		models.PostStatusApproved, now).Scan(&n)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

func (r *postRepository) UpdatePostStatus(ctx context.Context, postID string, patch models.PostPatch) error {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.AccountID != nil {
		set("account_id", *patch.AccountID)
	}
	if patch.PhotoURLs != nil {
		set("photo_urls", pq.Array(nonNil(*patch.PhotoURLs)))
	}
	if patch.Platforms != nil {
		set("platforms", pq.Array(nonNil(*patch.Platforms)))
	}
	if patch.ScheduledAt != nil {
		set("scheduled_at", *patch.ScheduledAt)
	}
	if patch.PhotoSource != nil {
		set("photo_source", string(*patch.PhotoSource))
	}
	if patch.GenerationID != nil {
		set("generation_id", *patch.GenerationID)
	}
	if patch.AIGenerated != nil {
		set("ai_generated", *patch.AIGenerated)
	}
	if len(patch.PostedIDs) > 0 {
		encoded, err := json.Marshal(patch.PostedIDs)
		if err != nil {
			return err
		}
		args = append(args, encoded)
		sets = append(sets, fmt.Sprintf("posted_ids = COALESCE(posted_ids, '{}'::jsonb) || $%d::jsonb", len(args)))
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.PublishedAt != nil {
		// first entry into posted only; the column is never overwritten
		args = append(args, *patch.PublishedAt)
		sets = append(sets, fmt.Sprintf("published_at = COALESCE(published_at, $%d)", len(args)))
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	set("updated_at", updatedAt)

	args = append(args, postID)
	query := fmt.Sprintf("UPDATE posts SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	return nil
}

func (r *postRepository) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
