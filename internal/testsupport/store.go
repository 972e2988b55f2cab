package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
	"github.com/connorpauley-png/content-command-sub001/internal/queue"
	"github.com/connorpauley-png/content-command-sub001/internal/repository"
)

// MemStore is an in-memory stand-in for repository.Store. Every read returns copies.
type MemStore struct {
	mu sync.Mutex

	seq      int
	posts    map[string]*models.Post
	postSeq  map[string]int
	items    map[string]*models.QueueItem
	itemSeq  map[string]int
	accounts map[string]*models.Account
	acctSeq  map[string]int

	// QueueMissing makes every queue item call fail like a database without the queue table.
	QueueMissing bool
	// PostErr, when set, is returned by GetPost.
	PostErr error
}

func NewMemStore() *MemStore {
	return &MemStore{
		posts:    make(map[string]*models.Post),
		postSeq:  make(map[string]int),
		items:    make(map[string]*models.QueueItem),
		itemSeq:  make(map[string]int),
		accounts: make(map[string]*models.Account),
		acctSeq:  make(map[string]int),
	}
}

func (s *MemStore) next() int {
	s.seq++
	return s.seq
}

func (s *MemStore) queueErr() error {
	if s.QueueMissing {
		return fmt.Errorf("%w: relation \"queue_items\" does not exist", queue.ErrQueueUnavailable)
	}
	return nil
}

func copyPost(p *models.Post) models.Post {
	c := *p
	c.PhotoURLs = append([]string(nil), p.PhotoURLs...)
	c.Hashtags = append([]string(nil), p.Hashtags...)
	c.Tags = append([]string(nil), p.Tags...)
	c.Platforms = append([]string(nil), p.Platforms...)
	if p.PostedIDs != nil {
		c.PostedIDs = make(map[string]string, len(p.PostedIDs))
		for k, v := range p.PostedIDs {
			c.PostedIDs[k] = v
		}
	}
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		c.ScheduledAt = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	return c
}

func copyItem(q *models.QueueItem) models.QueueItem {
	c := *q
	c.PhotoURLs = append([]string(nil), q.PhotoURLs...)
	return c
}

// AddPost stores post as-is, for seeding tests.
func (s *MemStore) AddPost(post models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := copyPost(&post)
	s.posts[p.ID] = &p
	s.postSeq[p.ID] = s.next()
}

// AddQueueItem stores item as-is, for seeding tests.
func (s *MemStore) AddQueueItem(item models.QueueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := copyItem(&item)
	s.items[q.ID] = &q
	s.itemSeq[q.ID] = s.next()
}

// Post returns the stored post or fails the lookup with ok=false.
func (s *MemStore) Post(id string) (models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, false
	}
	return copyPost(p), true
}

// QueueItem returns the stored item.
func (s *MemStore) QueueItem(id string) (models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.items[id]
	if !ok {
		return models.QueueItem{}, false
	}
	return copyItem(q), true
}

func (s *MemStore) CreatePost(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; ok {
		return fmt.Errorf("post %s already exists", post.ID)
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	p := copyPost(post)
	s.posts[p.ID] = &p
	s.postSeq[p.ID] = s.next()
	return nil
}

func (s *MemStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PostErr != nil {
		return nil, s.PostErr
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, repository.ErrNotFound)
	}
	c := copyPost(p)
	return &c, nil
}

// sortedPosts returns matching posts, newest first.
func (s *MemStore) sortedPosts(match func(*models.Post) bool) []models.Post {
	var ids []string
	for id, p := range s.posts {
		if match(p) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.postSeq[ids[i]] > s.postSeq[ids[j]] })
	out := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyPost(s.posts[id]))
	}
	return out
}

func (s *MemStore) ListPosts(ctx context.Context, status models.PostStatus, limit int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := s.sortedPosts(func(p *models.Post) bool { return status == "" || p.Status == status })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *MemStore) UpdatePostStatus(ctx context.Context, postID string, patch models.PostPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return fmt.Errorf("post %s: %w", postID, repository.ErrNotFound)
	}
	patch.Apply(p)
	return nil
}

func (s *MemStore) SelectPostsByStatusWindow(ctx context.Context, statuses []models.PostStatus, limit int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := s.sortedPosts(func(p *models.Post) bool {
		for _, st := range statuses {
			if p.Status == st {
				return true
			}
		}
		return false
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *MemStore) SelectDuePosts(ctx context.Context, now time.Time, limit int) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := s.sortedPosts(func(p *models.Post) bool {
		return p.Status == models.PostStatusApproved && p.ScheduledAt != nil && !p.ScheduledAt.After(now)
	})
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ScheduledAt.Before(*posts[j].ScheduledAt) })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *MemStore) ListUnscheduledPosts(ctx context.Context, status models.PostStatus) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := s.sortedPosts(func(p *models.Post) bool { return p.Status == status && p.ScheduledAt == nil })
	// oldest first
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	return posts, nil
}

func (s *MemStore) BookedSlots(ctx context.Context, from time.Time) (map[string][]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	booked := make(map[string][]time.Time)
	for _, p := range s.posts {
		if p.AccountID == "" || p.ScheduledAt == nil || p.ScheduledAt.Before(from) {
			continue
		}
		booked[p.AccountID] = append(booked[p.AccountID], p.ScheduledAt.UTC())
	}
	return booked, nil
}

func (s *MemStore) CountDuePosts(ctx context.Context, now time.Time) (int, error) {
	posts, err := s.SelectDuePosts(ctx, now, 0)
	return len(posts), err
}

func (s *MemStore) CreateQueueItems(ctx context.Context, items []models.QueueItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queueErr(); err != nil {
		return 0, err
	}
	created := 0
	for _, item := range items {
		if s.hasOpenItem(item.PostID, item.Platform) {
			continue
		}
		q := copyItem(&item)
		if q.State == "" {
			q.State = models.QueueStatePending
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = time.Now().UTC()
		}
		s.items[q.ID] = &q
		s.itemSeq[q.ID] = s.next()
		created++
	}
	return created, nil
}

func (s *MemStore) hasOpenItem(postID, platform string) bool {
	for _, q := range s.items {
		if q.PostID == postID && q.Platform == platform && q.Open() {
			return true
		}
	}
	return false
}

func (s *MemStore) sortedItems(match func(*models.QueueItem) bool) []models.QueueItem {
	var ids []string
	for id, q := range s.items {
		if match(q) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.itemSeq[ids[i]] < s.itemSeq[ids[j]] })
	out := make([]models.QueueItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyItem(s.items[id]))
	}
	return out
}

func (s *MemStore) SelectDueQueueItems(ctx context.Context, now time.Time, limit int) ([]models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queueErr(); err != nil {
		return nil, err
	}
	items := s.sortedItems(func(q *models.QueueItem) bool { return q.Due(now) })
	sort.SliceStable(items, func(i, j int) bool { return items[i].ScheduledAt.Before(items[j].ScheduledAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemStore) UpdateQueueItem(ctx context.Context, id string, patch models.QueueItemPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queueErr(); err != nil {
		return err
	}
	q, ok := s.items[id]
	if !ok {
		return fmt.Errorf("queue item %s: %w", id, repository.ErrNotFound)
	}
	patch.Apply(q)
	return nil
}

func (s *MemStore) ListQueueItemsByPost(ctx context.Context, postID string) ([]models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queueErr(); err != nil {
		return nil, err
	}
	return s.sortedItems(func(q *models.QueueItem) bool { return q.PostID == postID }), nil
}

func (s *MemStore) ResetStaleProcessing(ctx context.Context, startedBefore, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queueErr(); err != nil {
		return 0, err
	}
	n := 0
	for _, q := range s.items {
		if q.State != models.QueueStateProcessing {
			continue
		}
		if q.LastAttemptAt != nil && !q.LastAttemptAt.Before(startedBefore) {
			continue
		}
		t := now
		q.State = models.QueueStateFailed
		q.NextRetryAt = &t
		q.ErrorMessage = "processing interrupted"
		n++
	}
	return n, nil
}

func (s *MemStore) QueueStats(ctx context.Context) (models.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.queueErr(); err != nil {
		return nil, err
	}
	stats := make(models.QueueStats)
	for _, q := range s.items {
		stats[q.State]++
	}
	return stats, nil
}

func (s *MemStore) CreateAccount(ctx context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	c.BestTimes = append([]string(nil), a.BestTimes...)
	s.accounts[c.ID] = &c
	s.acctSeq[c.ID] = s.next()
	return nil
}

func (s *MemStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (s *MemStore) sortedAccounts(match func(*models.Account) bool) []models.Account {
	var ids []string
	for id, a := range s.accounts {
		if match(a) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.acctSeq[ids[i]] < s.acctSeq[ids[j]] })
	out := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		a := *s.accounts[id]
		a.BestTimes = append([]string(nil), a.BestTimes...)
		out = append(out, a)
	}
	return out
}

func (s *MemStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAccounts(func(*models.Account) bool { return true }), nil
}

func (s *MemStore) AccountForPlatform(ctx context.Context, platform string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := s.sortedAccounts(func(a *models.Account) bool { return a.Platform == platform && a.Connected() })
	if len(accounts) == 0 {
		return nil, fmt.Errorf("account for %s: %w", platform, repository.ErrNotFound)
	}
	return &accounts[len(accounts)-1], nil
}

func (s *MemStore) ListAccountsExpiringBefore(ctx context.Context, before time.Time) ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAccounts(func(a *models.Account) bool {
		return a.Connected() && a.RefreshToken != "" && a.TokenExpiresAt != nil && a.TokenExpiresAt.Before(before)
	}), nil
}

func (s *MemStore) SetAccountTokens(ctx context.Context, id, oldAccessToken string, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[id]
	if !ok || stored.AccessToken != oldAccessToken {
		return fmt.Errorf("account %s token update: %w", id, repository.ErrNotFound)
	}
	if a.AccessToken != "" {
		stored.AccessToken = a.AccessToken
	}
	if a.RefreshToken != "" {
		stored.RefreshToken = a.RefreshToken
	}
	if a.TokenExpiresAt != nil {
		t := *a.TokenExpiresAt
		stored.TokenExpiresAt = &t
	}
	return nil
}

var (
	_ repository.PostRepository      = (*MemStore)(nil)
	_ repository.QueueItemRepository = (*MemStore)(nil)
	_ repository.AccountRepository   = (*MemStore)(nil)
	_ queue.Store                    = (*MemStore)(nil)
)
