package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cppla/piazza/models"
)

// MemoryStore is an in-process Store. Atomic serializes callers and, when fn
// fails, restores every post and comment the transaction wrote.
type MemoryStore struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	posts    map[string]*models.Post
	comments map[string]*models.Comment
	users    map[string]struct{}
}

// NewMemoryStore creates an empty store seeded with the given usernames.
func NewMemoryStore(usernames ...string) *MemoryStore {
	s := &MemoryStore{
		posts:    make(map[string]*models.Post),
		comments: make(map[string]*models.Comment),
		users:    make(map[string]struct{}),
	}
	s.AddUsers(usernames...)
	return s
}

// AddUsers registers usernames in the directory.
func (s *MemoryStore) AddUsers(usernames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range usernames {
		s.users[u] = struct{}{}
	}
}

func (s *MemoryStore) Posts() PostRepository       { return memoryPosts{s} }
func (s *MemoryStore) Comments() CommentRepository { return memoryComments{s} }
func (s *MemoryStore) Users() UserDirectory        { return memoryUsers{s} }

func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	tx := &memoryTx{
		s:        s,
		posts:    map[string]*models.Post{},
		wrote:    map[string]int64{},
		comments: map[string]*models.Comment{},
	}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryTx records the prior state of every row it writes. A nil entry means
// the row did not exist. wrote holds the post version this transaction left
// behind; a post someone else has since moved past is not restored.
type memoryTx struct {
	s        *MemoryStore
	posts    map[string]*models.Post
	wrote    map[string]int64
	comments map[string]*models.Comment
}

func (tx *memoryTx) Posts() PostRepository       { return txPosts{memoryPosts{tx.s}, tx} }
func (tx *memoryTx) Comments() CommentRepository { return txComments{memoryComments{tx.s}, tx} }
func (tx *memoryTx) Users() UserDirectory        { return memoryUsers{tx.s} }

func (tx *memoryTx) Atomic(_ context.Context, fn func(tx Store) error) error {
	return fn(tx)
}

func (tx *memoryTx) savePosts(ids ...string) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for _, id := range ids {
		if _, ok := tx.posts[id]; ok {
			continue
		}
		if p, ok := tx.s.posts[id]; ok {
			tx.posts[id] = p.Clone()
		} else {
			tx.posts[id] = nil
		}
	}
}

func (tx *memoryTx) markPosts(ids ...string) {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	for _, id := range ids {
		if p, ok := tx.s.posts[id]; ok {
			tx.wrote[id] = p.Version
		}
	}
}

func (tx *memoryTx) allPostIDs() []string {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	ids := make([]string, 0, len(tx.s.posts))
	for id, p := range tx.s.posts {
		if p.Status == models.StatusLive {
			ids = append(ids, id)
		}
	}
	return ids
}

func (tx *memoryTx) saveComment(id string) {
	if _, ok := tx.comments[id]; ok {
		return
	}
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if c, ok := tx.s.comments[id]; ok {
		cp := *c
		tx.comments[id] = &cp
	} else {
		tx.comments[id] = nil
	}
}

func (tx *memoryTx) rollback() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for id, prior := range tx.posts {
		v, ok := tx.wrote[id]
		cur, exists := tx.s.posts[id]
		if !ok || !exists || cur.Version != v {
			continue
		}
		if prior == nil {
			delete(tx.s.posts, id)
		} else {
			tx.s.posts[id] = prior
		}
	}
	for id, c := range tx.comments {
		if c == nil {
			delete(tx.s.comments, id)
		} else {
			tx.s.comments[id] = c
		}
	}
}

type txPosts struct {
	memoryPosts
	tx *memoryTx
}

func (r txPosts) Create(ctx context.Context, post *models.Post) error {
	r.tx.savePosts(post.ID)
	if err := r.memoryPosts.Create(ctx, post); err != nil {
		return err
	}
	r.tx.markPosts(post.ID)
	return nil
}

func (r txPosts) CompareAndSwap(ctx context.Context, next *models.Post, expectedVersion int64) (bool, error) {
	r.tx.savePosts(next.ID)
	ok, err := r.memoryPosts.CompareAndSwap(ctx, next, expectedVersion)
	if ok {
		r.tx.wrote[next.ID] = next.Version
	}
	return ok, err
}

func (r txPosts) ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error) {
	r.tx.savePosts(id)
	flipped, err := r.memoryPosts.ExpireIfDue(ctx, id, now)
	if flipped {
		r.tx.markPosts(id)
	}
	return flipped, err
}

func (r txPosts) ExpireAllDue(ctx context.Context, now time.Time) (int64, error) {
	ids := r.tx.allPostIDs()
	r.tx.savePosts(ids...)
	n, err := r.memoryPosts.ExpireAllDue(ctx, now)
	r.tx.markPosts(ids...)
	return n, err
}

type txComments struct {
	memoryComments
	tx *memoryTx
}

func (r txComments) Create(ctx context.Context, comment *models.Comment) error {
	r.tx.saveComment(comment.ID)
	return r.memoryComments.Create(ctx, comment)
}

func (r txComments) DeleteByAuthor(ctx context.Context, id, author string) (bool, error) {
	r.tx.saveComment(id)
	return r.memoryComments.DeleteByAuthor(ctx, id, author)
}

type memoryPosts struct{ s *MemoryStore }

func (r memoryPosts) Create(_ context.Context, post *models.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.posts[post.ID] = post.Clone()
	return nil
}

func (r memoryPosts) Get(_ context.Context, id string) (*models.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r memoryPosts) List(_ context.Context, filter PostFilter) ([]models.Post, error) {
	r.s.mu.RLock()
	out := make([]models.Post, 0, len(r.s.posts))
	for _, p := range r.s.posts {
		if filter.Topic != "" && p.Topic != filter.Topic {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Author != "" && p.Author != filter.Author {
			continue
		}
		out = append(out, *p.Clone())
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memoryPosts) CompareAndSwap(_ context.Context, next *models.Post, expectedVersion int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.posts[next.ID]
	if !ok || cur.Version != expectedVersion {
		return false, nil
	}
	stored := cur.Clone()
	stored.Likes = append(models.StringSet{}, next.Likes...)
	stored.Dislikes = append(models.StringSet{}, next.Dislikes...)
	stored.LikeCount = next.LikeCount
	stored.DislikeCount = next.DislikeCount
	stored.Comments = append(models.CommentSummaries{}, next.Comments...)
	stored.Status = next.Status
	stored.Version = expectedVersion + 1
	r.s.posts[next.ID] = stored
	next.Version = stored.Version
	return true, nil
}

func (r memoryPosts) ExpireIfDue(_ context.Context, id string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return false, nil
	}
	return expireLocked(p, now), nil
}

func (r memoryPosts) ExpireAllDue(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.posts {
		if expireLocked(p, now) {
			n++
		}
	}
	return n, nil
}

func expireLocked(p *models.Post, now time.Time) bool {
	if p.Status != models.StatusLive || p.ExpiresAt.After(now) {
		return false
	}
	p.Status = models.StatusExpired
	p.Version++
	return true
}

type memoryComments struct{ s *MemoryStore }

func (r memoryComments) Create(_ context.Context, comment *models.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *comment
	r.s.comments[comment.ID] = &cp
	return nil
}

func (r memoryComments) Get(_ context.Context, id string) (*models.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memoryComments) ListByPost(_ context.Context, postID string) ([]models.Comment, error) {
	r.s.mu.RLock()
	var out []models.Comment
	for _, c := range r.s.comments {
		if c.PostID == postID {
			out = append(out, *c)
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memoryComments) DeleteByAuthor(_ context.Context, id, author string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.comments[id]
	if !ok || c.Author != author {
		return false, nil
	}
	delete(r.s.comments, id)
	return true, nil
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Exists(_ context.Context, username string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.users[username]
	return ok, nil
}
