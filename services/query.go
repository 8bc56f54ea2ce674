package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/cppla/piazza/models"
	"github.com/cppla/piazza/repository"
)

// QueryService serves listings. Every query bulk-refreshes expiry first so
// statuses are current without touching rows one by one.
//
// Empty results come back as empty slices (or a nil post), never as errors.
type QueryService struct {
	lifecycle *LifecycleService
	posts     repository.PostRepository
}

func NewQueryService(store repository.Store, lifecycle *LifecycleService) *QueryService {
	return &QueryService{lifecycle: lifecycle, posts: store.Posts()}
}

func (q *QueryService) ListAll(ctx context.Context) ([]models.Post, error) {
	return q.list(ctx, repository.PostFilter{})
}

func (q *QueryService) ListByTopic(ctx context.Context, topic string) ([]models.Post, error) {
	t, err := parseTopic(topic)
	if err != nil {
		return nil, err
	}
	return q.list(ctx, repository.PostFilter{Topic: t})
}

func (q *QueryService) ListExpiredByTopic(ctx context.Context, topic string) ([]models.Post, error) {
	t, err := parseTopic(topic)
	if err != nil {
		return nil, err
	}
	return q.list(ctx, repository.PostFilter{Topic: t, Status: models.StatusExpired})
}

func (q *QueryService) ListByAuthor(ctx context.Context, author string) ([]models.Post, error) {
	return q.list(ctx, repository.PostFilter{Author: author})
}

// TopPostByTopic returns the post with the most likes plus dislikes, or nil
// when the topic is empty. Ties go to the earliest created post, then the
// smallest id.
func (q *QueryService) TopPostByTopic(ctx context.Context, topic string) (*models.Post, error) {
	posts, err := q.ListByTopic(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := &posts[i], &posts[j]
		if a.Score() != b.Score() {
			return a.Score() > b.Score()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &posts[0], nil
}

func (q *QueryService) list(ctx context.Context, filter repository.PostFilter) ([]models.Post, error) {
	if _, err := q.lifecycle.BulkRefreshExpired(ctx); err != nil {
		return nil, err
	}
	posts, err := q.posts.List(ctx, filter)
	if err != nil {
		return nil, persistenceError("list posts", err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

func parseTopic(topic string) (models.Topic, error) {
	t, ok := models.ParseTopic(topic)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return t, nil
}
