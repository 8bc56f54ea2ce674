package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/piazza/models"
	"github.com/cppla/piazza/repository"
)

// DefaultVoteRetries bounds the compare-and-swap attempts of one mutation.
const DefaultVoteRetries = 5

// Options configures a LifecycleService. Zero values pick defaults.
type Options struct {
	Clock      Clock
	Policy     ExpiryPolicy
	MaxRetries int
	Logger     *zap.Logger
}

// LifecycleService is the entry point for every post mutation. It refreshes
// expiry, checks the acting user against the stored author, and persists
// engagement changes with optimistic concurrency.
type LifecycleService struct {
	store      repository.Store
	clock      Clock
	policy     ExpiryPolicy
	ledger     EngagementLedger
	comments   *CommentStore
	maxRetries int
	logger     *zap.Logger
}

// CommentDeletion is the outcome of DeleteComment. ParentRemoved is set, with a
// nil Post, when the comment's post no longer exists; nothing is deleted then.
type CommentDeletion struct {
	Post          *models.Post
	ParentRemoved bool
}

// ReconcileReport lists the summaries a reconciliation pass added or dropped.
type ReconcileReport struct {
	Post    *models.Post
	Added   []string
	Dropped []string
}

func NewLifecycleService(store repository.Store, opts Options) *LifecycleService {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Policy.Lifespan <= 0 {
		opts.Policy = NewExpiryPolicy(0)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultVoteRetries
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &LifecycleService{
		store:      store,
		clock:      opts.Clock,
		policy:     opts.Policy,
		comments:   NewCommentStore(store.Comments(), opts.Clock),
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}
}

// Comments exposes the comment store for read paths.
func (s *LifecycleService) Comments() *CommentStore { return s.comments }

// CreatePost validates the topic and author and stores a new Live post.
func (s *LifecycleService) CreatePost(ctx context.Context, author, title, topic, text string) (*models.Post, error) {
	t, err := parseTopic(topic)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, author); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	post := &models.Post{
		ID:        uuid.NewString(),
		Author:    author,
		Title:     title,
		Topic:     t,
		Text:      text,
		Likes:     models.StringSet{},
		Dislikes:  models.StringSet{},
		Comments:  models.CommentSummaries{},
		Status:    models.StatusLive,
		CreatedAt: now,
		ExpiresAt: s.policy.ComputeExpiry(now),
	}
	if err := s.store.Posts().Create(ctx, post); err != nil {
		return nil, persistenceError("create post", err)
	}
	s.logger.Info("post created", zap.String("post_id", post.ID), zap.String("author", author), zap.String("topic", string(t)))
	return post, nil
}

// RefreshAndGet loads a post, first moving it to Expired if its time is up.
func (s *LifecycleService) RefreshAndGet(ctx context.Context, postID string) (*models.Post, error) {
	posts := s.store.Posts()
	post, err := s.load(ctx, posts, postID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if post.Status != models.StatusLive || !s.policy.IsExpired(now, post.ExpiresAt) {
		return post, nil
	}
	flipped, err := posts.ExpireIfDue(ctx, postID, now)
	if err != nil {
		return nil, persistenceError("expire post", err)
	}
	if flipped {
		s.logger.Debug("post expired", zap.String("post_id", postID))
	}
	// Reload either way: a concurrent refresh may have won the transition.
	return s.load(ctx, posts, postID)
}

// BulkRefreshExpired expires every Live post whose time is up. Safe to run
// concurrently with itself and with RefreshAndGet.
func (s *LifecycleService) BulkRefreshExpired(ctx context.Context) (int64, error) {
	n, err := s.store.Posts().ExpireAllDue(ctx, s.clock.Now())
	if err != nil {
		return 0, persistenceError("expire posts", err)
	}
	if n > 0 {
		s.logger.Info("expired posts", zap.Int64("count", n))
	}
	return n, nil
}

// ApplyVote records a like or dislike by actor.
func (s *LifecycleService) ApplyVote(ctx context.Context, postID, actor string, action VoteAction) (*models.Post, error) {
	if action != VoteLike && action != VoteDislike {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVote, action)
	}
	if _, err := s.RefreshAndGet(ctx, postID); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, actor); err != nil {
		return nil, err
	}
	post, err := s.mutate(ctx, s.store.Posts(), postID, func(p *models.Post) (bool, error) {
		if err := s.ensureLive(p); err != nil {
			return false, err
		}
		if p.Author == actor {
			return false, ErrSelfEngagement
		}
		return s.ledger.ApplyVote(p, actor, action)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("vote applied", zap.String("post_id", postID), zap.String("user", actor), zap.String("action", string(action)))
	return post, nil
}

// AddComment stores a comment record and appends its summary to the post.
func (s *LifecycleService) AddComment(ctx context.Context, postID, actor, text string) (*models.Comment, error) {
	post, err := s.RefreshAndGet(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLive(post); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, actor); err != nil {
		return nil, err
	}

	var created *models.Comment
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		c, err := s.comments.within(tx.Comments()).Create(ctx, actor, text, postID)
		if err != nil {
			return err
		}
		created = c
		_, err = s.mutate(ctx, tx.Posts(), postID, func(p *models.Post) (bool, error) {
			if err := s.ensureLive(p); err != nil {
				return false, err
			}
			p.Comments = append(p.Comments, c.Summary())
			return true, nil
		})
		return err
	})
	if err != nil {
		if created != nil {
			s.discardComment(ctx, created)
		}
		return nil, classify("add comment", err)
	}
	s.logger.Info("comment added", zap.String("post_id", postID), zap.String("comment_id", created.ID), zap.String("author", actor))
	return created, nil
}

// DeleteComment removes actor's own comment from a Live post.
func (s *LifecycleService) DeleteComment(ctx context.Context, commentID, actor string) (*CommentDeletion, error) {
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	post, err := s.store.Posts().Get(ctx, comment.PostID)
	if errors.Is(err, repository.ErrNotFound) {
		return &CommentDeletion{ParentRemoved: true}, nil
	}
	if err != nil {
		return nil, persistenceError("load post", err)
	}
	if err := s.ensureLive(post); err != nil {
		return nil, err
	}
	if comment.Author != actor {
		return nil, fmt.Errorf("%w: comment belongs to another user", ErrForbidden)
	}

	var updated *models.Post
	err = s.store.Atomic(ctx, func(tx repository.Store) error {
		removed, err := s.comments.within(tx.Comments()).DeleteByIDScopedToAuthor(ctx, commentID, actor)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
		}
		updated, err = s.mutate(ctx, tx.Posts(), comment.PostID, func(p *models.Post) (bool, error) {
			if err := s.ensureLive(p); err != nil {
				return false, err
			}
			if p.Comments.IndexOf(commentID) < 0 {
				return false, nil
			}
			p.Comments = p.Comments.Without(commentID)
			return true, nil
		})
		return err
	})
	if err != nil {
		return nil, classify("delete comment", err)
	}
	s.logger.Info("comment deleted", zap.String("post_id", comment.PostID), zap.String("comment_id", commentID))
	return &CommentDeletion{Post: updated}, nil
}

// ReconcileComments rebuilds a post's embedded comment list from the
// authoritative records, adding missing summaries and dropping orphans.
func (s *LifecycleService) ReconcileComments(ctx context.Context, postID string) (*ReconcileReport, error) {
	records, err := s.comments.FindByParentPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{}
	post, err := s.mutate(ctx, s.store.Posts(), postID, func(p *models.Post) (bool, error) {
		report.Added, report.Dropped = nil, nil
		want := make(map[string]bool, len(records))
		for _, r := range records {
			want[r.ID] = true
		}
		have := make(map[string]bool, len(p.Comments))
		for _, c := range p.Comments {
			if !want[c.CommentID] || have[c.CommentID] {
				report.Dropped = append(report.Dropped, c.CommentID)
			}
			have[c.CommentID] = true
		}
		rebuilt := make(models.CommentSummaries, 0, len(records))
		for i := range records {
			if !have[records[i].ID] {
				report.Added = append(report.Added, records[i].ID)
			}
			rebuilt = append(rebuilt, records[i].Summary())
		}
		if len(report.Added) == 0 && len(report.Dropped) == 0 {
			return false, nil
		}
		p.Comments = rebuilt
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	report.Post = post
	if len(report.Added)+len(report.Dropped) > 0 {
		s.logger.Warn("comment summaries reconciled", zap.String("post_id", postID),
			zap.Strings("added", report.Added), zap.Strings("dropped", report.Dropped))
	}
	return report, nil
}

// mutate applies fn to the latest stored post and writes it back with a
// compare-and-swap, retrying on version conflicts up to maxRetries times.
// fn returning false means no write is needed.
func (s *LifecycleService) mutate(ctx context.Context, posts repository.PostRepository, postID string, fn func(*models.Post) (bool, error)) (*models.Post, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		current, err := s.load(ctx, posts, postID)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		changed, err := fn(next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}
		ok, err := posts.CompareAndSwap(ctx, next, current.Version)
		if err != nil {
			return nil, persistenceError("update post", err)
		}
		if ok {
			return next, nil
		}
		s.logger.Debug("post version conflict", zap.String("post_id", postID), zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("post %s: %w after %d attempts", postID, ErrConflict, s.maxRetries)
}

func (s *LifecycleService) load(ctx context.Context, posts repository.PostRepository, postID string) (*models.Post, error) {
	post, err := posts.Get(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, persistenceError("load post", err)
	}
	return post, nil
}

// ensureLive rejects posts that are Expired or past their expiry instant.
func (s *LifecycleService) ensureLive(p *models.Post) error {
	if p.Status == models.StatusExpired || s.policy.IsExpired(s.clock.Now(), p.ExpiresAt) {
		return ErrPostExpired
	}
	return nil
}

func (s *LifecycleService) requireUser(ctx context.Context, username string) error {
	ok, err := s.store.Users().Exists(ctx, username)
	if err != nil {
		return persistenceError("resolve user", err)
	}
	if !ok {
		return fmt.Errorf("%q: %w", username, ErrAuthorNotFound)
	}
	return nil
}

// discardComment undoes a comment record whose summary never reached the post.
// If that fails too the record is left for ReconcileComments and logged.
func (s *LifecycleService) discardComment(ctx context.Context, c *models.Comment) {
	if _, err := s.comments.DeleteByIDScopedToAuthor(ctx, c.ID, c.Author); err != nil {
		s.logger.Error("comment record has no post summary; reconcile required",
			zap.String("post_id", c.PostID), zap.String("comment_id", c.ID), zap.Error(err))
	}
}
