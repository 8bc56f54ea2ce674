package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cppla/piazza/models"
	"github.com/cppla/piazza/repository"
)

// CommentStore owns comment records. Authorization is the caller's job.
type CommentStore struct {
	repo  repository.CommentRepository
	clock Clock
}

// NewCommentStore wraps a comment repository.
func NewCommentStore(repo repository.CommentRepository, clock Clock) *CommentStore {
	return &CommentStore{repo: repo, clock: clock}
}

// within returns a copy bound to another repository, e.g. one inside a transaction.
func (c *CommentStore) within(repo repository.CommentRepository) *CommentStore {
	return &CommentStore{repo: repo, clock: c.clock}
}

// Create assigns an id and timestamp and persists the record.
func (c *CommentStore) Create(ctx context.Context, author, text, parentPostID string) (*models.Comment, error) {
	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    parentPostID,
		Author:    author,
		Text:      text,
		CreatedAt: c.clock.Now(),
	}
	if err := c.repo.Create(ctx, comment); err != nil {
		return nil, persistenceError("create comment", err)
	}
	return comment, nil
}

// DeleteByIDScopedToAuthor removes the record only if it exists and belongs to author.
func (c *CommentStore) DeleteByIDScopedToAuthor(ctx context.Context, commentID, author string) (bool, error) {
	removed, err := c.repo.DeleteByAuthor(ctx, commentID, author)
	if err != nil {
		return false, persistenceError("delete comment", err)
	}
	return removed, nil
}

// FindByID loads one record.
func (c *CommentStore) FindByID(ctx context.Context, commentID string) (*models.Comment, error) {
	comment, err := c.repo.Get(ctx, commentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	if err != nil {
		return nil, persistenceError("load comment", err)
	}
	return comment, nil
}

// FindByParentPost lists a post's records oldest first.
func (c *CommentStore) FindByParentPost(ctx context.Context, postID string) ([]models.Comment, error) {
	items, err := c.repo.ListByPost(ctx, postID)
	if err != nil {
		return nil, persistenceError("list comments", err)
	}
	return items, nil
}
