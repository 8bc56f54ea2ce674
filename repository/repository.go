// Package repository persists posts, comment records and the user directory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cppla/piazza/models"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("record not found")

// PostFilter narrows a post listing. Zero fields match everything.
type PostFilter struct {
	Topic  models.Topic
	Status models.ExpiryStatus
	Author string
}

// PostRepository stores post documents.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	Get(ctx context.Context, id string) (*models.Post, error)
	// List returns matching posts, newest first.
	List(ctx context.Context, filter PostFilter) ([]models.Post, error)
	// CompareAndSwap writes the mutable fields of next only if the stored
	// version still equals expectedVersion. On success next.Version is bumped.
	CompareAndSwap(ctx context.Context, next *models.Post, expectedVersion int64) (bool, error)
	// ExpireIfDue flips a Live post whose expiry is at or before now.
	ExpireIfDue(ctx context.Context, id string, now time.Time) (bool, error)
	// ExpireAllDue is the bulk form of ExpireIfDue and returns the rows changed.
	ExpireAllDue(ctx context.Context, now time.Time) (int64, error)
}

// CommentRepository stores authoritative comment records.
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	Get(ctx context.Context, id string) (*models.Comment, error)
	// ListByPost returns the comments of a post, oldest first.
	ListByPost(ctx context.Context, postID string) ([]models.Comment, error)
	// DeleteByAuthor removes the record only when both id and author match.
	DeleteByAuthor(ctx context.Context, id, author string) (bool, error)
}

// UserDirectory resolves usernames issued by the identity provider.
type UserDirectory interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// Store groups the repositories that make up one persistence backend.
type Store interface {
	Posts() PostRepository
	Comments() CommentRepository
	Users() UserDirectory
	// Atomic runs fn against a transactional view of the store where the
	// backend supports it. A non-nil error from fn aborts the transaction.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
