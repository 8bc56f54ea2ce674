package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAuthorNotFound = fmt.Errorf("user %w", ErrNotFound)
	ErrInvalidTopic   = errors.New("invalid topic")
	ErrInvalidVote    = errors.New("invalid vote action")
	ErrPostExpired    = errors.New("post has expired")
	ErrSelfEngagement = errors.New("cannot like/dislike own post")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("concurrent update conflict")
	ErrPersistence    = errors.New("persistence failure")
)

var domainErrors = []error{
	ErrNotFound, ErrInvalidTopic, ErrInvalidVote, ErrPostExpired,
	ErrSelfEngagement, ErrForbidden, ErrConflict, ErrPersistence,
}

// persistenceError tags a store error so callers can tell it from domain failures.
func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// classify passes domain errors through and tags everything else as persistence.
func classify(op string, err error) error {
	for _, kind := range domainErrors {
		if errors.Is(err, kind) {
			return err
		}
	}
	return persistenceError(op, err)
}
