package services

import (
	"fmt"

	"github.com/cppla/piazza/models"
)

// VoteAction is a like or a dislike.
type VoteAction string

const (
	VoteLike    VoteAction = "like"
	VoteDislike VoteAction = "dislike"
)

// ParseVoteAction accepts "like" or "dislike".
func ParseVoteAction(s string) (VoteAction, error) {
	switch VoteAction(s) {
	case VoteLike, VoteDislike:
		return VoteAction(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidVote, s)
}

// EngagementLedger applies votes to a post value. A voter is in at most one
// of the like/dislike sets, and the counts always equal the set sizes.
type EngagementLedger struct{}

// ApplyVote mutates post in place and reports whether anything changed.
// Repeating the voter's current vote is a no-op; the opposite vote switches sides.
func (EngagementLedger) ApplyVote(post *models.Post, voter string, action VoteAction) (bool, error) {
	switch action {
	case VoteLike:
		if post.Likes.Contains(voter) {
			return false, nil
		}
		post.Likes = post.Likes.Add(voter)
		post.Dislikes = post.Dislikes.Remove(voter)
	case VoteDislike:
		if post.Dislikes.Contains(voter) {
			return false, nil
		}
		post.Dislikes = post.Dislikes.Add(voter)
		post.Likes = post.Likes.Remove(voter)
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidVote, action)
	}
	Recount(post)
	return true, nil
}

// Recount derives the vote counts from the voter sets.
func Recount(post *models.Post) {
	post.LikeCount = len(post.Likes)
	post.DislikeCount = len(post.Dislikes)
}
