package models

import (
	"time"
)

// Topic is one of the fixed forum sections a post is filed under.
type Topic string

const (
	TopicPolitics Topic = "Politics"
	TopicHealth   Topic = "Health"
	TopicSports   Topic = "Sports"
	TopicTech     Topic = "Tech"
)

// Topics lists every valid topic in display order.
var Topics = []Topic{TopicPolitics, TopicHealth, TopicSports, TopicTech}

// ParseTopic returns the matching Topic. Matching is exact.
func ParseTopic(s string) (Topic, bool) {
	for _, t := range Topics {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ExpiryStatus is the lifecycle state of a post.
type ExpiryStatus string

const (
	StatusLive    ExpiryStatus = "Live"
	StatusExpired ExpiryStatus = "Expired"
)

// Post is a topical message with a fixed lifespan.
//
// Likes and Dislikes hold usernames and are always disjoint; LikeCount and
// DislikeCount mirror their sizes. Comments is a projection of the comment
// records whose PostID is this post. Version increments on every write and
// guards compare-and-swap updates.
type Post struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	Author       string           `gorm:"size:64;index;not null" json:"username"`
	Title        string           `gorm:"size:255;not null" json:"title"`
	Topic        Topic            `gorm:"size:16;index;not null" json:"topic"`
	Text         string           `gorm:"type:text;not null" json:"text"`
	Likes        StringSet        `gorm:"serializer:json;type:text" json:"users_who_liked"`
	Dislikes     StringSet        `gorm:"serializer:json;type:text" json:"users_who_disliked"`
	LikeCount    int              `gorm:"not null;default:0" json:"like_count"`
	DislikeCount int              `gorm:"not null;default:0" json:"dislike_count"`
	Comments     CommentSummaries `gorm:"serializer:json;type:text" json:"comments"`
	Status       ExpiryStatus     `gorm:"size:16;index;not null;default:'Live'" json:"expiry_status"`
	CreatedAt    time.Time        `gorm:"index" json:"created_at"`
	ExpiresAt    time.Time        `gorm:"index" json:"expiry_date"`
	Version      int64            `gorm:"not null;default:0" json:"version"`
}

// Score is the combined engagement used for ranking.
func (p *Post) Score() int {
	return p.LikeCount + p.DislikeCount
}

// Clone returns a deep copy so callers can mutate it without aliasing the original.
func (p *Post) Clone() *Post {
	cp := *p
	cp.Likes = append(StringSet{}, p.Likes...)
	cp.Dislikes = append(StringSet{}, p.Dislikes...)
	cp.Comments = append(CommentSummaries{}, p.Comments...)
	return &cp
}
