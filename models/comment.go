package models

import "time"

// Comment is the authoritative record of a reply to a post.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	PostID    string    `gorm:"size:36;index;not null" json:"post_id_commented"`
	Author    string    `gorm:"size:64;index;not null" json:"username"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"date_created"`
}

// Summary projects the record into the form embedded in its post.
func (c *Comment) Summary() CommentSummary {
	return CommentSummary{CommentID: c.ID, Author: c.Author, Text: c.Text}
}
