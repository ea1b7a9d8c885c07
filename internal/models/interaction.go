package models

import "time"

// Like records that a user liked a post. At most one per (user, post).
type Like struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:24;not null;uniqueIndex:idx_likes_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_likes_user_post;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Like) TableName() string {
	return "likes"
}

// Retweet records a user re-sharing a post, optionally with a quote comment.
// Retweets draw ids from feed_event_seq, the same sequence posts use.
type Retweet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:24;not null;uniqueIndex:idx_retweets_user_post" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_retweets_user_post;index" json:"post_id"`
	Comment   string    `gorm:"size:280" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Retweet) TableName() string {
	return "retweets"
}

// ToggleResult is the outcome of a like or retweet toggle.
type ToggleResult struct {
	PostID  uint   `json:"post_id"`
	Active  bool   `json:"active"`
	Count   int64  `json:"count"`
	OwnerID string `json:"-"`
}
