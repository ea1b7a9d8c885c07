package models

import "time"

// Follow mirrors an identity-store follow edge into the relational store so
// feeds can join on it. At most one edge per ordered pair.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID string    `gorm:"size:24;not null;uniqueIndex:idx_user_follows_pair;index" json:"follower_id"`
	FolloweeID string    `gorm:"size:24;not null;uniqueIndex:idx_user_follows_pair;index" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "user_follows"
}
