// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Visibility controls who can see a post.
type Visibility string

const (
	// VisibilityPublic posts appear in feeds and search.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate posts are only visible to their author.
	VisibilityPrivate Visibility = "private"
)

// Post is an original piece of content. Posts share the feed_event_seq id
// sequence with retweets so feed items have one total order.
type Post struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       string     `gorm:"size:24;not null;index" json:"user_id"`
	Content      string     `gorm:"type:text;not null;default:''" json:"content"`
	MediaURLs    []string   `gorm:"serializer:json;type:jsonb" json:"media"`
	Hashtags     []string   `gorm:"serializer:json;type:jsonb" json:"hashtags"`
	Mentions     []string   `gorm:"serializer:json;type:jsonb" json:"mentions"`
	Location     string     `gorm:"size:120" json:"location,omitempty"`
	Visibility   Visibility `gorm:"type:varchar(16);not null;default:'public'" json:"visibility"`
	LikeCount    int64      `gorm:"not null;default:0" json:"like_count"`
	RetweetCount int64      `gorm:"not null;default:0" json:"retweet_count"`
	CommentCount int64      `gorm:"not null;default:0" json:"comment_count"`
	IsDeleted    bool       `gorm:"not null;default:false;index" json:"-"`
	DeletedAt    *time.Time `json:"-"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Poll *Poll `gorm:"foreignKey:PostID" json:"-"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}

// Visible reports whether the post may be shown to viewerID.
func (p *Post) Visible(viewerID string) bool {
	if p.IsDeleted {
		return false
	}
	return p.Visibility != VisibilityPrivate || p.UserID == viewerID
}
