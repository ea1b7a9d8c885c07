package models

import "time"

// NotificationType identifies what produced a notification.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationRetweet NotificationType = "retweet"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationMention NotificationType = "mention"
)

// Notification is an append-only inbox entry for RecipientID.
type Notification struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RecipientID string           `gorm:"size:24;not null;index:idx_notifications_recipient_created" json:"recipient_id"`
	ActorID     string           `gorm:"size:24;not null" json:"actor_id"`
	Type        NotificationType `gorm:"type:varchar(16);not null" json:"type"`
	PostID      *uint            `json:"post_id,omitempty"`
	Message     string           `gorm:"size:255;not null" json:"message"`
	IsRead      bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time        `gorm:"index:idx_notifications_recipient_created" json:"created_at"`

	Actor *UserSummary `gorm:"-" json:"actor,omitempty"`
}

// TableName specifies the table name for GORM
func (Notification) TableName() string {
	return "notifications"
}
