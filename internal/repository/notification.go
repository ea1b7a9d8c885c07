package repository

import (
	"context"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
)

// NotificationRepository persists inbox entries.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, recipientID, cursor string, limit int) (models.Page[*models.Notification], error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id uint, recipientID string) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	PurgeRead(ctx context.Context, before time.Time) (int64, error)
}

// MaxNotificationPageSize caps a notifications page.
const MaxNotificationPageSize = 50

type notificationRepository struct {
	db      *gorm.DB
	metrics *observability.DatabaseMetrics
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db, metrics: observability.NewDatabaseMetrics("notifications")}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	defer r.metrics.TrackQuery("create")()
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) List(ctx context.Context, recipientID, cursor string, limit int) (models.Page[*models.Notification], error) {
	defer r.metrics.TrackQuery("list")()

	limit = ClampLimit(limit, DefaultPageSize, MaxNotificationPageSize)
	q := afterCursor(readDB(r.db).WithContext(ctx).Where("recipient_id = ?", recipientID), cursor, "created_at", "id")

	var rows []*models.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return models.Page[*models.Notification]{}, err
	}
	return buildPage(rows, limit, func(n *models.Notification) (time.Time, uint) { return n.CreatedAt, n.ID }), nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	var n int64
	err := readDB(r.db).WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&n).Error
	return n, err
}

// MarkRead flags one notification. It reports false when the id does not
// belong to recipientID.
func (r *notificationRepository) MarkRead(ctx context.Context, id uint, recipientID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("is_read", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// PurgeRead deletes read notifications created before the cutoff.
func (r *notificationRepository) PurgeRead(ctx context.Context, before time.Time) (int64, error) {
	defer r.metrics.TrackQuery("purge")()
	res := r.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, before).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
