package service

import (
	"context"
	"time"

	"chirp/internal/events"
	"chirp/internal/models"
	"chirp/internal/repository"
)

// NotifyInput describes one inbox entry to create.
type NotifyInput struct {
	RecipientID string
	ActorID     string
	Type        models.NotificationType
	PostID      *uint
}

type NotificationService struct {
	repo    repository.NotificationRepository
	users   UserDirectory
	emitter Emitter
	now     func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, users UserDirectory, emitter Emitter) *NotificationService {
	return &NotificationService{repo: repo, users: users, emitter: emitter, now: time.Now}
}

var notificationVerbs = map[models.NotificationType]string{
	models.NotificationLike:    "liked your post",
	models.NotificationRetweet: "retweeted your post",
	models.NotificationComment: "commented on your post",
	models.NotificationFollow:  "followed you",
	models.NotificationMention: "mentioned you in a post",
}

// Notify stores a notification and pushes it to the recipient. Self-directed
// actions are skipped. Failures are logged and never returned: the action
// that triggered the notification has already committed.
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) {
	if s == nil || in.RecipientID == "" || in.RecipientID == in.ActorID {
		return
	}
	verb, ok := notificationVerbs[in.Type]
	if !ok {
		return
	}

	actor := summaryFor(lookupSummaries(ctx, s.users, []string{in.ActorID}), in.ActorID)
	name := actor.Username
	if name == "" {
		name = "Someone"
	}

	n := &models.Notification{
		RecipientID: in.RecipientID,
		ActorID:     in.ActorID,
		Type:        in.Type,
		PostID:      in.PostID,
		Message:     name + " " + verb,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		logAsync(ctx, "create_notification", err, map[string]interface{}{
			"recipient_id": in.RecipientID,
			"type":         in.Type,
		})
		return
	}
	n.Actor = actor
	emit(s.emitter, events.ToUser(in.RecipientID, events.Notification, n))
}

// List pages through userID's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID, cursor string, limit int) (models.Page[*models.Notification], error) {
	page, err := s.repo.List(ctx, userID, cursor, limit)
	if err != nil {
		return page, appError(err)
	}
	ids := make([]string, 0, len(page.Items))
	for _, n := range page.Items {
		ids = append(ids, n.ActorID)
	}
	actors := lookupSummaries(ctx, s.users, ids)
	for _, n := range page.Items {
		n.Actor = summaryFor(actors, n.ActorID)
	}
	return page, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.UnreadCount(ctx, userID)
	return n, appError(err)
}

// MarkRead flags one of userID's notifications. Someone else's id is
// reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, id uint, userID string) error {
	ok, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return appError(err)
	}
	if !ok {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	return n, appError(err)
}

// PurgeRead deletes read notifications older than age.
func (s *NotificationService) PurgeRead(ctx context.Context, age time.Duration) (int64, error) {
	n, err := s.repo.PurgeRead(ctx, s.now().Add(-age))
	return n, appError(err)
}
