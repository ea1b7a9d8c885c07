package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"chirp/internal/events"
	"chirp/internal/models"
	"chirp/internal/observability"
	"chirp/internal/repository"
)

// MaxRetweetCommentLen bounds the optional quote on a retweet.
const MaxRetweetCommentLen = 280

// InteractionService toggles likes and retweets and keeps counters honest.
type InteractionService struct {
	repo     repository.InteractionRepository
	notifier *NotificationService
	emitter  Emitter
}

func NewInteractionService(repo repository.InteractionRepository, notifier *NotificationService, emitter Emitter) *InteractionService {
	return &InteractionService{repo: repo, notifier: notifier, emitter: emitter}
}

// ToggleLike likes the post if userID has not, and unlikes it otherwise.
func (s *InteractionService) ToggleLike(ctx context.Context, postID uint, userID string) (*models.ToggleResult, error) {
	res, err := s.repo.ToggleLike(ctx, postID, userID)
	if err != nil {
		return nil, appError(err)
	}
	observability.InteractionToggles.WithLabelValues("like", toggleState(res.Active)).Inc()

	emit(s.emitter, events.Broadcast(events.LikeUpdated, map[string]interface{}{
		"post_id":    postID,
		"user_id":    userID,
		"liked":      res.Active,
		"like_count": res.Count,
	}))
	if res.Active {
		s.notifier.Notify(ctx, NotifyInput{RecipientID: res.OwnerID, ActorID: userID, Type: models.NotificationLike, PostID: &postID})
	}
	return res, nil
}

// ToggleRetweet retweets or un-retweets. comment is kept only on creation.
func (s *InteractionService) ToggleRetweet(ctx context.Context, postID uint, userID, comment string) (*models.ToggleResult, error) {
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxRetweetCommentLen {
		return nil, models.NewValidationError("Retweet comment too long (max 280 characters)")
	}

	res, err := s.repo.ToggleRetweet(ctx, postID, userID, comment)
	if err != nil {
		return nil, appError(err)
	}
	observability.InteractionToggles.WithLabelValues("retweet", toggleState(res.Active)).Inc()

	emit(s.emitter, events.Broadcast(events.RetweetUpdated, map[string]interface{}{
		"post_id":       postID,
		"user_id":       userID,
		"retweeted":     res.Active,
		"retweet_count": res.Count,
	}))
	if res.Active {
		emit(s.emitter, events.Broadcast(events.NewFeed, map[string]interface{}{
			"type":    models.FeedItemRetweet,
			"post_id": postID,
			"user_id": userID,
		}))
		s.notifier.Notify(ctx, NotifyInput{RecipientID: res.OwnerID, ActorID: userID, Type: models.NotificationRetweet, PostID: &postID})
	}
	return res, nil
}

// Reconcile repairs every counter that drifted from its join table.
func (s *InteractionService) Reconcile(ctx context.Context) (int64, error) {
	n, err := s.repo.Reconcile(ctx)
	if err != nil {
		return 0, appError(err)
	}
	observability.CounterDriftRepaired.Add(float64(n))
	return n, nil
}

func toggleState(active bool) string {
	if active {
		return "on"
	}
	return "off"
}
