package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"chirp/internal/events"
	"chirp/internal/models"
	"chirp/internal/repository"
)

// MaxCommentLen bounds comment content.
const MaxCommentLen = 1000

type CommentService struct {
	repo     repository.CommentRepository
	users    UserDirectory
	notifier *NotificationService
	emitter  Emitter
}

type AddCommentInput struct {
	PostID  uint
	UserID  string
	Content string
}

func NewCommentService(repo repository.CommentRepository, users UserDirectory, notifier *NotificationService, emitter Emitter) *CommentService {
	return &CommentService{repo: repo, users: users, notifier: notifier, emitter: emitter}
}

func (s *CommentService) AddComment(ctx context.Context, in AddCommentInput) (*models.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("Comment content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLen {
		return nil, models.NewValidationError("Comment too long (max 1000 characters)")
	}

	comment := &models.Comment{PostID: in.PostID, UserID: in.UserID, Content: content}
	res, err := s.repo.Add(ctx, comment)
	if err != nil {
		return nil, appError(err)
	}
	comment.Author = summaryFor(lookupSummaries(ctx, s.users, []string{in.UserID}), in.UserID)

	emit(s.emitter, events.Broadcast(events.CommentAdded, map[string]interface{}{
		"post_id":       in.PostID,
		"comment":       comment,
		"comment_count": res.CommentCount,
	}))
	s.notifier.Notify(ctx, NotifyInput{RecipientID: res.OwnerID, ActorID: in.UserID, Type: models.NotificationComment, PostID: &in.PostID})
	return comment, nil
}

// ListComments pages through a post's comments, newest first.
func (s *CommentService) ListComments(ctx context.Context, postID uint, viewerID, cursor string, limit int) (models.Page[*models.Comment], error) {
	page, err := s.repo.ListByPost(ctx, postID, viewerID, cursor, limit)
	if err != nil {
		return page, appError(err)
	}
	ids := make([]string, 0, len(page.Items))
	for _, c := range page.Items {
		ids = append(ids, c.UserID)
	}
	authors := lookupSummaries(ctx, s.users, ids)
	for _, c := range page.Items {
		c.Author = summaryFor(authors, c.UserID)
	}
	return page, nil
}
