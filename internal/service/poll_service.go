package service

import (
	"context"
	"errors"
	"time"

	"chirp/internal/events"
	"chirp/internal/models"
	"chirp/internal/observability"
	"chirp/internal/repository"
)

type PollService struct {
	polls   repository.PollRepository
	posts   repository.PostRepository
	emitter Emitter
	now     func() time.Time
}

func NewPollService(polls repository.PollRepository, posts repository.PostRepository, emitter Emitter) *PollService {
	return &PollService{polls: polls, posts: posts, emitter: emitter, now: time.Now}
}

// Vote records userID's single vote and returns the updated poll.
func (s *PollService) Vote(ctx context.Context, pollID, optionID uint, userID string) (*models.PollView, error) {
	if pollID == 0 || optionID == 0 {
		return nil, models.NewValidationError("poll_id and option_id are required")
	}
	poll, err := s.polls.Vote(ctx, pollID, optionID, userID)
	if err != nil {
		observability.PollVotes.WithLabelValues(voteOutcome(err)).Inc()
		return nil, appError(err)
	}
	observability.PollVotes.WithLabelValues("accepted").Inc()

	view := models.NewPollView(poll, &models.PollVote{PollID: pollID, UserID: userID, OptionID: optionID}, s.now())
	emit(s.emitter, events.Broadcast(events.PollUpdated, map[string]interface{}{
		"poll_id":     view.ID,
		"post_id":     view.PostID,
		"options":     view.Options,
		"total_votes": view.TotalVotes,
	}))
	return view, nil
}

// GetPollByPost returns the poll on a post the viewer can see.
func (s *PollService) GetPollByPost(ctx context.Context, postID uint, viewerID string) (*models.PollView, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, appError(err)
	}
	if !post.Visible(viewerID) {
		return nil, models.NewNotFoundMessage("Poll not found")
	}
	poll, err := s.polls.GetByPostID(ctx, postID)
	if err != nil {
		return nil, appError(err)
	}
	vote, err := s.polls.GetVote(ctx, poll.ID, viewerID)
	if err != nil {
		return nil, appError(err)
	}
	return models.NewPollView(poll, vote, s.now()), nil
}

func voteOutcome(err error) string {
	switch {
	case errors.Is(err, models.ErrAlreadyVoted):
		return "duplicate"
	case errors.Is(err, repository.ErrPollExpired):
		return "expired"
	default:
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return "rejected"
		}
		return "error"
	}
}
