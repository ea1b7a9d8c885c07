package service

import (
	"context"

	"chirp/internal/models"
	"chirp/internal/repository"
)

// FeedService assembles timelines and resolves the people on them.
type FeedService struct {
	feed  repository.FeedRepository
	users UserDirectory
}

func NewFeedService(feed repository.FeedRepository, users UserDirectory) *FeedService {
	return &FeedService{feed: feed, users: users}
}

// Live returns every public post and retweet, newest first.
func (s *FeedService) Live(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
	page, err := s.feed.Live(ctx, viewerID, cursor, limit)
	if err != nil {
		return page, appError(err)
	}
	s.attachPeople(ctx, page.Items)
	return page, nil
}

// Following restricts the timeline to viewerID and the users they follow.
func (s *FeedService) Following(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
	if viewerID == "" {
		return models.Page[models.FeedItem]{}, models.NewUnauthorizedError("Authentication required")
	}
	page, err := s.feed.Following(ctx, viewerID, cursor, limit)
	if err != nil {
		return page, appError(err)
	}
	s.attachPeople(ctx, page.Items)
	return page, nil
}

// attachPeople batches authors and retweeters of a page into one lookup.
func (s *FeedService) attachPeople(ctx context.Context, items []models.FeedItem) {
	ids := make([]string, 0, len(items)*2)
	for _, it := range items {
		ids = append(ids, it.Post.UserID)
		if it.RetweetedBy != nil {
			ids = append(ids, it.RetweetedBy.ID)
		}
	}
	people := lookupSummaries(ctx, s.users, ids)
	for i := range items {
		items[i].Post.Author = summaryFor(people, items[i].Post.UserID)
		if items[i].RetweetedBy != nil {
			items[i].RetweetedBy = summaryFor(people, items[i].RetweetedBy.ID)
		}
	}
}
