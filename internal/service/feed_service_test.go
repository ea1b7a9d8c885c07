package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"chirp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedPage() models.Page[models.FeedItem] {
	now := time.Now()
	post := &models.PostView{Post: models.Post{ID: 1, UserID: aliceID}}
	return models.Page[models.FeedItem]{
		Items: []models.FeedItem{
			{Type: models.FeedItemRetweet, EventID: 3, EventTime: now, Post: post, RetweetedBy: &models.UserSummary{ID: bobID}, RetweetComment: "+1"},
			{Type: models.FeedItemPost, EventID: 1, EventTime: now.Add(-time.Minute), Post: post},
		},
		NextCursor: "cursor",
		HasMore:    true,
	}
}

func TestFeedService_Live_ResolvesAuthorsAndRetweeters(t *testing.T) {
	t.Parallel()

	repo := noopFeedRepo()
	repo.liveFn = func(_ context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
		assert.Equal(t, "", viewerID)
		assert.Equal(t, "abc", cursor)
		assert.Equal(t, 10, limit)
		return feedPage(), nil
	}
	var lookups int
	users := directoryOf(testUser(aliceID, "alice"), testUser(bobID, "bob"))
	inner := users.summariesFn
	users.summariesFn = func(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
		lookups++
		return inner(ctx, ids)
	}
	svc := NewFeedService(repo, users)

	page, err := svc.Live(context.Background(), "", "abc", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, lookups)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "alice", page.Items[0].Post.Author.Username)
	assert.Equal(t, "bob", page.Items[0].RetweetedBy.Username)
	assert.Nil(t, page.Items[1].RetweetedBy)
	assert.Equal(t, "cursor", page.NextCursor)
}

func TestFeedService_Live_IdentityOutageDegradesToIDs(t *testing.T) {
	t.Parallel()

	repo := noopFeedRepo()
	repo.liveFn = func(context.Context, string, string, int) (models.Page[models.FeedItem], error) {
		return feedPage(), nil
	}
	users := &identityStub{
		summariesFn: func(context.Context, []string) (map[string]models.UserSummary, error) {
			return nil, errors.New("mongo unavailable")
		},
	}

	page, err := NewFeedService(repo, users).Live(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, aliceID, page.Items[0].Post.Author.ID)
	assert.Equal(t, bobID, page.Items[0].RetweetedBy.ID)
}

func TestFeedService_Following(t *testing.T) {
	t.Parallel()

	repo := noopFeedRepo()
	repo.followingFn = func(_ context.Context, viewerID, _ string, _ int) (models.Page[models.FeedItem], error) {
		assert.Equal(t, carolID, viewerID)
		return models.Page[models.FeedItem]{Items: []models.FeedItem{}}, nil
	}
	svc := NewFeedService(repo, nil)

	_, err := svc.Following(context.Background(), "", "", 0)
	assertUnauthorizedError(t, err)

	page, err := svc.Following(context.Background(), carolID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	repo.followingFn = func(context.Context, string, string, int) (models.Page[models.FeedItem], error) {
		return models.Page[models.FeedItem]{}, errors.New("statement timeout")
	}
	_, err = svc.Following(context.Background(), carolID, "", 0)
	assertAppErrorCode(t, err, models.CodeInternal)
}
