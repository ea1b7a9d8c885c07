package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chirp/internal/cache"
	"chirp/internal/events"
	"chirp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostService(posts *postRepoStub, users *identityStub, store cache.Store) (*PostService, *notificationRepoStub, *recordingEmitter) {
	emitter := &recordingEmitter{}
	notifier, notes := newTestNotifier(users, emitter)
	svc := NewPostService(posts, noopFeedRepo(), users, store, notifier, emitter)
	return svc, notes, emitter
}

func TestPostService_CreatePost_Validation(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	tooManyOptions := make([]string, 11)
	for i := range tooManyOptions {
		tooManyOptions[i] = "opt"
	}

	tests := []struct {
		name string
		in   CreatePostInput
	}{
		{name: "no content or media", in: CreatePostInput{Content: "   "}},
		{name: "content too long", in: CreatePostInput{Content: strings.Repeat("x", MaxPostContentLen+1)}},
		{name: "too many media", in: CreatePostInput{Media: []string{"a", "b", "c", "d", "e"}}},
		{name: "location too long", in: CreatePostInput{Content: "hi", Location: strings.Repeat("l", MaxLocationLen+1)}},
		{name: "bad visibility", in: CreatePostInput{Content: "hi", Visibility: "friends"}},
		{name: "poll without question", in: CreatePostInput{Content: "hi", Poll: &CreatePollInput{Options: []string{"a", "b"}}}},
		{name: "poll question too long", in: CreatePostInput{Content: "hi", Poll: &CreatePollInput{Question: strings.Repeat("q", 281), Options: []string{"a", "b"}}}},
		{name: "poll with one real option", in: CreatePostInput{Content: "hi", Poll: &CreatePollInput{Question: "q?", Options: []string{"a", "  "}}}},
		{name: "poll with eleven options", in: CreatePostInput{Content: "hi", Poll: &CreatePollInput{Question: "q?", Options: tooManyOptions}}},
		{name: "poll option too long", in: CreatePostInput{Content: "hi", Poll: &CreatePollInput{Question: "q?", Options: []string{"a", strings.Repeat("o", 101)}}}},
		{name: "poll expiry in the past", in: CreatePostInput{Content: "hi", Poll: &CreatePollInput{Question: "q?", Options: []string{"a", "b"}, ExpiresAt: &past}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := noopPostRepo()
			repo.createFn = func(_ context.Context, _ *models.Post, _ *models.Poll) error {
				t.Fatal("create must not be called for invalid input")
				return nil
			}
			svc, _, _ := newTestPostService(repo, &identityStub{}, nil)
			tt.in.UserID = aliceID
			_, err := svc.CreatePost(context.Background(), tt.in)
			assertValidationError(t, err)
		})
	}
}

func TestPostService_CreatePost_ExtractsTagsAndBuildsPoll(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	var stored *models.Post
	var storedPoll *models.Poll
	repo.createFn = func(_ context.Context, p *models.Post, poll *models.Poll) error {
		p.ID = 42
		p.CreatedAt = time.Now()
		poll.ID = 7
		poll.PostID = p.ID
		p.Poll = poll
		stored, storedPoll = p, poll
		return nil
	}
	alice := testUser(aliceID, "alice")
	svc, _, emitter := newTestPostService(repo, directoryOf(alice), nil)

	expires := time.Now().Add(24 * time.Hour)
	view, err := svc.CreatePost(context.Background(), CreatePostInput{
		UserID:  aliceID,
		Content: "  Shipping #Go and #go with #Fiber today  ",
		Media:   []string{" /media/a.png ", ""},
		Poll: &CreatePollInput{
			Question:  "Which one?",
			Options:   []string{" gorm ", "", "sqlx"},
			ExpiresAt: &expires,
		},
	})
	require.NoError(t, err)

	require.NotNil(t, stored)
	assert.Equal(t, "Shipping #Go and #go with #Fiber today", stored.Content)
	assert.Equal(t, []string{"go", "fiber"}, stored.Hashtags)
	assert.Equal(t, []string{"/media/a.png"}, stored.MediaURLs)
	assert.Equal(t, models.VisibilityPublic, stored.Visibility)

	require.NotNil(t, storedPoll)
	require.Len(t, storedPoll.Options, 2)
	assert.Equal(t, "gorm", storedPoll.Options[0].Text)
	assert.Equal(t, "sqlx", storedPoll.Options[1].Text)
	require.NotNil(t, storedPoll.ExpiresAt)

	require.NotNil(t, view.Poll)
	assert.Equal(t, uint(7), view.Poll.ID)
	assert.False(t, view.Poll.HasVoted)
	require.NotNil(t, view.Author)
	assert.Equal(t, "alice", view.Author.Username)

	assert.Equal(t, []events.Type{events.NewFeed}, emitter.Types())
}

func TestPostService_CreatePost_PrivatePostIsNotBroadcast(t *testing.T) {
	t.Parallel()
	svc, _, emitter := newTestPostService(noopPostRepo(), &identityStub{}, nil)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		UserID:     aliceID,
		Content:    "note to self",
		Visibility: models.VisibilityPrivate,
	})
	require.NoError(t, err)
	assert.Empty(t, emitter.Types())
}

func TestPostService_CreatePost_NotifiesMentionedUsersExceptAuthor(t *testing.T) {
	t.Parallel()

	alice := testUser(aliceID, "alice")
	bob := testUser(bobID, "bob")
	users := directoryOf(alice, bob)
	var asked []string
	users.getByUsernamesFn = func(_ context.Context, names []string) ([]models.User, error) {
		asked = names
		return []models.User{*alice, *bob}, nil
	}
	svc, notes, emitter := newTestPostService(noopPostRepo(), users, nil)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		UserID:  aliceID,
		Content: "hey @bob and @bob, also @alice",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"bob", "alice"}, asked)
	created := notes.Created()
	require.Len(t, created, 1)
	assert.Equal(t, bobID, created[0].RecipientID)
	assert.Equal(t, models.NotificationMention, created[0].Type)
	assert.Equal(t, "alice mentioned you in a post", created[0].Message)
	assert.Contains(t, emitter.Types(), events.Notification)
}

func TestPostService_GetPost_HidesPrivatePostsFromOthers(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		return &models.Post{ID: id, UserID: aliceID, Visibility: models.VisibilityPrivate}, nil
	}
	svc, _, _ := newTestPostService(repo, &identityStub{}, nil)

	_, err := svc.GetPost(context.Background(), 5, bobID)
	assertAppErrorCode(t, err, models.CodeNotFound)

	view, err := svc.GetPost(context.Background(), 5, aliceID)
	require.NoError(t, err)
	assert.Equal(t, uint(5), view.ID)
	require.NotNil(t, view.Author)
	assert.Equal(t, aliceID, view.Author.ID)
}

func TestPostService_DeletePost(t *testing.T) {
	t.Parallel()

	t.Run("non-owner is forbidden", func(t *testing.T) {
		t.Parallel()
		repo := noopPostRepo()
		repo.softDeleteFn = func(context.Context, uint, time.Time) error {
			t.Fatal("soft delete must not run for a non-owner")
			return nil
		}
		svc, _, emitter := newTestPostService(repo, &identityStub{}, nil)
		err := svc.DeletePost(context.Background(), 3, bobID)
		assertAppErrorCode(t, err, models.CodeForbidden)
		assert.Empty(t, emitter.Types())
	})

	t.Run("owner soft deletes and emits", func(t *testing.T) {
		t.Parallel()
		repo := noopPostRepo()
		var deleted uint
		repo.softDeleteFn = func(_ context.Context, id uint, at time.Time) error {
			deleted = id
			assert.False(t, at.IsZero())
			return nil
		}
		svc, _, emitter := newTestPostService(repo, &identityStub{}, nil)
		require.NoError(t, svc.DeletePost(context.Background(), 3, aliceID))
		assert.Equal(t, uint(3), deleted)
		assert.Equal(t, []events.Type{events.PostDeleted}, emitter.Types())
	})

	t.Run("missing post", func(t *testing.T) {
		t.Parallel()
		repo := noopPostRepo()
		repo.getByIDFn = func(context.Context, uint) (*models.Post, error) {
			return nil, models.NewNotFoundMessage("Post not found")
		}
		svc, _, _ := newTestPostService(repo, &identityStub{}, nil)
		assertAppErrorCode(t, svc.DeletePost(context.Background(), 3, aliceID), models.CodeNotFound)
	})
}

func TestPostService_Analytics(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	var since time.Time
	repo.analyticsFn = func(_ context.Context, id uint, s time.Time) (*models.PostAnalytics, error) {
		since = s
		return &models.PostAnalytics{PostID: id, Likes: 2, Retweets: 1, Comments: 0, TotalEngagement: 3}, nil
	}
	alice := testUser(aliceID, "alice")
	alice.FollowersCount = 7
	svc, _, _ := newTestPostService(repo, directoryOf(alice), nil)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	out, err := svc.Analytics(context.Background(), 9, aliceID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), since)
	assert.Equal(t, 42.86, out.EngagementRatePercent)

	_, err = svc.Analytics(context.Background(), 9, bobID)
	assertAppErrorCode(t, err, models.CodeForbidden)
}

func TestEngagementRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		engagement, followers int64
		want                  float64
	}{
		{0, 0, 0},
		{3, 0, 300},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{5, 1000, 0.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EngagementRate(tt.engagement, tt.followers), "engagement=%d followers=%d", tt.engagement, tt.followers)
	}
}

// memoryCache is a cache.Store over a map.
type memoryCache struct {
	data map[string][]byte
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}
func (m *memoryCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}
func (m *memoryCache) Name() string { return "memory" }

func TestPostService_TrendingHashtags_ClampsAndCaches(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	calls := 0
	var gotLimit int
	var gotSince time.Time
	repo.trendingFn = func(_ context.Context, since time.Time, limit int) ([]models.HashtagCount, error) {
		calls++
		gotSince, gotLimit = since, limit
		return []models.HashtagCount{{Tag: "go", Count: 4}}, nil
	}
	store := &memoryCache{data: map[string][]byte{}}
	svc, _, _ := newTestPostService(repo, &identityStub{}, store)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	first, err := svc.TrendingHashtags(context.Background(), 1000, 500)
	require.NoError(t, err)
	second, err := svc.TrendingHashtags(context.Background(), 1000, 500)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, MaxTrendingLimit, gotLimit)
	assert.Equal(t, now.Add(-MaxTrendingHours*time.Hour), gotSince)
	assert.Equal(t, first, second)
	_, cached := store.data[cache.TrendingKey(MaxTrendingHours, MaxTrendingLimit)]
	assert.True(t, cached)
}

func TestPostService_TrendingHashtags_WrapsRepositoryErrors(t *testing.T) {
	t.Parallel()

	repo := noopPostRepo()
	repo.trendingFn = func(context.Context, time.Time, int) ([]models.HashtagCount, error) {
		return nil, errors.New("connection reset")
	}
	svc, _, _ := newTestPostService(repo, &identityStub{}, nil)
	_, err := svc.TrendingHashtags(context.Background(), 24, 10)
	assertAppErrorCode(t, err, models.CodeInternal)
}

func TestExtractTokens(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"go", "rust_lang"}, ExtractHashtags("#Go vs #rust_lang vs #GO"))
	assert.Equal(t, []string{}, ExtractHashtags("no tags here"))
	assert.Equal(t, []string{"Alice", "bob"}, ExtractMentions("cc @Alice @bob @Alice"))
}
