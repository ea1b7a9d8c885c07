package server

import (
	"fmt"
	"net/http"
	"testing"

	"chirp/internal/config"
	"chirp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPost(t *testing.T, env *testEnv, token string, body map[string]interface{}) models.PostView {
	t.Helper()
	status, resp := env.do(t, http.MethodPost, "/api/posts", token, body)
	require.Equal(t, http.StatusCreated, status, resp.Error)
	return decodeData[models.PostView](t, resp)
}

func TestCreatePost(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, aliceID, "alice")

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{"text post", map[string]interface{}{"content": "hello #golang @bob"}, http.StatusCreated},
		{"media only", map[string]interface{}{"media": []string{"https://cdn.test/a.png"}}, http.StatusCreated},
		{"empty", map[string]interface{}{"content": "   "}, http.StatusBadRequest},
		{"too long", map[string]interface{}{"content": fmt.Sprintf("%02001d", 0)}, http.StatusBadRequest},
		{"bad visibility", map[string]interface{}{"content": "hi", "visibility": "friends"}, http.StatusBadRequest},
		{"too many media", map[string]interface{}{"media": []string{"a", "b", "c", "d", "e"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPost, "/api/posts", token, tt.body)
			assert.Equal(t, tt.wantStatus, status, body.Error)
		})
	}

	t.Run("requires auth", func(t *testing.T) {
		status, _ := env.do(t, http.MethodPost, "/api/posts", "", map[string]interface{}{"content": "hi"})
		assert.Equal(t, http.StatusUnauthorized, status)
	})
}

func TestCreatePost_ExtractsTagsAndNotifiesMentions(t *testing.T) {
	env := newTestEnv(t)
	post := createPost(t, env, env.token(t, aliceID, "alice"), map[string]interface{}{
		"content": "Shipping #Golang today, thanks @bob",
	})

	assert.Equal(t, []string{"golang"}, post.Hashtags)
	assert.Equal(t, []string{"bob"}, post.Mentions)
	require.NotNil(t, post.Author)
	assert.Equal(t, "alice", post.Author.Username)

	var notes []models.Notification
	require.NoError(t, env.db.Where("recipient_id = ?", bobID).Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationMention, notes[0].Type)
}

func TestGetPost_PrivateVisibility(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.token(t, aliceID, "alice")
	post := createPost(t, env, aliceToken, map[string]interface{}{"content": "secret", "visibility": "PRIVATE"})
	path := fmt.Sprintf("/api/posts/%d", post.ID)

	status, _ := env.do(t, http.MethodGet, path, aliceToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, path, env.token(t, bobID, "bob"), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.CodeNotFound, body.Code)

	status, _ = env.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetPost_InvalidID(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, http.MethodGet, "/api/posts/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid post ID", body.Error)

	status, _ = env.do(t, http.MethodGet, "/api/posts/999", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestToggleLike(t *testing.T) {
	env := newTestEnv(t)
	post := createPost(t, env, env.token(t, aliceID, "alice"), map[string]interface{}{"content": "like me"})
	path := fmt.Sprintf("/api/posts/%d/like", post.ID)
	bobToken := env.token(t, bobID, "bob")

	status, body := env.do(t, http.MethodPost, path, bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Post liked", body.Message)
	result := decodeData[models.ToggleResult](t, body)
	assert.True(t, result.Active)
	assert.Equal(t, int64(1), result.Count)

	status, body = env.do(t, http.MethodPost, path, bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Post unliked", body.Message)
	result = decodeData[models.ToggleResult](t, body)
	assert.False(t, result.Active)
	assert.Equal(t, int64(0), result.Count)

	var notes int64
	require.NoError(t, env.db.Model(&models.Notification{}).Where("recipient_id = ?", aliceID).Count(&notes).Error)
	assert.Equal(t, int64(1), notes)

	status, _ = env.do(t, http.MethodPost, "/api/posts/999/like", bobToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestToggleRetweet_WithQuote(t *testing.T) {
	env := newTestEnv(t)
	post := createPost(t, env, env.token(t, aliceID, "alice"), map[string]interface{}{"content": "retweet me"})
	bobToken := env.token(t, bobID, "bob")

	status, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/posts/%d/retweet", post.ID), bobToken,
		map[string]string{"comment": "so true"})
	require.Equal(t, http.StatusOK, status, body.Error)
	assert.Equal(t, "Post retweeted", body.Message)

	status, body = env.do(t, http.MethodGet, "/api/posts/live-feeds", bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	page := decodeData[models.Page[models.FeedItem]](t, body)
	require.Len(t, page.Items, 2)
	assert.Equal(t, models.FeedItemRetweet, page.Items[0].Type)
	assert.Equal(t, "so true", page.Items[0].RetweetComment)
	require.NotNil(t, page.Items[0].RetweetedBy)
	assert.Equal(t, "bob", page.Items[0].RetweetedBy.Username)
	assert.True(t, page.Items[0].Post.IsRetweeted)
}

func TestDeletePost_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.token(t, aliceID, "alice")
	post := createPost(t, env, aliceToken, map[string]interface{}{"content": "short lived"})
	path := fmt.Sprintf("/api/posts/%d", post.ID)

	status, body := env.do(t, http.MethodDelete, path, env.token(t, bobID, "bob"), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, models.CodeForbidden, body.Code)

	status, _ = env.do(t, http.MethodDelete, path, aliceToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, path, aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLiveFeed(t *testing.T) {
	t.Run("anonymous is rejected by default", func(t *testing.T) {
		env := newTestEnv(t)
		status, _ := env.do(t, http.MethodGet, "/api/posts/live-feeds", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("anonymous allowed by flag", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.FeatureFlags = "live_feed_public=on" })
		status, _ := env.do(t, http.MethodGet, "/api/posts/live-feeds", "", nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("cursor pages without overlap", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.token(t, aliceID, "alice")
		for i := 0; i < 5; i++ {
			createPost(t, env, token, map[string]interface{}{"content": fmt.Sprintf("post %d", i)})
		}

		seen := map[uint]bool{}
		cursor := ""
		for pages := 0; pages < 5; pages++ {
			status, body := env.do(t, http.MethodGet, "/api/posts/live-feeds?limit=2&cursor="+cursor, token, nil)
			require.Equal(t, http.StatusOK, status)
			page := decodeData[models.Page[models.FeedItem]](t, body)
			for _, item := range page.Items {
				assert.False(t, seen[item.Post.ID], "post %d returned twice", item.Post.ID)
				seen[item.Post.ID] = true
			}
			if !page.HasMore {
				break
			}
			cursor = page.NextCursor
		}
		assert.Len(t, seen, 5)
	})
}

func TestFollowingFeed_OnlyFollowedAuthors(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.token(t, aliceID, "alice")
	createPost(t, env, env.token(t, bobID, "bob"), map[string]interface{}{"content": "from bob"})
	createPost(t, env, env.token(t, carolID, "carol"), map[string]interface{}{"content": "from carol"})
	createPost(t, env, aliceToken, map[string]interface{}{"content": "from alice"})

	status, _ := env.do(t, http.MethodPost, "/api/users/"+bobID+"/follow", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodGet, "/api/posts/feed", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	page := decodeData[models.Page[models.FeedItem]](t, body)

	var authors []string
	for _, item := range page.Items {
		authors = append(authors, item.Post.UserID)
	}
	assert.ElementsMatch(t, []string{aliceID, bobID}, authors)
}

func TestComments(t *testing.T) {
	env := newTestEnv(t)
	post := createPost(t, env, env.token(t, aliceID, "alice"), map[string]interface{}{"content": "discuss"})
	path := fmt.Sprintf("/api/posts/%d/comments", post.ID)
	bobToken := env.token(t, bobID, "bob")

	status, body := env.do(t, http.MethodPost, path, bobToken, map[string]string{"content": "first!"})
	require.Equal(t, http.StatusCreated, status, body.Error)
	comment := decodeData[models.Comment](t, body)
	assert.Equal(t, "first!", comment.Content)

	status, _ = env.do(t, http.MethodPost, path, bobToken, map[string]string{"content": ""})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, status)
	page := decodeData[models.Page[models.Comment]](t, body)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].Author)
	assert.Equal(t, "bob", page.Items[0].Author.Username)

	status, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d", post.ID), "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), decodeData[models.PostView](t, body).CommentCount)
}

func TestPollVote(t *testing.T) {
	env := newTestEnv(t)
	post := createPost(t, env, env.token(t, aliceID, "alice"), map[string]interface{}{
		"content": "tabs or spaces?",
		"poll":    map[string]interface{}{"question": "Which?", "options": []string{"tabs", "spaces"}},
	})
	require.NotNil(t, post.Poll)
	require.Len(t, post.Poll.Options, 2)
	bobToken := env.token(t, bobID, "bob")
	vote := map[string]uint{"poll_id": post.Poll.ID, "option_id": post.Poll.Options[1].ID}

	status, body := env.do(t, http.MethodPost, "/api/polls/vote", bobToken, vote)
	require.Equal(t, http.StatusOK, status, body.Error)
	view := decodeData[models.PollView](t, body)
	assert.Equal(t, int64(1), view.TotalVotes)
	assert.True(t, view.HasVoted)

	status, body = env.do(t, http.MethodPost, "/api/polls/vote", bobToken, vote)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, models.CodeAlreadyVoted, body.Code)

	status, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d/polls", post.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, status)
	view = decodeData[models.PollView](t, body)
	require.NotNil(t, view.UserVoteOptionID)
	assert.Equal(t, post.Poll.Options[1].ID, *view.UserVoteOptionID)
}

func TestPostAnalytics_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.token(t, aliceID, "alice")
	post := createPost(t, env, aliceToken, map[string]interface{}{"content": "measure me"})
	bobToken := env.token(t, bobID, "bob")

	status, _ := env.do(t, http.MethodPost, fmt.Sprintf("/api/posts/%d/like", post.ID), bobToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d/analytics", post.ID), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := env.do(t, http.MethodGet, fmt.Sprintf("/api/posts/%d/analytics", post.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	stats := decodeData[models.PostAnalytics](t, body)
	assert.Equal(t, int64(1), stats.Likes)
	assert.Equal(t, int64(1), stats.TotalEngagement)
}

func TestGetUserPosts(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.token(t, aliceID, "alice")
	createPost(t, env, aliceToken, map[string]interface{}{"content": "public one"})
	createPost(t, env, aliceToken, map[string]interface{}{"content": "private one", "visibility": "private"})

	status, body := env.do(t, http.MethodGet, "/api/users/"+aliceID+"/posts", env.token(t, bobID, "bob"), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[models.Page[models.PostView]](t, body).Items, 1)

	status, body = env.do(t, http.MethodGet, "/api/users/"+aliceID+"/posts", aliceToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[models.Page[models.PostView]](t, body).Items, 2)
}
