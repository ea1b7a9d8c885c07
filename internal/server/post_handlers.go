package server

import (
	"strings"

	"chirp/internal/featureflags"
	"chirp/internal/models"
	"chirp/internal/service"

	"github.com/gofiber/fiber/v2"
)

// LiveFeed handles GET /api/posts/live-feeds
// @Summary Live timeline
// @Description Every public post and retweet, newest first. Anonymous access is gated by the live_feed_public flag.
// @Tags posts
// @Produce json
// @Param cursor query string false "Opaque cursor from the previous page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} models.Response{data=models.Page[models.FeedItem]}
// @Router /posts/live-feeds [get]
func (s *Server) LiveFeed(c *fiber.Ctx) error {
	viewerID := currentUserID(c)
	if viewerID == "" && !s.featureFlags.Enabled(featureflags.LiveFeedPublic, "") {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
	}
	page := parsePagination(c)

	feed, err := s.feedService.Live(c.UserContext(), viewerID, page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", feed)
}

// FollowingFeed handles GET /api/posts/feed
// @Summary Home timeline
// @Description Posts and retweets by the caller and the users they follow
// @Tags posts
// @Security BearerAuth
// @Param cursor query string false "Opaque cursor from the previous page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} models.Response{data=models.Page[models.FeedItem]}
// @Router /posts/feed [get]
func (s *Server) FollowingFeed(c *fiber.Ctx) error {
	page := parsePagination(c)
	feed, err := s.feedService.Following(c.UserContext(), currentUserID(c), page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", feed)
}

// SearchPosts handles GET /api/posts/search?q=...&hashtag=...&author=...
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	page := parsePagination(c)
	result, err := s.searchService.SearchPosts(c.UserContext(), service.SearchPostsInput{
		Query:    c.Query("q"),
		Hashtag:  c.Query("hashtag"),
		Author:   c.Query("author"),
		ViewerID: currentUserID(c),
		Cursor:   page.Cursor,
		Limit:    page.Limit,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", result)
}

// TrendingHashtags handles GET /api/posts/trending/hashtags?hours=24&limit=10
func (s *Server) TrendingHashtags(c *fiber.Ctx) error {
	tags, err := s.postService.TrendingHashtags(c.UserContext(), c.QueryInt("hours", 24), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", tags)
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags posts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body object{content=string,media=[]string,location=string,visibility=string,poll=service.CreatePollInput} true "New post"
// @Success 201 {object} models.Response{data=models.PostView}
// @Failure 400 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Content    string                   `json:"content"`
		Media      []string                 `json:"media"`
		Location   string                   `json:"location"`
		Visibility string                   `json:"visibility"`
		Poll       *service.CreatePollInput `json:"poll"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:     currentUserID(c),
		Content:    req.Content,
		Media:      req.Media,
		Location:   req.Location,
		Visibility: models.Visibility(strings.ToLower(strings.TrimSpace(req.Visibility))),
		Poll:       req.Poll,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondCreated(c, "Post created successfully", post)
}

// GetPost handles GET /api/posts/:postId
// @Summary Get a post
// @Tags posts
// @Param postId path int true "Post ID"
// @Success 200 {object} models.Response{data=models.PostView}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	post, err := s.postService.GetPost(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", post)
}

// DeletePost handles DELETE /api/posts/:postId
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	if err := s.postService.DeletePost(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return respond(c, "Post deleted successfully", fiber.Map{"post_id": id})
}

// ToggleLike handles POST /api/posts/:postId/like
// @Summary Like or unlike a post
// @Description Flips the caller's like and returns the recounted total
// @Tags posts
// @Security BearerAuth
// @Param postId path int true "Post ID"
// @Success 200 {object} models.Response{data=models.ToggleResult}
// @Router /posts/{postId}/like [post]
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	result, err := s.interactionService.ToggleLike(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	msg := "Post unliked"
	if result.Active {
		msg = "Post liked"
	}
	return respond(c, msg, result)
}

// ToggleRetweet handles POST /api/posts/:postId/retweet with an optional
// {"comment": "..."} quote.
func (s *Server) ToggleRetweet(c *fiber.Ctx) error {
	id, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return nil
		}
	}
	result, err := s.interactionService.ToggleRetweet(c.UserContext(), id, currentUserID(c), req.Comment)
	if err != nil {
		return respondError(c, err)
	}
	msg := "Retweet removed"
	if result.Active {
		msg = "Post retweeted"
	}
	return respond(c, msg, result)
}

// PostAnalytics handles GET /api/posts/:postId/analytics
func (s *Server) PostAnalytics(c *fiber.Ctx) error {
	id, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	stats, err := s.postService.Analytics(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", stats)
}

// GetUserPosts handles GET /api/users/:userId/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	userID, err := s.parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	page := parsePagination(c)
	posts, err := s.postService.ListUserPosts(c.UserContext(), userID, currentUserID(c), page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", posts)
}
