package server

import (
	"chirp/internal/featureflags"
	"chirp/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetUserProfile handles GET /api/users/:userId/profile
// @Summary Public profile
// @Description Includes is_following and is_self relative to the caller
// @Tags users
// @Param userId path string true "User ID (ObjectID hex)"
// @Success 200 {object} models.Response{data=models.Profile}
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{userId}/profile [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	userID, err := s.parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	profile, err := s.userService.GetProfile(c.UserContext(), userID, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", profile)
}

// GetFollowers handles GET /api/users/:userId/followers
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	userID, err := s.parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	page := parsePagination(c)
	followers, err := s.userService.Followers(c.UserContext(), userID, page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", followers)
}

// GetFollowing handles GET /api/users/:userId/following
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	userID, err := s.parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	page := parsePagination(c)
	following, err := s.userService.Following(c.UserContext(), userID, page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", following)
}

// FollowUser handles POST /api/users/:userId/follow
// @Summary Follow a user
// @Tags users
// @Security BearerAuth
// @Param userId path string true "User ID to follow"
// @Success 200 {object} models.Response
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "ALREADY_FOLLOWING"
// @Router /users/{userId}/follow [post]
func (s *Server) FollowUser(c *fiber.Ctx) error {
	userID, err := s.parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.userService.Follow(c.UserContext(), currentUserID(c), userID); err != nil {
		return respondError(c, err)
	}
	return respond(c, "User followed successfully", fiber.Map{"user_id": userID, "following": true})
}

// UnfollowUser handles DELETE /api/users/:userId/follow
// @Summary Unfollow a user
// @Tags users
// @Security BearerAuth
// @Param userId path string true "User ID to unfollow"
// @Success 200 {object} models.Response
// @Failure 404 {object} models.ErrorResponse "NOT_FOLLOWING"
// @Router /users/{userId}/follow [delete]
func (s *Server) UnfollowUser(c *fiber.Ctx) error {
	userID, err := s.parseUserID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.userService.Unfollow(c.UserContext(), currentUserID(c), userID); err != nil {
		return respondError(c, err)
	}
	return respond(c, "User unfollowed successfully", fiber.Map{"user_id": userID, "following": false})
}

// GetSuggestions handles GET /api/users/suggestions?limit=10
func (s *Server) GetSuggestions(c *fiber.Ctx) error {
	users, err := s.userService.Suggestions(c.UserContext(), currentUserID(c), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", users)
}

// SearchUsers handles GET /api/users/search?q=...
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	page := parsePagination(c)
	if !s.featureFlags.Enabled(featureflags.SearchUsersRegex, currentUserID(c)) {
		return respond(c, "", models.Page[models.User]{Items: []models.User{}})
	}
	users, err := s.searchService.SearchUsers(c.UserContext(), c.Query("q"), page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", users)
}
