package server

import (
	"chirp/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Search handles GET /api/search?q=...
// @Summary Combined search
// @Description One page of matching users and one page of matching public posts. Each side pages independently.
// @Tags search
// @Param q query string true "Search text"
// @Param user_cursor query string false "Cursor for the users page"
// @Param post_cursor query string false "Cursor for the posts page"
// @Param limit query int false "Page size for both sides (max 100)"
// @Success 200 {object} models.Response{data=service.SearchResult}
// @Failure 400 {object} models.ErrorResponse
// @Router /search [get]
func (s *Server) Search(c *fiber.Ctx) error {
	result, err := s.searchService.Search(c.UserContext(), service.SearchInput{
		Query:      c.Query("q"),
		ViewerID:   currentUserID(c),
		UserCursor: c.Query("user_cursor"),
		PostCursor: c.Query("post_cursor"),
		Limit:      c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", result)
}
