package server

import (
	"chirp/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetComments handles GET /api/posts/:postId/comments
// @Summary List comments on a post
// @Tags comments
// @Param postId path int true "Post ID"
// @Param cursor query string false "Opaque cursor from the previous page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} models.Response{data=models.Page[models.Comment]}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	page := parsePagination(c)
	comments, err := s.commentService.ListComments(c.UserContext(), postID, currentUserID(c), page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", comments)
}

// CreateComment handles POST /api/posts/:postId/comments
// @Summary Comment on a post
// @Tags comments
// @Security BearerAuth
// @Accept json
// @Param postId path int true "Post ID"
// @Param request body object{content=string} true "Comment"
// @Success 201 {object} models.Response{data=models.Comment}
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/{postId}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	comment, err := s.commentService.AddComment(c.UserContext(), service.AddCommentInput{
		PostID:  postID,
		UserID:  currentUserID(c),
		Content: req.Content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondCreated(c, "Comment added successfully", comment)
}
