package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetPostPoll handles GET /api/posts/:postId/polls
func (s *Server) GetPostPoll(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}
	poll, err := s.pollService.GetPollByPost(c.UserContext(), postID, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", poll)
}

// VotePoll handles POST /api/polls/vote
// @Summary Vote in a poll
// @Description One vote per user and poll. A second vote answers 403 ALREADY_VOTED.
// @Tags polls
// @Security BearerAuth
// @Accept json
// @Param request body object{poll_id=int,option_id=int} true "Vote"
// @Success 200 {object} models.Response{data=models.PollView}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /polls/vote [post]
func (s *Server) VotePoll(c *fiber.Ctx) error {
	var req struct {
		PollID   uint `json:"poll_id"`
		OptionID uint `json:"option_id"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	poll, err := s.pollService.Vote(c.UserContext(), req.PollID, req.OptionID, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "Vote recorded successfully", poll)
}
