package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("bad"), fiber.StatusBadRequest},
		{"not found", NewNotFoundError("Post", 1), fiber.StatusNotFound},
		{"unauthorized", NewUnauthorizedError("no"), fiber.StatusUnauthorized},
		{"forbidden", NewForbiddenError("no"), fiber.StatusForbidden},
		{"already voted", ErrAlreadyVoted, fiber.StatusForbidden},
		{"conflict", NewConflictError(CodeAlreadyFollowing, "dup"), fiber.StatusConflict},
		{"not following", NewNotFollowingError(), fiber.StatusNotFound},
		{"wrapped", fmt.Errorf("outer: %w", NewNotFoundMessage("Poll not found")), fiber.StatusNotFound},
		{"fiber error", fiber.NewError(fiber.StatusTeapot, "tea"), fiber.StatusTeapot},
		{"plain error", errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestRespondWithError_HidesInternalDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return RespondWithAppError(c, NewInternalError(errors.New("pq: connection refused")))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var payload ErrorResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.False(t, payload.Success)
	assert.Equal(t, CodeInternal, payload.Code)
	assert.Equal(t, "Internal server error", payload.Message)
	assert.Empty(t, payload.Details)
	assert.NotContains(t, string(body), "connection refused")
}

func TestNewPollView_ReportsViewerVote(t *testing.T) {
	t.Parallel()

	poll := &Poll{ID: 3, PostID: 9, Question: "A or B?", Options: []PollOption{
		{ID: 1, Text: "A", VoteCount: 2},
		{ID: 2, Text: "B", VoteCount: 1},
	}}

	anon := NewPollView(poll, nil, poll.CreatedAt)
	assert.False(t, anon.HasVoted)
	assert.Nil(t, anon.UserVoteOptionID)
	assert.Equal(t, int64(3), anon.TotalVotes)

	voted := NewPollView(poll, &PollVote{PollID: 3, OptionID: 2}, poll.CreatedAt)
	assert.True(t, voted.HasVoted)
	require.NotNil(t, voted.UserVoteOptionID)
	assert.Equal(t, uint(2), *voted.UserVoteOptionID)
}
