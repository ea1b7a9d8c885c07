// Package service holds the application use cases. Services validate input,
// call repositories and the identity store, and fire best-effort side effects
// (notifications and real-time events) after the primary write commits.
package service

import (
	"context"
	"errors"

	"chirp/internal/events"
	"chirp/internal/models"
	"chirp/internal/observability"
)

// Emitter accepts real-time events. *events.Dispatcher implements it.
type Emitter interface {
	Emit(e events.Event)
}

// UserDirectory resolves compact author blocks. identity.Store implements it.
type UserDirectory interface {
	Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

func emit(e Emitter, ev events.Event) {
	if e != nil {
		e.Emit(ev)
	}
}

// appError passes domain errors through and wraps everything else as an
// internal error.
func appError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewInternalError(err)
}

// summaryFor returns the directory entry for id, or a bare id block when the
// user is unknown.
func summaryFor(m map[string]models.UserSummary, id string) *models.UserSummary {
	if s, ok := m[id]; ok {
		return &s
	}
	return &models.UserSummary{ID: id}
}

// lookupSummaries resolves ids and degrades to bare ids when the directory
// fails, so a cold identity store never breaks a page.
func lookupSummaries(ctx context.Context, dir UserDirectory, ids []string) map[string]models.UserSummary {
	if dir == nil || len(ids) == 0 {
		return map[string]models.UserSummary{}
	}
	m, err := dir.Summaries(ctx, ids)
	if err != nil {
		logAsync(ctx, "user_summaries", err, map[string]interface{}{"count": len(ids)})
		return map[string]models.UserSummary{}
	}
	return m
}

func attachAuthors(ctx context.Context, dir UserDirectory, views []*models.PostView) {
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.UserID)
	}
	authors := lookupSummaries(ctx, dir, ids)
	for _, v := range views {
		v.Author = summaryFor(authors, v.UserID)
	}
}

// logAsync records a failed best-effort side effect.
func logAsync(ctx context.Context, operation string, err error, fields map[string]interface{}) {
	observability.LogAsyncOperationError(ctx, operation, err, fields)
}
