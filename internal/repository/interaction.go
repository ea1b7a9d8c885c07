package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InteractionRepository owns the like and retweet join tables and the
// counters they back.
type InteractionRepository interface {
	ToggleLike(ctx context.Context, postID uint, userID string) (*models.ToggleResult, error)
	ToggleRetweet(ctx context.Context, postID uint, userID, comment string) (*models.ToggleResult, error)
	Reconcile(ctx context.Context) (int64, error)
}

type interactionRepository struct {
	db      *gorm.DB
	log     *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{
		db:      db,
		log:     observability.NewRepoLogger("interactions"),
		metrics: observability.NewDatabaseMetrics("interactions"),
	}
}

// ToggleLike flips the (user, post) like and recounts like_count.
func (r *interactionRepository) ToggleLike(ctx context.Context, postID uint, userID string) (*models.ToggleResult, error) {
	defer r.metrics.TrackQuery("toggle_like")()
	return r.toggle(ctx, postID, userID, "likes", "like_count", func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Like{UserID: userID, PostID: postID})
	})
}

// ToggleRetweet flips the (user, post) retweet and recounts retweet_count.
// comment is only stored when the retweet is created.
func (r *interactionRepository) ToggleRetweet(ctx context.Context, postID uint, userID, comment string) (*models.ToggleResult, error) {
	defer r.metrics.TrackQuery("toggle_retweet")()
	return r.toggle(ctx, postID, userID, "retweets", "retweet_count", func(tx *gorm.DB) *gorm.DB {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Retweet{UserID: userID, PostID: postID, Comment: comment})
	})
}

// toggle runs delete-else-insert followed by an authoritative recount, all in
// one transaction with the post row locked. A concurrent toggle from the same
// user serializes on the lock; the unique index absorbs anything that slips by.
func (r *interactionRepository) toggle(
	ctx context.Context,
	postID uint,
	userID, table, counter string,
	insert func(tx *gorm.DB) *gorm.DB,
) (*models.ToggleResult, error) {
	result := &models.ToggleResult{PostID: postID}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockVisiblePost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if post.Visibility == models.VisibilityPrivate && post.UserID != userID {
			return errPostNotFound
		}
		result.OwnerID = post.UserID

		del := tx.Exec("DELETE FROM "+table+" WHERE user_id = ? AND post_id = ?", userID, postID)
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected == 0 {
			if err := insert(tx).Error; err != nil {
				return err
			}
			result.Active = true
		}

		count, err := recount(tx, postID, table, counter)
		if err != nil {
			return err
		}
		result.Count = count
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) {
			r.log.LogError(ctx, err, "toggle_"+strings.TrimSuffix(table, "s"))
		}
		return nil, err
	}
	return result, nil
}

// recount rewrites counter on postID from COUNT(*) over table and returns it.
func recount(tx *gorm.DB, postID uint, table, counter string) (int64, error) {
	err := tx.Exec(
		"UPDATE posts SET "+counter+" = (SELECT COUNT(*) FROM "+table+" WHERE post_id = ?), updated_at = ? WHERE id = ?",
		postID, time.Now().UTC(), postID,
	).Error
	if err != nil {
		return 0, fmt.Errorf("recount %s: %w", counter, err)
	}
	var count int64
	if err := tx.Raw("SELECT "+counter+" FROM posts WHERE id = ?", postID).Scan(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Reconcile rewrites every counter that disagrees with its join table, post
// counters and poll option tallies alike, and reports how many rows were
// repaired.
func (r *interactionRepository) Reconcile(ctx context.Context) (int64, error) {
	defer r.metrics.TrackQuery("reconcile")()

	var repaired int64
	for _, stmt := range reconcileStatements {
		res := r.db.WithContext(ctx).Exec(stmt)
		if res.Error != nil {
			r.log.LogError(ctx, res.Error, "reconcile")
			return repaired, res.Error
		}
		repaired += res.RowsAffected
	}
	if repaired > 0 {
		r.log.LogUpdate(ctx, map[string]interface{}{"repaired": repaired})
	}
	return repaired, nil
}

var reconcileStatements = []string{`
		UPDATE posts SET
			like_count = (SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id),
			retweet_count = (SELECT COUNT(*) FROM retweets WHERE retweets.post_id = posts.id),
			comment_count = (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)
		WHERE like_count <> (SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id)
			OR retweet_count <> (SELECT COUNT(*) FROM retweets WHERE retweets.post_id = posts.id)
			OR comment_count <> (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)`, `
		UPDATE poll_options SET
			vote_count = (SELECT COUNT(*) FROM poll_votes WHERE poll_votes.option_id = poll_options.id)
		WHERE vote_count <> (SELECT COUNT(*) FROM poll_votes WHERE poll_votes.option_id = poll_options.id)`,
}
