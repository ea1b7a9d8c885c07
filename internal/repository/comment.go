package repository

import (
	"context"
	"errors"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Add(ctx context.Context, comment *models.Comment) (*CommentResult, error)
	ListByPost(ctx context.Context, postID uint, viewerID, cursor string, limit int) (models.Page[*models.Comment], error)
}

// CommentResult reports the parent post state after a comment was appended.
type CommentResult struct {
	CommentCount int64
	OwnerID      string
}

type commentRepository struct {
	db      *gorm.DB
	log     *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{
		db:      db,
		log:     observability.NewRepoLogger("comments"),
		metrics: observability.NewDatabaseMetrics("comments"),
	}
}

// Add appends comment under a visible parent and recounts comment_count in
// the same transaction.
func (r *commentRepository) Add(ctx context.Context, comment *models.Comment) (*CommentResult, error) {
	defer r.metrics.TrackQuery("create")()

	out := &CommentResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockVisiblePost(ctx, tx, comment.PostID)
		if err != nil {
			return err
		}
		if post.Visibility == models.VisibilityPrivate && post.UserID != comment.UserID {
			return errPostNotFound
		}
		out.OwnerID = post.UserID

		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		count, err := recount(tx, comment.PostID, "comments", "comment_count")
		if err != nil {
			return err
		}
		out.CommentCount = count
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.log.LogCreate(ctx, map[string]interface{}{"comment_id": comment.ID, "post_id": comment.PostID})
	return out, nil
}

// ListByPost pages through a visible post's comments, newest first.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint, viewerID, cursor string, limit int) (models.Page[*models.Comment], error) {
	defer r.metrics.TrackQuery("list")()

	db := readDB(r.db).WithContext(ctx)
	var post models.Post
	err := db.Select("id", "user_id", "visibility", "is_deleted").
		Where("id = ? AND is_deleted = ?", postID, false).
		Take(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Page[*models.Comment]{}, errPostNotFound
		}
		return models.Page[*models.Comment]{}, err
	}
	if !post.Visible(viewerID) {
		return models.Page[*models.Comment]{}, errPostNotFound
	}

	limit = ClampLimit(limit, DefaultPageSize, MaxPageSize)
	var comments []*models.Comment
	q := afterCursor(db.Where("post_id = ?", postID), cursor, "created_at", "id")
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&comments).Error; err != nil {
		return models.Page[*models.Comment]{}, err
	}
	return buildPage(comments, limit, func(c *models.Comment) (time.Time, uint) { return c.CreatedAt, c.ID }), nil
}
