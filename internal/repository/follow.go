package repository

import (
	"context"
	"time"

	"chirp/internal/models"
	"chirp/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository mirrors identity-store follow edges for feed joins and
// follower listings.
type FollowRepository interface {
	Create(ctx context.Context, followerID, followeeID string) (bool, error)
	Delete(ctx context.Context, followerID, followeeID string) (bool, error)
	Followers(ctx context.Context, userID, cursor string, limit int) (models.Page[models.Follow], error)
	Following(ctx context.Context, userID, cursor string, limit int) (models.Page[models.Follow], error)
}

type followRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db, log: observability.NewRepoLogger("user_follows")}
}

// Create inserts the edge and reports whether it was new.
func (r *followRepository) Create(ctx context.Context, followerID, followeeID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Follow{FollowerID: followerID, FolloweeID: followeeID})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "create")
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the edge and reports whether one existed.
func (r *followRepository) Delete(ctx context.Context, followerID, followeeID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follow{})
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "delete")
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) Followers(ctx context.Context, userID, cursor string, limit int) (models.Page[models.Follow], error) {
	return r.list(ctx, "followee_id", userID, cursor, limit)
}

func (r *followRepository) Following(ctx context.Context, userID, cursor string, limit int) (models.Page[models.Follow], error) {
	return r.list(ctx, "follower_id", userID, cursor, limit)
}

func (r *followRepository) list(ctx context.Context, col, userID, cursor string, limit int) (models.Page[models.Follow], error) {
	limit = ClampLimit(limit, DefaultPageSize, MaxPageSize)
	q := afterCursor(readDB(r.db).WithContext(ctx).Where(col+" = ?", userID), cursor, "created_at", "id")

	var rows []models.Follow
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return models.Page[models.Follow]{}, err
	}
	return buildPage(rows, limit, func(f models.Follow) (time.Time, uint) { return f.CreatedAt, f.ID }), nil
}
