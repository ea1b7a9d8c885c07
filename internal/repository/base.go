// Package repository implements the relational data access layer.
package repository

import (
	"context"
	"errors"

	"chirp/internal/database"
	"chirp/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// errPostNotFound is returned for missing, soft-deleted and hidden posts alike.
var errPostNotFound = models.NewNotFoundMessage("Post not found")

// lockVisiblePost loads the post row FOR UPDATE inside tx. Dialects without
// row locks (sqlite in tests) drop the locking clause.
func lockVisiblePost(ctx context.Context, tx *gorm.DB, postID uint) (*models.Post, error) {
	var post models.Post
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "user_id", "visibility", "is_deleted").
		Where("id = ? AND is_deleted = ?", postID, false).
		Take(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errPostNotFound
		}
		return nil, err
	}
	return &post, nil
}
