package repository

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"chirp/internal/database"
	"chirp/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	return gormDB, mock
}

var sqliteSeq atomic.Int64

// setupSQLiteDB opens a private in-memory database with the relational schema.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", sqliteSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

const (
	ownerID = "64b000000000000000000001"
	aliceID = "64b000000000000000000002"
	bobID   = "64b000000000000000000003"
)

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedPost(t *testing.T, db *gorm.DB, id uint, userID string, at time.Time) *models.Post {
	t.Helper()
	post := &models.Post{
		ID:         id,
		UserID:     userID,
		Content:    fmt.Sprintf("post %d", id),
		Visibility: models.VisibilityPublic,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	require.NoError(t, db.Create(post).Error)
	return post
}
