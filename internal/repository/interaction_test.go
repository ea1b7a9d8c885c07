package repository

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"chirp/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractionRepository_ToggleLikeSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInteractionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "posts" WHERE id = \$1 AND is_deleted = \$2 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "visibility", "is_deleted"}).
			AddRow(10, ownerID, "public", false))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM likes WHERE user_id = $1 AND post_id = $2`)).
		WithArgs(aliceID, 10).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "likes"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT DO NOTHING`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE posts SET like_count = (SELECT COUNT(*) FROM likes WHERE post_id = $1), updated_at = $2 WHERE id = $3`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT like_count FROM posts WHERE id = $1`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"like_count"}).AddRow(1))
	mock.ExpectCommit()

	res, err := repo.ToggleLike(context.Background(), 10, aliceID)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, int64(1), res.Count)
	assert.Equal(t, ownerID, res.OwnerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionRepository_ToggleRollsBackOnFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewInteractionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "visibility", "is_deleted"}).
			AddRow(10, ownerID, "public", false))
	mock.ExpectExec(`DELETE FROM retweets`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE posts SET retweet_count`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := repo.ToggleRetweet(context.Background(), 10, aliceID, "")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionRepository_ToggleLikeIsAnInvolution(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewInteractionRepository(db)
	ctx := context.Background()
	seedPost(t, db, 1, ownerID, baseTime)

	on, err := repo.ToggleLike(ctx, 1, aliceID)
	require.NoError(t, err)
	assert.True(t, on.Active)
	assert.Equal(t, int64(1), on.Count)

	off, err := repo.ToggleLike(ctx, 1, aliceID)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Equal(t, int64(0), off.Count)

	var rows int64
	require.NoError(t, db.Model(&models.Like{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestInteractionRepository_ConcurrentTogglesNeverDrift(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewInteractionRepository(db)
	ctx := context.Background()
	seedPost(t, db, 1, ownerID, baseTime)

	const toggles = 7
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ToggleLike(ctx, 1, aliceID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var rows int64
	require.NoError(t, db.Model(&models.Like{}).Where("post_id = ? AND user_id = ?", 1, aliceID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows, "an odd number of toggles leaves exactly one like")

	var post models.Post
	require.NoError(t, db.First(&post, 1).Error)
	assert.Equal(t, rows, post.LikeCount)
}

func TestInteractionRepository_RetweetKeepsComment(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewInteractionRepository(db)
	ctx := context.Background()
	seedPost(t, db, 1, ownerID, baseTime)

	res, err := repo.ToggleRetweet(ctx, 1, bobID, "worth reading")
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, int64(1), res.Count)

	var rt models.Retweet
	require.NoError(t, db.Where("user_id = ?", bobID).First(&rt).Error)
	assert.Equal(t, "worth reading", rt.Comment)
}

func TestInteractionRepository_RejectsDeletedAndPrivatePosts(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewInteractionRepository(db)
	ctx := context.Background()

	seedPost(t, db, 1, ownerID, baseTime)
	require.NoError(t, db.Model(&models.Post{}).Where("id = ?", 1).Update("is_deleted", true).Error)
	private := seedPost(t, db, 2, ownerID, baseTime)
	require.NoError(t, db.Model(private).Update("visibility", models.VisibilityPrivate).Error)

	_, err := repo.ToggleLike(ctx, 1, aliceID)
	assert.Equal(t, fiberStatus(err), 404)
	_, err = repo.ToggleLike(ctx, 2, aliceID)
	assert.Equal(t, fiberStatus(err), 404)
	_, err = repo.ToggleLike(ctx, 99, aliceID)
	assert.Equal(t, fiberStatus(err), 404)

	own, err := repo.ToggleLike(ctx, 2, ownerID)
	require.NoError(t, err)
	assert.True(t, own.Active)
}

func TestInteractionRepository_ReconcileRepairsDrift(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewInteractionRepository(db)
	ctx := context.Background()
	seedPost(t, db, 1, ownerID, baseTime)
	seedPost(t, db, 2, ownerID, baseTime.Add(time.Minute))

	_, err := repo.ToggleLike(ctx, 1, aliceID)
	require.NoError(t, err)
	require.NoError(t, db.Exec("UPDATE posts SET like_count = 9, comment_count = 4 WHERE id = 1").Error)

	_, poll := createPollPost(t, db, nil)
	voted, idle := poll.Options[0].ID, poll.Options[1].ID
	_, err = NewPollRepository(db).Vote(ctx, poll.ID, voted, aliceID)
	require.NoError(t, err)
	require.NoError(t, db.Exec("UPDATE poll_options SET vote_count = 7 WHERE id = ?", voted).Error)
	require.NoError(t, db.Exec("UPDATE poll_options SET vote_count = 2 WHERE id = ?", idle).Error)

	repaired, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), repaired, "one post and two poll options")

	var post models.Post
	require.NoError(t, db.First(&post, 1).Error)
	assert.Equal(t, int64(1), post.LikeCount)
	assert.Equal(t, int64(0), post.CommentCount)

	var options []models.PollOption
	require.NoError(t, db.Where("poll_id = ?", poll.ID).Order("id").Find(&options).Error)
	require.Len(t, options, 2)
	assert.Equal(t, int64(1), options[0].VoteCount)
	assert.Equal(t, int64(0), options[1].VoteCount)

	again, err := repo.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func fiberStatus(err error) int {
	if err == nil {
		return 200
	}
	return models.StatusForError(err)
}
