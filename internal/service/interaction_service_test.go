package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chirp/internal/events"
	"chirp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInteractionService_ToggleLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		userID     string
		active     bool
		wantNotify bool
	}{
		{name: "like by another user notifies owner", userID: bobID, active: true, wantNotify: true},
		{name: "unlike never notifies", userID: bobID, active: false},
		{name: "self like never notifies", userID: aliceID, active: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := &interactionRepoStub{
				toggleLikeFn: func(_ context.Context, postID uint, userID string) (*models.ToggleResult, error) {
					return &models.ToggleResult{PostID: postID, Active: tt.active, Count: 3, OwnerID: aliceID}, nil
				},
			}
			emitter := &recordingEmitter{}
			notifier, notes := newTestNotifier(directoryOf(testUser(bobID, "bob")), emitter)
			svc := NewInteractionService(repo, notifier, emitter)

			res, err := svc.ToggleLike(context.Background(), 10, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.active, res.Active)
			assert.Equal(t, int64(3), res.Count)

			evs := emitter.Events()
			require.NotEmpty(t, evs)
			assert.Equal(t, events.LikeUpdated, evs[0].Type)
			assert.Empty(t, evs[0].UserID)
			payload := evs[0].Payload.(map[string]interface{})
			assert.Equal(t, int64(3), payload["like_count"])
			assert.Equal(t, tt.active, payload["liked"])

			created := notes.Created()
			if tt.wantNotify {
				require.Len(t, created, 1)
				assert.Equal(t, aliceID, created[0].RecipientID)
				assert.Equal(t, "bob liked your post", created[0].Message)
				require.NotNil(t, created[0].PostID)
				assert.Equal(t, uint(10), *created[0].PostID)
			} else {
				assert.Empty(t, created)
			}
		})
	}
}

func TestInteractionService_ToggleRetweet(t *testing.T) {
	t.Parallel()

	t.Run("comment too long", func(t *testing.T) {
		t.Parallel()
		repo := &interactionRepoStub{
			toggleRetweetFn: func(context.Context, uint, string, string) (*models.ToggleResult, error) {
				t.Fatal("repository must not be called")
				return nil, nil
			},
		}
		svc := NewInteractionService(repo, nil, nil)
		_, err := svc.ToggleRetweet(context.Background(), 1, bobID, strings.Repeat("r", MaxRetweetCommentLen+1))
		assertValidationError(t, err)
	})

	t.Run("retweet emits feed item and notifies", func(t *testing.T) {
		t.Parallel()
		var gotComment string
		repo := &interactionRepoStub{
			toggleRetweetFn: func(_ context.Context, postID uint, _ string, comment string) (*models.ToggleResult, error) {
				gotComment = comment
				return &models.ToggleResult{PostID: postID, Active: true, Count: 1, OwnerID: aliceID}, nil
			},
		}
		emitter := &recordingEmitter{}
		notifier, notes := newTestNotifier(&identityStub{}, emitter)
		svc := NewInteractionService(repo, notifier, emitter)

		_, err := svc.ToggleRetweet(context.Background(), 4, bobID, "  worth a read  ")
		require.NoError(t, err)
		assert.Equal(t, "worth a read", gotComment)
		assert.Equal(t, []events.Type{events.RetweetUpdated, events.NewFeed, events.Notification}, emitter.Types())

		created := notes.Created()
		require.Len(t, created, 1)
		assert.Equal(t, models.NotificationRetweet, created[0].Type)
		assert.Equal(t, "Someone retweeted your post", created[0].Message)
	})

	t.Run("unretweet only updates the count", func(t *testing.T) {
		t.Parallel()
		repo := &interactionRepoStub{
			toggleRetweetFn: func(_ context.Context, postID uint, _, _ string) (*models.ToggleResult, error) {
				return &models.ToggleResult{PostID: postID, Active: false, Count: 0, OwnerID: aliceID}, nil
			},
		}
		emitter := &recordingEmitter{}
		notifier, notes := newTestNotifier(&identityStub{}, emitter)
		svc := NewInteractionService(repo, notifier, emitter)

		_, err := svc.ToggleRetweet(context.Background(), 4, bobID, "")
		require.NoError(t, err)
		assert.Equal(t, []events.Type{events.RetweetUpdated}, emitter.Types())
		assert.Empty(t, notes.Created())
	})
}

func TestInteractionService_ErrorsPassThrough(t *testing.T) {
	t.Parallel()

	notFound := models.NewNotFoundMessage("Post not found")
	repo := &interactionRepoStub{
		toggleLikeFn: func(context.Context, uint, string) (*models.ToggleResult, error) { return nil, notFound },
		toggleRetweetFn: func(context.Context, uint, string, string) (*models.ToggleResult, error) {
			return nil, errors.New("deadlock detected")
		},
	}
	emitter := &recordingEmitter{}
	svc := NewInteractionService(repo, nil, emitter)

	_, err := svc.ToggleLike(context.Background(), 1, bobID)
	assert.Same(t, notFound, err)

	_, err = svc.ToggleRetweet(context.Background(), 1, bobID, "")
	assertAppErrorCode(t, err, models.CodeInternal)
	assert.Empty(t, emitter.Types())
}

func TestInteractionService_NotificationFailureDoesNotFailToggle(t *testing.T) {
	t.Parallel()

	repo := &interactionRepoStub{
		toggleLikeFn: func(_ context.Context, postID uint, _ string) (*models.ToggleResult, error) {
			return &models.ToggleResult{PostID: postID, Active: true, Count: 1, OwnerID: aliceID}, nil
		},
	}
	emitter := &recordingEmitter{}
	notes := &notificationRepoStub{createErr: errors.New("insert failed")}
	svc := NewInteractionService(repo, NewNotificationService(notes, nil, emitter), emitter)

	res, err := svc.ToggleLike(context.Background(), 1, bobID)
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, []events.Type{events.LikeUpdated}, emitter.Types())
}

func TestInteractionService_Reconcile(t *testing.T) {
	t.Parallel()

	repo := &interactionRepoStub{reconcileFn: func(context.Context) (int64, error) { return 3, nil }}
	n, err := NewInteractionService(repo, nil, nil).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	repo.reconcileFn = func(context.Context) (int64, error) { return 0, errors.New("timeout") }
	_, err = NewInteractionService(repo, nil, nil).Reconcile(context.Background())
	assertAppErrorCode(t, err, models.CodeInternal)
}
