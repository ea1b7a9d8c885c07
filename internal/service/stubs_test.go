package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chirp/internal/events"
	"chirp/internal/identity"
	"chirp/internal/models"
	"chirp/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	aliceID = "65a000000000000000000001"
	bobID   = "65a000000000000000000002"
	carolID = "65a000000000000000000003"
)

func testUser(id, username string) *models.User {
	oid, _ := primitive.ObjectIDFromHex(id)
	return &models.User{ID: oid, Username: username, DisplayName: username}
}

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn              func(context.Context, *models.Post, *models.Poll) error
	getByIDFn             func(context.Context, uint) (*models.Post, error)
	getIncludingDeletedFn func(context.Context, uint) (*models.Post, error)
	softDeleteFn          func(context.Context, uint, time.Time) error
	listByUserFn          func(context.Context, string, string, string, int) (models.Page[*models.Post], error)
	searchFn              func(context.Context, repository.PostSearch, string, int) (models.Page[*models.Post], error)
	trendingFn            func(context.Context, time.Time, int) ([]models.HashtagCount, error)
	analyticsFn           func(context.Context, uint, time.Time) (*models.PostAnalytics, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post, poll *models.Poll) error {
	return s.createFn(ctx, post, poll)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) GetIncludingDeleted(ctx context.Context, id uint) (*models.Post, error) {
	return s.getIncludingDeletedFn(ctx, id)
}
func (s *postRepoStub) SoftDelete(ctx context.Context, id uint, at time.Time) error {
	return s.softDeleteFn(ctx, id, at)
}
func (s *postRepoStub) ListByUser(ctx context.Context, userID, viewerID, cursor string, limit int) (models.Page[*models.Post], error) {
	return s.listByUserFn(ctx, userID, viewerID, cursor, limit)
}
func (s *postRepoStub) Search(ctx context.Context, f repository.PostSearch, cursor string, limit int) (models.Page[*models.Post], error) {
	return s.searchFn(ctx, f, cursor, limit)
}
func (s *postRepoStub) TrendingHashtags(ctx context.Context, since time.Time, limit int) ([]models.HashtagCount, error) {
	return s.trendingFn(ctx, since, limit)
}
func (s *postRepoStub) Analytics(ctx context.Context, postID uint, since time.Time) (*models.PostAnalytics, error) {
	return s.analyticsFn(ctx, postID, since)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn: func(_ context.Context, p *models.Post, poll *models.Poll) error {
			p.ID = 1
			p.Poll = poll
			return nil
		},
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) {
			return &models.Post{ID: id, UserID: aliceID, Visibility: models.VisibilityPublic}, nil
		},
		getIncludingDeletedFn: func(_ context.Context, id uint) (*models.Post, error) { return &models.Post{ID: id}, nil },
		softDeleteFn:          func(_ context.Context, _ uint, _ time.Time) error { return nil },
		listByUserFn: func(_ context.Context, _, _, _ string, _ int) (models.Page[*models.Post], error) {
			return models.Page[*models.Post]{}, nil
		},
		searchFn: func(_ context.Context, _ repository.PostSearch, _ string, _ int) (models.Page[*models.Post], error) {
			return models.Page[*models.Post]{}, nil
		},
		trendingFn: func(_ context.Context, _ time.Time, _ int) ([]models.HashtagCount, error) { return nil, nil },
		analyticsFn: func(_ context.Context, id uint, _ time.Time) (*models.PostAnalytics, error) {
			return &models.PostAnalytics{PostID: id}, nil
		},
	}
}

// feedRepoStub is a stub for repository.FeedRepository.
type feedRepoStub struct {
	liveFn      func(context.Context, string, string, int) (models.Page[models.FeedItem], error)
	followingFn func(context.Context, string, string, int) (models.Page[models.FeedItem], error)
	annotateFn  func(context.Context, string, []*models.PostView) error
}

func (s *feedRepoStub) Live(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
	return s.liveFn(ctx, viewerID, cursor, limit)
}
func (s *feedRepoStub) Following(ctx context.Context, viewerID, cursor string, limit int) (models.Page[models.FeedItem], error) {
	return s.followingFn(ctx, viewerID, cursor, limit)
}
func (s *feedRepoStub) Annotate(ctx context.Context, viewerID string, views []*models.PostView) error {
	return s.annotateFn(ctx, viewerID, views)
}

func noopFeedRepo() *feedRepoStub {
	empty := func(_ context.Context, _, _ string, _ int) (models.Page[models.FeedItem], error) {
		return models.Page[models.FeedItem]{}, nil
	}
	return &feedRepoStub{
		liveFn:      empty,
		followingFn: empty,
		annotateFn:  func(_ context.Context, _ string, _ []*models.PostView) error { return nil },
	}
}

// interactionRepoStub is a stub for repository.InteractionRepository.
type interactionRepoStub struct {
	toggleLikeFn    func(context.Context, uint, string) (*models.ToggleResult, error)
	toggleRetweetFn func(context.Context, uint, string, string) (*models.ToggleResult, error)
	reconcileFn     func(context.Context) (int64, error)
}

func (s *interactionRepoStub) ToggleLike(ctx context.Context, postID uint, userID string) (*models.ToggleResult, error) {
	return s.toggleLikeFn(ctx, postID, userID)
}
func (s *interactionRepoStub) ToggleRetweet(ctx context.Context, postID uint, userID, comment string) (*models.ToggleResult, error) {
	return s.toggleRetweetFn(ctx, postID, userID, comment)
}
func (s *interactionRepoStub) Reconcile(ctx context.Context) (int64, error) {
	return s.reconcileFn(ctx)
}

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	addFn        func(context.Context, *models.Comment) (*repository.CommentResult, error)
	listByPostFn func(context.Context, uint, string, string, int) (models.Page[*models.Comment], error)
}

func (s *commentRepoStub) Add(ctx context.Context, comment *models.Comment) (*repository.CommentResult, error) {
	return s.addFn(ctx, comment)
}
func (s *commentRepoStub) ListByPost(ctx context.Context, postID uint, viewerID, cursor string, limit int) (models.Page[*models.Comment], error) {
	return s.listByPostFn(ctx, postID, viewerID, cursor, limit)
}

// pollRepoStub is a stub for repository.PollRepository.
type pollRepoStub struct {
	getByPostIDFn func(context.Context, uint) (*models.Poll, error)
	getVoteFn     func(context.Context, uint, string) (*models.PollVote, error)
	voteFn        func(context.Context, uint, uint, string) (*models.Poll, error)
}

func (s *pollRepoStub) GetByPostID(ctx context.Context, postID uint) (*models.Poll, error) {
	return s.getByPostIDFn(ctx, postID)
}
func (s *pollRepoStub) GetVote(ctx context.Context, pollID uint, userID string) (*models.PollVote, error) {
	return s.getVoteFn(ctx, pollID, userID)
}
func (s *pollRepoStub) Vote(ctx context.Context, pollID, optionID uint, userID string) (*models.Poll, error) {
	return s.voteFn(ctx, pollID, optionID, userID)
}

// followRepoStub is a stub for repository.FollowRepository.
type followRepoStub struct {
	createFn    func(context.Context, string, string) (bool, error)
	deleteFn    func(context.Context, string, string) (bool, error)
	followersFn func(context.Context, string, string, int) (models.Page[models.Follow], error)
	followingFn func(context.Context, string, string, int) (models.Page[models.Follow], error)
}

func (s *followRepoStub) Create(ctx context.Context, followerID, followeeID string) (bool, error) {
	return s.createFn(ctx, followerID, followeeID)
}
func (s *followRepoStub) Delete(ctx context.Context, followerID, followeeID string) (bool, error) {
	return s.deleteFn(ctx, followerID, followeeID)
}
func (s *followRepoStub) Followers(ctx context.Context, userID, cursor string, limit int) (models.Page[models.Follow], error) {
	return s.followersFn(ctx, userID, cursor, limit)
}
func (s *followRepoStub) Following(ctx context.Context, userID, cursor string, limit int) (models.Page[models.Follow], error) {
	return s.followingFn(ctx, userID, cursor, limit)
}

func noopFollowRepo() *followRepoStub {
	empty := func(_ context.Context, _, _ string, _ int) (models.Page[models.Follow], error) {
		return models.Page[models.Follow]{}, nil
	}
	return &followRepoStub{
		createFn:    func(_ context.Context, _, _ string) (bool, error) { return true, nil },
		deleteFn:    func(_ context.Context, _, _ string) (bool, error) { return true, nil },
		followersFn: empty,
		followingFn: empty,
	}
}

// notificationRepoStub records created notifications.
type notificationRepoStub struct {
	mu          sync.Mutex
	created     []*models.Notification
	createErr   error
	listFn      func(context.Context, string, string, int) (models.Page[*models.Notification], error)
	markReadFn  func(context.Context, uint, string) (bool, error)
	purgeReadFn func(context.Context, time.Time) (int64, error)
}

func (s *notificationRepoStub) Create(_ context.Context, n *models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uint(len(s.created) + 1)
	s.created = append(s.created, n)
	return nil
}
func (s *notificationRepoStub) List(ctx context.Context, recipientID, cursor string, limit int) (models.Page[*models.Notification], error) {
	return s.listFn(ctx, recipientID, cursor, limit)
}
func (s *notificationRepoStub) UnreadCount(_ context.Context, _ string) (int64, error) {
	return int64(len(s.Created())), nil
}
func (s *notificationRepoStub) MarkRead(ctx context.Context, id uint, recipientID string) (bool, error) {
	return s.markReadFn(ctx, id, recipientID)
}
func (s *notificationRepoStub) MarkAllRead(_ context.Context, _ string) (int64, error) {
	return int64(len(s.Created())), nil
}
func (s *notificationRepoStub) PurgeRead(ctx context.Context, before time.Time) (int64, error) {
	return s.purgeReadFn(ctx, before)
}

func (s *notificationRepoStub) Created() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Notification(nil), s.created...)
}

// identityStub is a stub for identity.Store. Unset functions return zero values.
type identityStub struct {
	createFn         func(context.Context, *models.User) error
	getByIDFn        func(context.Context, string) (*models.User, error)
	credentialsFn    func(context.Context, string) (*models.User, error)
	getByEmailFn     func(context.Context, string) (*models.User, error)
	getByUsernameFn  func(context.Context, string) (*models.User, error)
	getByUsernamesFn func(context.Context, []string) ([]models.User, error)
	summariesFn      func(context.Context, []string) (map[string]models.UserSummary, error)
	updateProfileFn  func(context.Context, string, identity.ProfileUpdate) (*models.User, error)
	updatePasswordFn func(context.Context, string, string) error
	addFollowFn      func(context.Context, string, string) (bool, error)
	removeFollowFn   func(context.Context, string, string) (bool, error)
	isFollowingFn    func(context.Context, string, string) (bool, error)
	searchFn         func(context.Context, string, string, int) ([]models.User, error)
	suggestionsFn    func(context.Context, string, int) ([]models.User, error)
}

var _ identity.Store = (*identityStub)(nil)

func (s *identityStub) Create(ctx context.Context, u *models.User) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, u)
}
func (s *identityStub) GetByID(ctx context.Context, id string) (*models.User, error) {
	if s.getByIDFn == nil {
		return nil, identity.ErrNotFound
	}
	return s.getByIDFn(ctx, id)
}
func (s *identityStub) Credentials(ctx context.Context, id string) (*models.User, error) {
	if s.credentialsFn == nil {
		return nil, identity.ErrNotFound
	}
	return s.credentialsFn(ctx, id)
}
func (s *identityStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.getByEmailFn == nil {
		return nil, identity.ErrNotFound
	}
	return s.getByEmailFn(ctx, email)
}
func (s *identityStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if s.getByUsernameFn == nil {
		return nil, identity.ErrNotFound
	}
	return s.getByUsernameFn(ctx, username)
}
func (s *identityStub) GetByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	if s.getByUsernamesFn == nil {
		return nil, nil
	}
	return s.getByUsernamesFn(ctx, usernames)
}
func (s *identityStub) Summaries(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	if s.summariesFn == nil {
		return map[string]models.UserSummary{}, nil
	}
	return s.summariesFn(ctx, ids)
}
func (s *identityStub) UpdateProfile(ctx context.Context, id string, upd identity.ProfileUpdate) (*models.User, error) {
	if s.updateProfileFn == nil {
		return nil, identity.ErrNotFound
	}
	return s.updateProfileFn(ctx, id, upd)
}
func (s *identityStub) UpdatePassword(ctx context.Context, id, hash string) error {
	if s.updatePasswordFn == nil {
		return nil
	}
	return s.updatePasswordFn(ctx, id, hash)
}
func (s *identityStub) AddFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if s.addFollowFn == nil {
		return true, nil
	}
	return s.addFollowFn(ctx, followerID, followeeID)
}
func (s *identityStub) RemoveFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if s.removeFollowFn == nil {
		return true, nil
	}
	return s.removeFollowFn(ctx, followerID, followeeID)
}
func (s *identityStub) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	if s.isFollowingFn == nil {
		return false, nil
	}
	return s.isFollowingFn(ctx, followerID, followeeID)
}
func (s *identityStub) Search(ctx context.Context, query, afterID string, limit int) ([]models.User, error) {
	if s.searchFn == nil {
		return nil, nil
	}
	return s.searchFn(ctx, query, afterID, limit)
}
func (s *identityStub) Suggestions(ctx context.Context, userID string, limit int) ([]models.User, error) {
	if s.suggestionsFn == nil {
		return nil, nil
	}
	return s.suggestionsFn(ctx, userID, limit)
}

// directoryOf answers Summaries from a fixed set of users.
func directoryOf(users ...*models.User) *identityStub {
	byID := map[string]*models.User{}
	for _, u := range users {
		byID[u.HexID()] = u
	}
	return &identityStub{
		getByIDFn: func(_ context.Context, id string) (*models.User, error) {
			if u, ok := byID[id]; ok {
				return u, nil
			}
			return nil, identity.ErrNotFound
		},
		summariesFn: func(_ context.Context, ids []string) (map[string]models.UserSummary, error) {
			out := map[string]models.UserSummary{}
			for _, id := range ids {
				if u, ok := byID[id]; ok {
					out[id] = u.Summary()
				}
			}
			return out, nil
		},
	}
}

// recordingEmitter keeps every emitted event.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingEmitter) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// newTestNotifier returns a notifier writing into a recording repo stub.
func newTestNotifier(users UserDirectory, emitter Emitter) (*NotificationService, *notificationRepoStub) {
	repo := &notificationRepoStub{}
	return NewNotificationService(repo, users, emitter), repo
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeValidation)
}

// assertUnauthorizedError asserts that err is an AppError with code UNAUTHORIZED.
func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeUnauthorized)
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}
