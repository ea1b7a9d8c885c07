package service

import (
	"context"
	"errors"
	"strings"

	"chirp/internal/identity"
	"chirp/internal/models"
	"chirp/internal/repository"
	"chirp/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// MaxSuggestions caps the who-to-follow list.
const MaxSuggestions = 20

type UserService struct {
	users    identity.Store
	follows  repository.FollowRepository
	notifier *NotificationService
}

// UpdateProfileInput carries optional profile changes. Nil fields are kept.
type UpdateProfileInput struct {
	UserID      string
	DisplayName *string
	Bio         *string
	Avatar      *string
	Location    *string
	Website     *string
}

func NewUserService(users identity.Store, follows repository.FollowRepository, notifier *NotificationService) *UserService {
	return &UserService{users: users, follows: follows, notifier: notifier}
}

// GetProfile returns userID's profile with viewer-relative follow state.
func (s *UserService) GetProfile(ctx context.Context, userID, viewerID string) (*models.Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, identityError(err)
	}
	profile := &models.Profile{User: *user, IsSelf: viewerID != "" && viewerID == userID}
	if viewerID != "" && !profile.IsSelf {
		following, err := s.users.IsFollowing(ctx, viewerID, userID)
		if err != nil {
			return nil, appError(err)
		}
		profile.IsFollowing = following
	}
	return profile, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	upd := identity.ProfileUpdate{Avatar: trimmed(in.Avatar), Website: trimmed(in.Website)}

	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if err := validation.ValidateDisplayName(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		upd.DisplayName = &name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if err := validation.ValidateBio(bio); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		upd.Bio = &bio
	}
	if loc := trimmed(in.Location); loc != nil {
		if len([]rune(*loc)) > MaxLocationLen {
			return nil, models.NewValidationError("Location too long (max 120 characters)")
		}
		upd.Location = loc
	}

	user, err := s.users.UpdateProfile(ctx, in.UserID, upd)
	if err != nil {
		return nil, identityError(err)
	}
	return user, nil
}

// ChangePassword replaces the password hash after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return models.NewValidationError("Current and new password are required")
	}
	if err := validation.ValidatePassword(next); err != nil {
		return models.NewValidationError(err.Error())
	}
	user, err := s.users.Credentials(ctx, userID)
	if err != nil {
		return identityError(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)) != nil {
		return models.NewUnauthorizedError("Current password is incorrect")
	}
	hash, err := hashPassword(next)
	if err != nil {
		return models.NewInternalError(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return identityError(err)
	}
	return nil
}

// Follow adds followerID -> followeeID in the identity store, mirrors the
// edge into the relational store and notifies the followee.
func (s *UserService) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return models.NewValidationError("You cannot follow yourself")
	}
	if _, err := s.users.GetByID(ctx, followeeID); err != nil {
		return identityError(err)
	}

	added, err := s.users.AddFollow(ctx, followerID, followeeID)
	if err != nil {
		return identityError(err)
	}
	if !added {
		return models.NewConflictError(models.CodeAlreadyFollowing, "You are already following this user")
	}

	if _, err := s.follows.Create(ctx, followerID, followeeID); err != nil {
		// Undo the identity write so both stores keep agreeing.
		if _, undoErr := s.users.RemoveFollow(ctx, followerID, followeeID); undoErr != nil {
			logAsync(ctx, "follow_compensate", undoErr, map[string]interface{}{
				"follower_id": followerID,
				"followee_id": followeeID,
			})
		}
		return appError(err)
	}

	s.notifier.Notify(ctx, NotifyInput{RecipientID: followeeID, ActorID: followerID, Type: models.NotificationFollow})
	return nil
}

// Unfollow removes the edge from both stores.
func (s *UserService) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return models.NewValidationError("You cannot unfollow yourself")
	}
	removed, err := s.users.RemoveFollow(ctx, followerID, followeeID)
	if err != nil {
		return identityError(err)
	}
	if !removed {
		return models.NewNotFollowingError()
	}
	if _, err := s.follows.Delete(ctx, followerID, followeeID); err != nil {
		if _, redoErr := s.users.AddFollow(ctx, followerID, followeeID); redoErr != nil {
			logAsync(ctx, "unfollow_compensate", redoErr, map[string]interface{}{
				"follower_id": followerID,
				"followee_id": followeeID,
			})
		}
		return appError(err)
	}
	return nil
}

// Followers pages through the users following userID, newest edge first.
func (s *UserService) Followers(ctx context.Context, userID, cursor string, limit int) (models.Page[models.UserSummary], error) {
	page, err := s.follows.Followers(ctx, userID, cursor, limit)
	if err != nil {
		return models.Page[models.UserSummary]{}, appError(err)
	}
	return s.summaryPage(ctx, page, func(f models.Follow) string { return f.FollowerID }), nil
}

// Following pages through the users userID follows, newest edge first.
func (s *UserService) Following(ctx context.Context, userID, cursor string, limit int) (models.Page[models.UserSummary], error) {
	page, err := s.follows.Following(ctx, userID, cursor, limit)
	if err != nil {
		return models.Page[models.UserSummary]{}, appError(err)
	}
	return s.summaryPage(ctx, page, func(f models.Follow) string { return f.FolloweeID }), nil
}

func (s *UserService) summaryPage(ctx context.Context, page models.Page[models.Follow], pick func(models.Follow) string) models.Page[models.UserSummary] {
	ids := make([]string, 0, len(page.Items))
	for _, f := range page.Items {
		ids = append(ids, pick(f))
	}
	people := lookupSummaries(ctx, s.users, ids)
	out := models.Page[models.UserSummary]{
		Items:      make([]models.UserSummary, 0, len(ids)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for _, id := range ids {
		out.Items = append(out.Items, *summaryFor(people, id))
	}
	return out
}

// Suggestions lists popular users that userID does not follow yet.
func (s *UserService) Suggestions(ctx context.Context, userID string, limit int) ([]models.UserSummary, error) {
	limit = repository.ClampLimit(limit, 10, MaxSuggestions)
	users, err := s.users.Suggestions(ctx, userID, limit)
	if err != nil {
		return nil, identityError(err)
	}
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

// identityError maps identity-store sentinels onto API errors.
func identityError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrNotFound):
		return models.NewNotFoundMessage("User not found")
	case errors.Is(err, identity.ErrDuplicate):
		return models.NewConflictError("", "Username or email already exists")
	default:
		return appError(err)
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
