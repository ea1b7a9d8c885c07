package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"chirp/internal/cache"
	"chirp/internal/identity"
	"chirp/internal/middleware"
	"chirp/internal/models"
	"chirp/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs access tokens. *middleware.TokenManager implements it.
type TokenIssuer interface {
	Issue(userID, username string) (string, *middleware.TokenClaims, error)
}

// TokenRevoker blacklists token ids until they would have expired.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type AuthService struct {
	users   identity.Store
	tokens  TokenIssuer
	revoker TokenRevoker
	now     func() time.Time
}

func NewAuthService(users identity.Store, tokens TokenIssuer, revoker TokenRevoker) *AuthService {
	return &AuthService{users: users, tokens: tokens, revoker: revoker, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = username
	}

	if username == "" || email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateDisplayName(displayName); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Username:    username,
		Email:       email,
		Password:    hash,
		DisplayName: displayName,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, identityError(err)
	}
	return s.issue(user)
}

// Login accepts an email or a username as the identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*AuthResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, models.NewUnauthorizedError("Invalid credentials")
		}
		return nil, appError(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, models.NewUnauthorizedError("Invalid credentials")
	}
	return s.issue(user)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, identityError(err)
	}
	return user, nil
}

// Refresh issues a new token and revokes the presented one.
func (s *AuthService) Refresh(ctx context.Context, claims *middleware.TokenClaims) (*AuthResult, error) {
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, models.NewUnauthorizedError("User no longer exists")
		}
		return nil, appError(err)
	}
	out, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, claims)
	return out, nil
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *middleware.TokenClaims) {
	s.revoke(ctx, claims)
}

func (s *AuthService) revoke(ctx context.Context, claims *middleware.TokenClaims) {
	if s.revoker == nil || claims == nil || claims.JTI == "" {
		return
	}
	err := s.revoker.Revoke(ctx, claims.JTI, claims.Remaining(s.now()))
	if err != nil && !errors.Is(err, cache.ErrNoRedis) {
		logAsync(ctx, "revoke_token", err, map[string]interface{}{"user_id": claims.UserID})
	}
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, claims, err := s.tokens.Issue(user.HexID(), user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user.Password = ""
	return &AuthResult{Token: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}
