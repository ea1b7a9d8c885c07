// Package middleware provides HTTP middleware shared by every route group.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chirp/internal/config"
	"chirp/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenClaims is the subset of JWT claims the API relies on.
type TokenClaims struct {
	UserID    string
	Username  string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Remaining returns how long the token stays valid after now.
func (c *TokenClaims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenManager builds a TokenManager from configuration.
func NewTokenManager(cfg *config.Config) *TokenManager {
	ttl := time.Duration(cfg.JWTTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenManager{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue signs a new token for the user.
func (m *TokenManager) Issue(userID, username string) (string, *TokenClaims, error) {
	now := m.now()
	claims := &TokenClaims{
		UserID:    userID,
		Username:  username,
		JTI:       generateJTI(now),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      claims.UserID,
		"username": claims.Username,
		"iss":      m.issuer,
		"aud":      m.audience,
		"exp":      claims.ExpiresAt.Unix(),
		"iat":      now.Unix(),
		"nbf":      now.Unix(),
		"jti":      claims.JTI,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

func generateJTI(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8])
}

// Parse verifies signature, expiry, issuer and audience and returns the claims.
func (m *TokenManager) Parse(tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now)}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	token, err := jwt.Parse(tokenString, func(_ *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewUnauthorizedError("Invalid token claims")
	}
	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return nil, models.NewUnauthorizedError("Invalid token structure - missing subject")
	}

	claims := &TokenClaims{UserID: sub}
	claims.Username, _ = mapClaims["username"].(string)
	claims.JTI, _ = mapClaims["jti"].(string)
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	return claims, nil
}

// Authenticator turns bearer tokens into an authenticated user on the request.
type Authenticator struct {
	tokens  *TokenManager
	revoked RevocationChecker
}

// NewAuthenticator wires token verification with the revocation store.
// A nil store disables revocation checks.
func NewAuthenticator(tokens *TokenManager, revoked RevocationChecker) *Authenticator {
	return &Authenticator{tokens: tokens, revoked: revoked}
}

// Tokens exposes the token manager for issuing tokens.
func (a *Authenticator) Tokens() *TokenManager {
	return a.tokens
}

func (a *Authenticator) authenticate(ctx context.Context, raw string) (*TokenClaims, error) {
	claims, err := a.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.JTI != "" && a.revoked != nil {
		revoked, err := a.revoked.IsRevoked(ctx, claims.JTI)
		if err != nil {
			// Redis outages must not lock every user out.
			Logger.WarnContext(ctx, "token revocation check failed", slog.String("error", err.Error()))
		} else if revoked {
			return nil, &models.AppError{Code: models.CodeTokenRevoked, Message: "Token has been revoked"}
		}
	}
	return claims, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", models.NewUnauthorizedError("Authorization header required")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", models.NewUnauthorizedError("Invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func setIdentity(c *fiber.Ctx, claims *TokenClaims) {
	c.Locals("userID", claims.UserID)
	c.Locals("username", claims.Username)
	c.Locals("tokenClaims", claims)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, claims.UserID))
}

// Required rejects requests without a valid, unrevoked bearer token.
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		claims, err := a.authenticate(c.UserContext(), raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		setIdentity(c, claims)
		return c.Next()
	}
}

// Optional attaches the user when a valid token is present and otherwise
// continues anonymously.
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := bearerToken(c)
		if err != nil {
			return c.Next()
		}
		if claims, err := a.authenticate(c.UserContext(), raw); err == nil {
			setIdentity(c, claims)
		}
		return c.Next()
	}
}

// WebSocket reads the token from the query string, falling back to the header.
func (a *Authenticator) WebSocket() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query("token")
		if raw == "" {
			var err error
			if raw, err = bearerToken(c); err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized, err)
			}
		}
		claims, err := a.authenticate(c.UserContext(), raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}
		setIdentity(c, claims)
		return c.Next()
	}
}

// CurrentUserID returns the authenticated user id or "" for anonymous requests.
func CurrentUserID(c *fiber.Ctx) string {
	uid, _ := c.Locals("userID").(string)
	return uid
}

// CurrentClaims returns the verified claims of the request token.
func CurrentClaims(c *fiber.Ctx) (*TokenClaims, error) {
	claims, ok := c.Locals("tokenClaims").(*TokenClaims)
	if !ok || claims == nil {
		return nil, errors.New("request is not authenticated")
	}
	return claims, nil
}
