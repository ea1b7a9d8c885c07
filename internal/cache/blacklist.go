package cache

import (
	"context"
	"errors"
	"time"

	"chirp/internal/observability"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "blacklist:"

// ErrNoRedis is returned when a Redis-backed feature runs without a client.
var ErrNoRedis = errors.New("redis client is not configured")

// TokenBlacklist records revoked token ids with a TTL equal to the token's
// remaining lifetime, so entries disappear once the token would have expired.
type TokenBlacklist struct {
	rdb *redis.Client
}

// NewTokenBlacklist returns a blacklist backed by rdb.
func NewTokenBlacklist(rdb *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{rdb: rdb}
}

// BlacklistKey returns the Redis key for a token id.
func BlacklistKey(jti string) string {
	return blacklistPrefix + jti
}

// Revoke blacklists jti for ttl. Already-expired tokens need no entry.
func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if b == nil || b.rdb == nil {
		return ErrNoRedis
	}
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "blacklist.revoke")
	defer span.End()
	return b.rdb.Set(ctx, BlacklistKey(jti), "1", ttl).Err()
}

// IsRevoked reports whether jti has been blacklisted.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if b == nil || b.rdb == nil {
		return false, nil
	}
	n, err := b.rdb.Exists(ctx, BlacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
