package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestTokenBlacklist_RevokeSetsTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bl := NewTokenBlacklist(rdb)
	ctx := context.Background()

	revoked, err := bl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, "jti-1", 30*time.Minute))

	revoked, err = bl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 30*time.Minute, mr.TTL(BlacklistKey("jti-1")))

	mr.FastForward(31 * time.Minute)
	revoked, err = bl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "entry should expire with the token")
}

func TestTokenBlacklist_SkipsExpiredTokens(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bl := NewTokenBlacklist(rdb)

	require.NoError(t, bl.Revoke(context.Background(), "jti-old", -time.Second))
	assert.False(t, mr.Exists(BlacklistKey("jti-old")))
}

func TestTokenBlacklist_NoRedis(t *testing.T) {
	bl := NewTokenBlacklist(nil)
	err := bl.Revoke(context.Background(), "jti", time.Minute)
	assert.ErrorIs(t, err, ErrNoRedis)

	revoked, err := bl.IsRevoked(context.Background(), "jti")
	assert.NoError(t, err)
	assert.False(t, revoked)
}

type profile struct {
	Name string `json:"name"`
}

func TestAside_PopulatesOnMissAndServesHit(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *profile) func() error {
		return func() error {
			calls++
			dest.Name = "alice"
			return nil
		}
	}

	var first profile
	require.NoError(t, Aside(ctx, store, UserKey("abc"), &first, UserTTL, fetch(&first)))
	assert.Equal(t, "alice", first.Name)
	assert.True(t, mr.Exists("user:abc"))

	var second profile
	require.NoError(t, Aside(ctx, store, UserKey("abc"), &second, UserTTL, fetch(&second)))
	assert.Equal(t, "alice", second.Name)
	assert.Equal(t, 1, calls)

	Invalidate(ctx, store, UserKey("abc"))
	assert.False(t, mr.Exists("user:abc"))
}

func TestAside_FallsThroughOnCacheError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	mr.Close()

	var p profile
	err := Aside(context.Background(), store, "user:x", &p, time.Minute, func() error {
		p.Name = "from-source"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "from-source", p.Name)
}

func TestAside_PropagatesFetchError(t *testing.T) {
	boom := errors.New("db down")
	var p profile
	err := Aside(context.Background(), NoopStore{}, "k", &p, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "user:64b7", UserKey("64b7"))
	assert.Equal(t, "username:alice", UsernameKey("alice"))
	assert.Equal(t, "trending:24:10", TrendingKey(24, 10))
	assert.Equal(t, "blacklist:j", BlacklistKey("j"))
}
