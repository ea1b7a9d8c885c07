package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chirp/internal/observability"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/redis/go-redis/v9"
)

// Store is a byte-oriented cache with TTLs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Name() string
}

// MemcachedStore adapts gomemcache to Store.
type MemcachedStore struct {
	mc *memcache.Client
}

// NewMemcachedStore dials memcached lazily; gomemcache connects per request.
func NewMemcachedStore(addr string) *MemcachedStore {
	mc := memcache.New(addr)
	mc.MaxIdleConns = 100
	mc.Timeout = 200 * time.Millisecond
	return &MemcachedStore{mc: mc}
}

func (s *MemcachedStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := s.mc.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item.Value, true, nil
}

func (s *MemcachedStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.mc.Set(&memcache.Item{Key: key, Value: value, Expiration: int32(ttl.Seconds())})
}

func (s *MemcachedStore) Delete(_ context.Context, key string) error {
	err := s.mc.Delete(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func (s *MemcachedStore) Name() string { return "memcached" }

// Ping checks that at least one memcached server answers.
func (s *MemcachedStore) Ping() error {
	return s.mc.Ping()
}

// RedisStore adapts a Redis client to Store.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps rdb.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) Name() string { return "redis" }

// NoopStore never hits; used when no cache backend is configured.
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopStore) Delete(context.Context, string) error                     { return nil }
func (NoopStore) Name() string                                             { return "noop" }

// GetJSON reads key from store and unmarshals it into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, store Store, key string, dest any) (bool, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		observability.CacheRequests.WithLabelValues(store.Name(), "error").Inc()
		return false, err
	}
	if !found {
		observability.CacheRequests.WithLabelValues(store.Name(), "miss").Inc()
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	observability.CacheRequests.WithLabelValues(store.Name(), "hit").Inc()
	return true, nil
}

// SetJSON marshals v and stores it with ttl.
func SetJSON(ctx context.Context, store Store, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, b, ttl)
}

// Aside tries the cache first; on a miss (or cache error) it calls fetch,
// which must populate dest, and stores the result best-effort.
func Aside(ctx context.Context, store Store, key string, dest any, ttl time.Duration, fetch func() error) error {
	if found, err := GetJSON(ctx, store, key, dest); err == nil && found {
		return nil
	}
	if err := fetch(); err != nil {
		return err
	}
	_ = SetJSON(ctx, store, key, dest, ttl)
	return nil
}
