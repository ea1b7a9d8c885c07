// Package cache provides Redis and memcached helpers: the token blacklist,
// cache-aside reads and key inventory.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chirp/internal/middleware"
	"chirp/internal/observability"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

// errorHook counts failed commands per command name and marks the active
// span failed. redis.Nil is a miss, not an error.
type errorHook struct{}

func (errorHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		observe(ctx, cmd.Name(), err)
		return err
	}
}

func (errorHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		observe(ctx, "pipeline", err)
		return err
	}
}

func observe(ctx context.Context, op string, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	observability.RedisErrorRate.WithLabelValues(op).Inc()
	observability.RecordErrorInContext(ctx, err)
}

// NewRedisClient accepts a redis:// URL or a bare host:port. It does not dial.
func NewRedisClient(addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	rdb := redis.NewClient(opts)
	rdb.AddHook(errorHook{})
	return rdb, nil
}

// ConnectRedis builds the client and pings it once.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb, err := NewRedisClient(addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// InitRedis is ConnectRedis for process startup: Redis is optional, so a
// failure is logged and nil is returned.
func InitRedis(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	rdb, err := ConnectRedis(context.Background(), addr)
	if err != nil {
		middleware.Logger.Warn("redis unavailable, continuing without it", slog.String("error", err.Error()))
		return nil
	}
	middleware.Logger.Info("redis connected", slog.String("addr", rdb.Options().Addr))
	return rdb
}
