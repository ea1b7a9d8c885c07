package cache

import (
	"context"
	"fmt"
	"time"
)

// Key formats.
const (
	UserKeyPrefix     = "user:%s"
	UsernameKeyPrefix = "username:%s"
	TrendingKeyPrefix = "trending:%d:%d"
)

// TTLs per key family.
const (
	UserTTL     = 5 * time.Minute
	TrendingTTL = time.Minute
)

func UserKey(userID string) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func UsernameKey(username string) string {
	return fmt.Sprintf(UsernameKeyPrefix, username)
}

func TrendingKey(hours, limit int) string {
	return fmt.Sprintf(TrendingKeyPrefix, hours, limit)
}

// Invalidate deletes key, ignoring errors; a stale entry expires on its TTL.
func Invalidate(ctx context.Context, store Store, key string) {
	if store != nil {
		_ = store.Delete(ctx, key)
	}
}
