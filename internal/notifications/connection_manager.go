package notifications

import (
	"context"
	"strconv"
	"sync"
	"time"

	"chirp/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	defaultOnlineSetKey   = "ws:online_users"
	defaultLastSeenPrefix = "ws:last_seen:"
	defaultPresenceTTL    = 90 * time.Second
	defaultOfflineGrace   = 5 * time.Second
	defaultReaperInterval = 60 * time.Second
)

// ConnectionManagerConfig overrides presence defaults. Zero values keep the
// defaults.
type ConnectionManagerConfig struct {
	LastSeenTTL        time.Duration
	OfflineGracePeriod time.Duration
	ReaperInterval     time.Duration
}

// ConnectionManager counts local connections per user and mirrors presence
// into Redis. A user goes offline only after the grace period passes with no
// connection, so a quick reconnect is invisible.
type ConnectionManager struct {
	rdb *redis.Client

	mu            sync.RWMutex
	local         map[string]int
	offlineTimers map[string]*time.Timer
	lastSeenTTL   time.Duration
	offlineGrace  time.Duration

	onOffline func(userID string)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewConnectionManager creates a manager and, with Redis, starts the reaper
// that clears users whose last-seen key expired.
func NewConnectionManager(rdb *redis.Client, cfg ConnectionManagerConfig) *ConnectionManager {
	m := &ConnectionManager{
		rdb:           rdb,
		local:         make(map[string]int),
		offlineTimers: make(map[string]*time.Timer),
		lastSeenTTL:   defaultPresenceTTL,
		offlineGrace:  defaultOfflineGrace,
		stopCh:        make(chan struct{}),
	}
	if cfg.LastSeenTTL > 0 {
		m.lastSeenTTL = cfg.LastSeenTTL
	}
	if cfg.OfflineGracePeriod > 0 {
		m.offlineGrace = cfg.OfflineGracePeriod
	}
	reaper := defaultReaperInterval
	if cfg.ReaperInterval > 0 {
		reaper = cfg.ReaperInterval
	}
	if rdb != nil {
		go m.reaperLoop(reaper)
	}
	return m
}

// OnOffline registers a callback for the online to offline transition.
func (m *ConnectionManager) OnOffline(fn func(userID string)) {
	m.mu.Lock()
	m.onOffline = fn
	m.mu.Unlock()
}

func (m *ConnectionManager) Register(ctx context.Context, userID string) {
	m.mu.Lock()
	if t, ok := m.offlineTimers[userID]; ok {
		t.Stop()
		delete(m.offlineTimers, userID)
	}
	m.local[userID]++
	m.mu.Unlock()
	m.Touch(ctx, userID)
}

// Touch refreshes userID's last-seen key.
func (m *ConnectionManager) Touch(ctx context.Context, userID string) {
	if m.rdb == nil {
		return
	}
	pipe := m.rdb.TxPipeline()
	pipe.SAdd(ctx, defaultOnlineSetKey, userID)
	pipe.SetEx(ctx, defaultLastSeenPrefix+userID, strconv.FormatInt(time.Now().Unix(), 10), m.lastSeenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrorRate.WithLabelValues("presence_touch").Inc()
	}
}

func (m *ConnectionManager) Unregister(_ context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := m.local[userID] - 1; n > 0 {
		m.local[userID] = n
		return
	}
	delete(m.local, userID)
	if t, ok := m.offlineTimers[userID]; ok {
		t.Stop()
	}
	m.offlineTimers[userID] = time.AfterFunc(m.offlineGrace, func() {
		m.finalizeOffline(context.Background(), userID)
	})
}

func (m *ConnectionManager) IsOnline(ctx context.Context, userID string) bool {
	m.mu.RLock()
	local := m.local[userID] > 0
	_, pending := m.offlineTimers[userID]
	m.mu.RUnlock()
	if local || pending {
		return true
	}
	if m.rdb == nil {
		return false
	}
	n, err := m.rdb.Exists(ctx, defaultLastSeenPrefix+userID).Result()
	return err == nil && n > 0
}

func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		for id, t := range m.offlineTimers {
			t.Stop()
			delete(m.offlineTimers, id)
		}
		m.mu.Unlock()
	})
}

func (m *ConnectionManager) finalizeOffline(ctx context.Context, userID string) {
	m.mu.Lock()
	delete(m.offlineTimers, userID)
	if m.local[userID] > 0 {
		m.mu.Unlock()
		return
	}
	cb := m.onOffline
	m.mu.Unlock()

	if m.rdb != nil {
		_ = m.rdb.Del(ctx, defaultLastSeenPrefix+userID).Err()
		_ = m.rdb.SRem(ctx, defaultOnlineSetKey, userID).Err()
	}
	if cb != nil {
		cb(userID)
	}
}

// reapOnce drops set members whose last-seen key has expired.
func (m *ConnectionManager) reapOnce(ctx context.Context) int {
	members, err := m.rdb.SMembers(ctx, defaultOnlineSetKey).Result()
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("presence_reap").Inc()
		return 0
	}
	reaped := 0
	for _, userID := range members {
		n, err := m.rdb.Exists(ctx, defaultLastSeenPrefix+userID).Result()
		if err != nil || n > 0 {
			continue
		}
		m.mu.RLock()
		hasLocal := m.local[userID] > 0
		cb := m.onOffline
		m.mu.RUnlock()
		if hasLocal {
			continue
		}
		_ = m.rdb.SRem(ctx, defaultOnlineSetKey, userID).Err()
		reaped++
		if cb != nil {
			cb(userID)
		}
	}
	return reaped
}

func (m *ConnectionManager) reaperLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reapOnce(context.Background())
		}
	}
}
