// Package notifications delivers real-time events to websocket clients.
package notifications

import (
	"context"
	"errors"
	"strings"
	"sync"

	"chirp/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub maps user ids to their open websocket clients.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	presence   *ConnectionManager
	closeOnce  sync.Once
}

// NewHub creates a hub. When rdb is non-nil, presence is mirrored to Redis.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		conns:    make(map[string]map[*Client]struct{}),
		presence: NewConnectionManager(rdb, ConnectionManagerConfig{}),
	}
}

func (h *Hub) Name() string { return "notification hub" }

// Register adds a connection for userID.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerFull
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserFull
	}

	client := newClient(h, conn, userID)
	client.OnActivity = func(uid string) { h.presence.Touch(context.Background(), uid) }
	m[client] = struct{}{}
	h.totalConns++
	h.mu.Unlock()

	observability.ActiveWebSockets.Inc()
	h.presence.Register(context.Background(), userID)
	wsLog.LogConnect(context.Background(), userID)
	return client, nil
}

// UnregisterClient removes client. Calling it twice is harmless.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	h.mu.Unlock()

	if removed {
		observability.ActiveWebSockets.Dec()
		h.presence.Unregister(context.Background(), client.UserID)
		wsLog.LogDisconnect(context.Background(), client.UserID, "closed")
	}
}

// SendToUser delivers message to every connection of userID.
func (h *Hub) SendToUser(userID, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.conns[userID] {
		c.TrySend(data)
	}
}

// BroadcastAll delivers message to every connected client.
func (h *Hub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// PublishUser delivers payload to local connections only. With it the hub
// can stand in for the Redis notifier on a single instance.
func (h *Hub) PublishUser(_ context.Context, userID, payload string) error {
	h.SendToUser(userID, payload)
	return nil
}

// PublishBroadcast is the local counterpart of Notifier.PublishBroadcast.
func (h *Hub) PublishBroadcast(_ context.Context, payload string) error {
	h.BroadcastAll(payload)
	return nil
}

// IsOnline reports whether userID has a live connection here or, with
// Redis, on any instance.
func (h *Hub) IsOnline(userID string) bool {
	return h.presence.IsOnline(context.Background(), userID)
}

// ConnectionCount returns the number of local connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// StartWiring subscribes n's channels and routes each message to the
// matching local clients.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, h.Route)
}

// Route delivers a pub/sub message by channel name.
func (h *Hub) Route(channel, payload string) {
	if channel == BroadcastChannel {
		h.BroadcastAll(payload)
		return
	}
	userID, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok || userID == "" {
		wsLog.LogError(context.Background(), "", errors.New("unknown channel "+channel), "route")
		return
	}
	h.SendToUser(userID, payload)
}

// Shutdown closes every connection with a going-away frame.
func (h *Hub) Shutdown(_ context.Context) error {
	h.closeOnce.Do(func() {
		h.presence.Stop()

		h.mu.Lock()
		defer h.mu.Unlock()
		for userID, clients := range h.conns {
			for client := range clients {
				if client.Conn == nil {
					continue
				}
				_ = client.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down"))
				if err := client.Conn.Close(); err != nil {
					wsLog.LogError(context.Background(), userID, err, "shutdown")
				}
			}
		}
		observability.ActiveWebSockets.Sub(float64(h.totalConns))
		h.conns = make(map[string]map[*Client]struct{})
		h.totalConns = 0
	})
	return nil
}
