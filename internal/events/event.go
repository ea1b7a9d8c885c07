// Package events carries real-time domain events from request handlers to
// websocket clients through a decoupled outbound queue.
package events

import (
	"encoding/json"
	"time"
)

// Type names an event on the wire and doubles as the AMQP routing key.
type Type string

const (
	NewFeed        Type = "new_feed"
	LikeUpdated    Type = "likeUpdated"
	RetweetUpdated Type = "retweetUpdated"
	CommentAdded   Type = "commentAdded"
	PollUpdated    Type = "pollUpdated"
	PostDeleted    Type = "postDeleted"
	Notification   Type = "notification"
)

// Event is one outbound message. An empty UserID broadcasts to every
// connected client.
type Event struct {
	Type       Type        `json:"type"`
	UserID     string      `json:"user_id,omitempty"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Broadcast builds an event for every connected client.
func Broadcast(t Type, payload interface{}) Event {
	return Event{Type: t, Payload: payload}
}

// ToUser builds an event for a single recipient.
func ToUser(userID string, t Type, payload interface{}) Event {
	return Event{Type: t, UserID: userID, Payload: payload}
}

// Message renders the client-facing frame: {"type": ..., "payload": ...}.
func (e Event) Message() (string, error) {
	b, err := json.Marshal(struct {
		Type    Type        `json:"type"`
		Payload interface{} `json:"payload"`
	}{e.Type, e.Payload})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
