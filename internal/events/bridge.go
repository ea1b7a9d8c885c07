package events

import (
	"context"
	"fmt"
)

// Sink is the Redis pub/sub side of the bridge. notifications.Notifier
// satisfies it.
type Sink interface {
	PublishUser(ctx context.Context, userID, payload string) error
	PublishBroadcast(ctx context.Context, payload string) error
}

// Forward routes e to its user channel, or to the broadcast channel when it
// has no recipient.
func Forward(ctx context.Context, sink Sink, e Event) error {
	msg, err := e.Message()
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Type, err)
	}
	if e.UserID == "" {
		return sink.PublishBroadcast(ctx, msg)
	}
	return sink.PublishUser(ctx, e.UserID, msg)
}

// RunChannelConsumer forwards events from an in-process publisher until ctx
// is done or the publisher is closed and drained.
func RunChannelConsumer(ctx context.Context, p *ChannelPublisher, sink Sink, onError func(Event, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.Events():
			if err := Forward(ctx, sink, e); err != nil && onError != nil {
				onError(e, err)
			}
		case <-p.Done():
			for {
				select {
				case e := <-p.Events():
					if err := Forward(ctx, sink, e); err != nil && onError != nil {
						onError(e, err)
					}
				default:
					return
				}
			}
		}
	}
}
