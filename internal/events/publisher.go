package events

import (
	"context"
	"errors"
	"sync"

	"chirp/internal/observability"
)

// ErrBufferFull is returned when an in-process publisher cannot accept more
// events.
var ErrBufferFull = errors.New("events: buffer full")

// Publisher hands events to a transport.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// ChannelPublisher is the in-process transport: a buffered channel that a
// consumer drains. A full buffer drops the event.
type ChannelPublisher struct {
	ch        chan Event
	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannelPublisher returns a publisher with room for buffer events.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelPublisher{ch: make(chan Event, buffer), closed: make(chan struct{})}
}

func (p *ChannelPublisher) Publish(ctx context.Context, e Event) error {
	select {
	case <-p.closed:
		observability.EventsDropped.WithLabelValues("closed").Inc()
		return errors.New("events: publisher closed")
	default:
	}
	select {
	case p.ch <- e:
		observability.EventsPublished.WithLabelValues(string(e.Type), "channel").Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		observability.EventsDropped.WithLabelValues("buffer_full").Inc()
		return ErrBufferFull
	}
}

// Events exposes the channel to the consumer side.
func (p *ChannelPublisher) Events() <-chan Event {
	return p.ch
}

// Done is closed once Close has been called.
func (p *ChannelPublisher) Done() <-chan struct{} {
	return p.closed
}

func (p *ChannelPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
