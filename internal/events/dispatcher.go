package events

import (
	"context"
	"sync"
	"time"

	"chirp/internal/observability"
)

const publishTimeout = 5 * time.Second

// Dispatcher decouples request handlers from the publisher. Emit enqueues
// onto a bounded queue and never blocks; one worker drains it.
type Dispatcher struct {
	pub       Publisher
	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewDispatcher returns a dispatcher with room for size pending events.
func NewDispatcher(pub Publisher, size int) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	return &Dispatcher{
		pub:   pub,
		queue: make(chan Event, size),
		done:  make(chan struct{}),
		now:   time.Now,
	}
}

// Start launches the worker. Call it once.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Emit enqueues e. A full queue or a closed dispatcher drops the event.
// Emit on a nil Dispatcher is a no-op.
func (d *Dispatcher) Emit(e Event) {
	if d == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = d.now().UTC()
	}
	select {
	case <-d.done:
		observability.EventsDropped.WithLabelValues("closed").Inc()
		return
	default:
	}
	select {
	case d.queue <- e:
	default:
		observability.EventsDropped.WithLabelValues("queue_full").Inc()
	}
}

// Pending reports how many events are waiting for the worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting events, drains what is queued and waits for the
// worker to exit or ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() { close(d.done) })
	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.queue:
			d.publish(e)
		case <-d.done:
			for {
				select {
				case e := <-d.queue:
					d.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	ctx, span := observability.GetTraceLayer().TracePublish(ctx, transportName(d.pub), string(e.Type))
	defer span.End()
	if err := d.pub.Publish(ctx, e); err != nil {
		observability.RecordErrorInContext(ctx, err)
		observability.EventsDropped.WithLabelValues("publish_failed").Inc()
		observability.LogAsyncOperationError(ctx, "publish_event", err, map[string]interface{}{
			"event_type": e.Type,
			"user_id":    e.UserID,
		})
	}
}

func transportName(p Publisher) string {
	switch p.(type) {
	case *AMQPPublisher:
		return "rabbitmq"
	case *ChannelPublisher:
		return "channel"
	default:
		return "custom"
	}
}
