package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chirp/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange events are published to.
const DefaultExchange = "chirp.events"

// amqpChannel is the subset of *amqp.Channel the transport uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// DialAMQP opens a connection and channel and declares exchange as a durable
// topic exchange.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declareExchange(ch amqpChannel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// AMQPPublisher publishes events to a topic exchange with the event type as
// routing key.
type AMQPPublisher struct {
	ch       amqpChannel
	closer   func() error
	exchange string
}

// NewAMQPPublisher dials url and returns a publisher bound to exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, ch, err := DialAMQP(url, exchange)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{
		ch:       ch,
		exchange: exchange,
		closer: func() error {
			_ = ch.Close()
			return conn.Close()
		},
	}, nil
}

func newAMQPPublisherWithChannel(ch amqpChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, closer: ch.Close}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	observability.EventsPublished.WithLabelValues(string(e.Type), "amqp").Inc()
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// AMQPConsumer reads every event on the exchange through one durable queue.
type AMQPConsumer struct {
	ch       amqpChannel
	closer   func() error
	exchange string
	queue    string
}

// NewAMQPConsumer dials url and prepares queue bound to exchange with "#".
func NewAMQPConsumer(url, exchange, queue string) (*AMQPConsumer, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, ch, err := DialAMQP(url, exchange)
	if err != nil {
		return nil, err
	}
	c := &AMQPConsumer{
		ch:       ch,
		exchange: exchange,
		queue:    queue,
		closer: func() error {
			_ = ch.Close()
			return conn.Close()
		},
	}
	return c, nil
}

// Run consumes until ctx is done or the delivery channel closes. Handler
// errors are logged and the delivery is dropped.
func (c *AMQPConsumer) Run(ctx context.Context, handle func(context.Context, Event) error) error {
	if _, err := c.ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	if err := c.ch.QueueBind(c.queue, "#", c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", c.queue, err)
	}
	msgs, err := c.ch.Consume(c.queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal(msg.Body, &e); err != nil {
				observability.EventsDropped.WithLabelValues("decode").Inc()
				observability.LogAsyncOperationError(ctx, "amqp_decode", err, map[string]interface{}{"routing_key": msg.RoutingKey})
				continue
			}
			if e.OccurredAt.IsZero() {
				e.OccurredAt = time.Now().UTC()
			}
			if err := handle(ctx, e); err != nil {
				observability.LogAsyncOperationError(ctx, "amqp_forward", err, map[string]interface{}{"event_type": e.Type})
			}
		}
	}
}

func (c *AMQPConsumer) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func newAMQPConsumerWithChannel(ch amqpChannel, exchange, queue string) *AMQPConsumer {
	return &AMQPConsumer{ch: ch, exchange: exchange, queue: queue, closer: ch.Close}
}
