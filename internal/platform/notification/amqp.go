package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultQueue is the durable queue appointment events are published to.
const DefaultQueue = "appointment_created"

// ErrNotConfirmed is returned when the broker nacks a published message.
var ErrNotConfirmed = errors.New("message not confirmed by broker")

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

func declareQueue(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

// confirmation is the broker's answer for one published message.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// confirmChannel is the part of *amqp.Channel the publisher uses.
type confirmChannel interface {
	publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

type amqpChannel struct {
	*amqp.Channel
}

func (c amqpChannel) publish(ctx context.Context, queue string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, msg)
	if err != nil || dc == nil {
		return nil, err
	}
	return dc, nil
}

// AMQPPublisher publishes persistent JSON messages to a durable queue with
// publisher confirms enabled. Each publish waits for the confirm tagged
// with its own delivery tag, so a confirm that arrives after its publisher
// gave up is never read by a later publish.
type AMQPPublisher struct {
	ch    confirmChannel
	queue string
	mu    sync.Mutex
}

func NewAMQPPublisher(conn *amqp.Connection, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &AMQPPublisher{ch: amqpChannel{ch}, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, evt AppointmentCreated) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Type:         "AppointmentCreated",
		MessageId:    evt.AppointmentID.String(),
		Timestamp:    evt.CreatedAt,
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	// The channel is not safe for concurrent publishes.
	p.mu.Lock()
	confirm, err := p.ch.publish(ctx, p.queue, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	if !acked {
		return fmt.Errorf("publish to %s: %w", p.queue, ErrNotConfirmed)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

// ---------------------------------------------------------------------------
// Consumer
// ---------------------------------------------------------------------------

// HandlerFunc processes one decoded event. Returning an error requeues the
// delivery.
type HandlerFunc func(ctx context.Context, evt AppointmentCreated) error

// LogHandler logs every event it receives.
func LogHandler(logger zerolog.Logger) HandlerFunc {
	return func(_ context.Context, evt AppointmentCreated) error {
		evt.logFields(logger.Info()).Time("created_at", evt.CreatedAt).Msg("appointment created event received")
		return nil
	}
}

// Consumer reads appointment events from the queue and hands each to a
// HandlerFunc.
type Consumer struct {
	ch       *amqp.Channel
	queue    string
	prefetch int
	handle   HandlerFunc
	logger   zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, prefetch int, handle HandlerFunc, logger zerolog.Logger) (*Consumer, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareQueue(ch, queue); err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{ch: ch, queue: queue, prefetch: prefetch, handle: handle, logger: logger}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.Info().Str("queue", c.queue).Int("prefetch", c.prefetch).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			return c.ch.Close()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.process(ctx, d)
		}
	}
}

// process acks handled deliveries, drops undecodable ones and requeues on
// handler error.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	var evt AppointmentCreated
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		c.logger.Error().Err(err).Str("message_id", d.MessageId).Msg("discarding malformed event")
		_ = d.Nack(false, false)
		return
	}
	if err := c.handle(ctx, evt); err != nil {
		evt.logFields(c.logger.Warn()).Err(err).Msg("event handler failed, requeueing")
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error().Err(err).Msg("ack delivery")
	}
}
