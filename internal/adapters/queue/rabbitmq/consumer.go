package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

// Consumer implements ports.CompletionConsumer using RabbitMQ.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *slog.Logger
}

// NewConsumer dials RabbitMQ, declares topology, and returns a Consumer.
func NewConsumer(amqpURL string, prefetch int, log *slog.Logger) (*Consumer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{conn: conn, channel: ch, log: log}, nil
}

// Consume passes each completion on the sms.sent queue to handler. A
// delivery is acked when handler returns nil and requeued otherwise.
// Malformed bodies are dropped. It blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler func(ctx context.Context, comp domain.Completion) error) error {
	deliveries, err := c.channel.Consume(
		completionQueue,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			comp, err := decodeCompletion(d.Body)
			if err != nil {
				c.log.Error("drop completion", "err", err)
				d.Nack(false, false)
				continue
			}

			if err := handler(ctx, comp); err != nil {
				c.log.Error("handle completion", "token", comp.Token, "err", err)
				d.Nack(false, true)
				continue
			}

			d.Ack(false)
		}
	}
}

func (c *Consumer) Close() {
	c.channel.Close()
	c.conn.Close()
}

var _ ports.CompletionConsumer = (*Consumer)(nil)
