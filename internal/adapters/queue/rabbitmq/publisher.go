package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

// Publisher implements ports.OutcomePublisher using RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewPublisher dials RabbitMQ and declares the topology.
func NewPublisher(amqpURL string) (*Publisher, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, channel: ch}, nil
}

// Publish announces a settled send.
func (p *Publisher) Publish(ctx context.Context, o domain.SendOutcome) error {
	body, err := encodeOutcome(o)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	return p.channel.PublishWithContext(
		ctx,
		exchangeName,
		outcomeRoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    o.Token,
			Timestamp:    o.SettledAt,
			Body:         body,
		},
	)
}

func (p *Publisher) Close() {
	p.channel.Close()
	p.conn.Close()
}

var _ ports.OutcomePublisher = (*Publisher)(nil)
