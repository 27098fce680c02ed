package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"hospital_locker/server/common/infra/mq"
)

const EventsExchange = "locker.events"

// EventPublisher emits activity events after successful actions. Publishing
// is best effort and never fails the action.
type EventPublisher interface {
	Publish(ctx context.Context, role, key string, payload any) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }

type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := mq.DeclareTopic(conn, EventsExchange)
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

// Publish routes under "<role>.<key>", e.g. "doctor.document.shared".
func (p *AMQPPublisher) Publish(ctx context.Context, role, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	routingKey := key
	if strings.TrimSpace(role) != "" {
		routingKey = role + "." + key
	}
	return p.channel.PublishWithContext(ctx, EventsExchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   time.Now(),
	})
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
