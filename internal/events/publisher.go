// Package events fans lifecycle events out to downstream consumers over
// RabbitMQ. The ledger row is always the source of truth; publishing is
// best-effort on top of it.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/streadway/amqp"

	"github.com/lumenhq/courier-backend/internal/model"
)

const EventQueue = "message_events"

type Publisher interface {
	Publish(ctx context.Context, event *model.MessageEvent) error
}

// AMQPPublisher pushes events onto a durable RabbitMQ queue.
type AMQPPublisher struct {
	ch *amqp.Channel
}

func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(EventQueue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &AMQPPublisher{ch: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event *model.MessageEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.ch.Publish("", EventQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() error { return p.ch.Close() }

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *model.MessageEvent) error { return nil }

// InMemoryPublisher collects published events, for tests and local runs.
type InMemoryPublisher struct {
	mu     sync.Mutex
	Events []*model.MessageEvent
}

func (p *InMemoryPublisher) Publish(ctx context.Context, event *model.MessageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
	return nil
}

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = NopPublisher{}
	_ Publisher = (*InMemoryPublisher)(nil)
)
