// Package eventbus carries CRM events, rule executions, notification and email requests and
// enrollment results between the API, the worker and the scheduler.
package eventbus

import (
	"context"

	"github.com/dukex/dealflow/pkg/events"
)

// Event is anything published on the bus. Every event shares one topic; the type travels in
// the message metadata and selects the handler.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events. The key is stored with the message; dealflow publishes
// with the tenant ID.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes consumed events to handlers registered per event type. Events
// without a handler are acknowledged and dropped.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives the decoded event as a pointer to its concrete type. A returned
// error nacks the message so the transport redelivers it.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
