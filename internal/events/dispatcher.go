package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/observability"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	telemetry observability.Telemetry
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher(telemetry observability.Telemetry) Dispatcher {
	if telemetry == nil {
		telemetry = observability.Nop()
	}
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
		telemetry: telemetry,
	}
}

// Publish synchronously invokes handlers for the given event. Handler failures are logged
// and never reach the publisher.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			d.telemetry.Log("event handler failed", observability.CategoryNotify, observability.SeverityError, err,
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID))
		}
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
