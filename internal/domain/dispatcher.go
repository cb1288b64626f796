package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"collabforge.io/forge/internal/pkg/logger"
)

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher routes domain events to registered handlers.
// Handlers run sequentially in registration order; a failing handler
// is logged and the remaining handlers still execute (best-effort
// delivery). The first error is returned to the emitter.
//
// Events here drive the forward chain: proposal finalization triggers
// contract generation, and notification fan-out hangs off the same
// hooks, so delivery order must stay deterministic per event.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register appends a handler for one event type.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// RegisterAll appends the same handler for several event types, for
// collaborators that react uniformly to a family of events (e.g. one
// notification handler for both PROPOSAL_SUBMITTED and
// PROPOSAL_VERSIONED).
func (d *EventDispatcher) RegisterAll(handler EventHandler, types ...EventType) {
	for _, t := range types {
		d.Register(t, handler)
	}
}

// Dispatch delivers an event to every handler registered for its type.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("event has no subscribers",
			zap.String("event_type", string(event.EventType)),
			zap.String("aggregate_type", event.AggregateType),
			zap.String("aggregate_id", event.AggregateID),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.String("aggregate_type", event.AggregateType),
				zap.String("aggregate_id", event.AggregateID),
				zap.String("actor", event.CreatedBy),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}

	return firstErr
}
