package bind

import (
	"context"
	"sync"
)

// Handler receives the payload of a fired Event. Returning an error stops
// delivery to the remaining handlers of that Fire call.
type Handler[T any] func(ctx context.Context, v T) error

// Subscription identifies a handler registered on an Event.
type Subscription uint64

// EventOption configures an Event.
type EventOption func(*eventConfig)

type eventConfig struct {
	once bool
}

// FireOnce makes the event drop all of its handlers after the first Fire
// that reaches every handler without error.
func FireOnce() EventOption {
	return func(c *eventConfig) {
		c.once = true
	}
}

// Event is a multi-subscriber broadcaster.
//
// Handlers run synchronously on the goroutine calling Fire, in the order
// they subscribed. Fire works on a snapshot of the handler list: a handler
// subscribed while a Fire is in progress is first invoked by the next Fire,
// and a handler unsubscribed mid-Fire still receives the current payload.
type Event[T any] struct {
	name string
	once bool

	mu       sync.Mutex
	next     Subscription
	handlers []eventHandler[T]
}

type eventHandler[T any] struct {
	id Subscription
	fn Handler[T]
}

// NewEvent creates an Event identified by name for debugging.
func NewEvent[T any](name string, opts ...EventOption) *Event[T] {
	cfg := &eventConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if name == "" {
		name = "event"
	}
	return &Event[T]{name: name, once: cfg.once}
}

// Name returns the debug name of the event.
func (e *Event[T]) Name() string {
	return e.name
}

// Subscribe registers fn and returns a handle for Unsubscribe.
func (e *Event[T]) Subscribe(fn Handler[T]) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.handlers = append(e.handlers, eventHandler[T]{id: e.next, fn: fn})
	return e.next
}

// Unsubscribe removes a handler. It reports whether the handler was found.
func (e *Event[T]) Unsubscribe(s Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == s {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscribed handlers.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

// Fire invokes every handler with v. The first error aborts delivery and is
// returned unchanged.
func (e *Event[T]) Fire(ctx context.Context, v T) error {
	e.mu.Lock()
	handlers := e.handlers
	e.mu.Unlock()

	for _, h := range handlers {
		if err := h.fn(ctx, v); err != nil {
			return err
		}
	}

	if e.once && len(handlers) > 0 {
		e.mu.Lock()
		e.handlers = nil
		e.mu.Unlock()
	}
	return nil
}

// Clear removes all handlers.
func (e *Event[T]) Clear() {
	e.mu.Lock()
	e.handlers = nil
	e.mu.Unlock()
}
