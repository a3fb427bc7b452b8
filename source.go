package bind

import (
	"context"
	"sync/atomic"
)

// EventHandler is called by a widget when one of its events fires.
type EventHandler func(ctx context.Context) error

// Widget is the minimal capability the engine needs from a toolkit object
// that reports user input: subscribing a handler to a named event. The
// toolkit must call handlers on the UI loop, passing a context obtained
// from Dispatcher.LoopContext or from a dispatched task.
type Widget interface {
	Bind(event string, handler EventHandler)
}

// Getter reads the current widget-facing value from a widget.
type Getter func(ctx context.Context) (any, error)

// ReadFunc adapts a typed accessor to a Getter.
func ReadFunc[W any](fn func() W) Getter {
	return func(_ context.Context) (any, error) {
		return fn(), nil
	}
}

// Source pulls a value out of a widget when one of its events fires and
// pushes it into a value.
type Source[T any] struct {
	widget    Widget
	event     string
	get       Getter
	transform atomic.Pointer[Transformer[T]]
}

type sourceKey struct {
	widget Widget
	event  string
}

// Widget returns the widget the source reads from.
func (s *Source[T]) Widget() Widget {
	return s.widget
}

// Event returns the widget event the source listens to.
func (s *Source[T]) Event() string {
	return s.event
}

// Transform converts widget values with tr.FromWidget before assignment.
func (s *Source[T]) Transform(tr Transformer[T]) *Source[T] {
	s.transform.Store(&tr)
	return s
}

func (s *Source[T]) read(ctx context.Context) (T, error) {
	raw, err := s.get(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if tr := s.transform.Load(); tr != nil && *tr != nil {
		return (*tr).FromWidget(raw)
	}
	return assertTo[T](raw)
}
