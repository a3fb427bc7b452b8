package bind

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

var (
	// ErrNoName is returned when a value requests persistence without a name.
	ErrNoName = errors.New("name is required when serialize is enabled")

	// ErrNoStore is returned when a value requests persistence but the binder
	// has no store configured.
	ErrNoStore = errors.New("binder has no store")

	// ErrReadOnly is returned when a derived value is assigned or bound to a
	// widget source from outside its recompute path.
	ErrReadOnly = errors.New("value is read-only")

	// ErrTypeMismatch is returned when a widget-facing value cannot be
	// converted to the type a sink or value expects.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrAttrNotFound is returned when a widget has no settable or readable
	// attribute of the requested name.
	ErrAttrNotFound = errors.New("attribute not found")

	// ErrDispatcherStopped is returned when a blocking dispatch cannot complete
	// because the UI loop has exited.
	ErrDispatcherStopped = errors.New("dispatcher stopped")

	// ErrQueueFull is recorded when a fire-and-forget dispatch is dropped.
	ErrQueueFull = errors.New("dispatch queue full")

	// ErrNotFound is returned when selecting an item absent from an array.
	ErrNotFound = errors.New("item not found")

	// ErrNotObservable is returned when a derived value is given a dependency
	// that is neither an Observable nor a Group.
	ErrNotObservable = errors.New("dependency is not observable")

	// ErrNoBinder is returned when a value is constructed without a binder.
	ErrNoBinder = errors.New("binder is required")
)

// ConfigError reports an invalid construction of a binding component.
type ConfigError struct {
	// Op is the constructor that failed (e.g., "bind.New").
	Op string
	// Name is the value name involved, if any.
	Name string
	// Err is the underlying error.
	Err error
}

func (e *ConfigError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// PanicError represents a panic recovered on the UI loop and handed back to
// the goroutine that was blocked on the dispatch.
type PanicError struct {
	// Op is the operation that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace is the UI loop's stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic was recovered.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(op string, value any) *PanicError {
	return &PanicError{
		Op:         op,
		Value:      value,
		StackTrace: string(debug.Stack()),
		Timestamp:  time.Now(),
	}
}
