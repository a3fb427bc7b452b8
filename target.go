package bind

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Sink receives the widget-facing value of a target.
type Sink func(ctx context.Context, v any) error

// Unbind removes a registration. Calling it more than once is harmless.
type Unbind func()

// Arg is one named argument of a call binding.
type Arg struct {
	Name  string
	Value any
}

// Args is the ordered argument list handed to a call binding.
type Args []Arg

// Get returns the value of the named argument.
func (a Args) Get(name string) (any, bool) {
	for _, arg := range a {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

// CallWith returns a Sink that invokes fn with a fixed argument list. The
// first argument whose value is an Observable is the bound slot: on every
// update it is replaced by the live value while the other arguments stay
// fixed. Later Observable arguments are passed as-is; the first one found
// wins as a deliberate tie-break. With no Observable argument, fn receives
// the live value as a single unnamed argument.
func CallWith(fn func(ctx context.Context, args Args) error, fixed ...Arg) Sink {
	key := -1
	for i, arg := range fixed {
		if _, ok := arg.Value.(Observable); ok {
			key = i
			break
		}
	}
	return func(ctx context.Context, v any) error {
		if key < 0 {
			return fn(ctx, Args{{Value: v}})
		}
		args := make(Args, len(fixed))
		copy(args, fixed)
		args[key].Value = v
		return fn(ctx, args)
	}
}

// Setter adapts a typed setter to a Sink. The widget-facing value must be
// a W (or nil, which yields the zero W).
func Setter[W any](fn func(W)) Sink {
	return func(_ context.Context, v any) error {
		w, err := assertTo[W](v)
		if err != nil {
			return err
		}
		fn(w)
		return nil
	}
}

// SetterE adapts a fallible, context-aware typed setter to a Sink.
func SetterE[W any](fn func(context.Context, W) error) Sink {
	return func(ctx context.Context, v any) error {
		w, err := assertTo[W](v)
		if err != nil {
			return err
		}
		return fn(ctx, w)
	}
}

// Target keeps one widget property or callable in sync with a value.
type Target[T any] struct {
	id        uint64
	owner     any
	sink      Sink
	transform atomic.Pointer[Transformer[T]]
	remove    func()
}

// Owner returns the object the target updates. Propagations originating
// from this object skip the target.
func (t *Target[T]) Owner() any {
	return t.owner
}

// Transform converts values with tr before they reach the sink. It may be
// replaced at any time; the next propagation uses the new transformer.
func (t *Target[T]) Transform(tr Transformer[T]) *Target[T] {
	t.transform.Store(&tr)
	return t
}

// Remove unregisters the target.
func (t *Target[T]) Remove() {
	if t.remove != nil {
		t.remove()
	}
}

func (t *Target[T]) apply(ctx context.Context, v T) error {
	var out any = v
	if tr := t.transform.Load(); tr != nil && *tr != nil {
		w, err := (*tr).ToWidget(v)
		if err != nil {
			return fmt.Errorf("transform for %T: %w", t.owner, err)
		}
		out = w
	}
	return t.sink(ctx, out)
}
