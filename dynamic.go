package bind

import (
	"context"
	"fmt"
)

// deriver is the recompute strategy shared by Dynamic and DynamicArray. It
// listens to a fixed set of observables and assigns the result of fn to
// its target whenever one of them changes.
type deriver[T any] struct {
	target *Value[T]
	fn     func(ctx context.Context, payload any) (T, error)
	force  bool
	unbind []Unbind
}

func (d *deriver[T]) recompute(ctx context.Context, payload any) error {
	x, err := d.fn(ctx, payload)
	if err != nil {
		return err
	}
	return d.target.set(ctx, x, nil, d.force)
}

func (d *deriver[T]) listen(owner any, deps []Observable) {
	for _, o := range deps {
		d.unbind = append(d.unbind, o.Subscribe(owner, func(ctx context.Context, v any) error {
			return d.recompute(ctx, v)
		}))
	}
}

func (d *deriver[T]) detach() {
	for _, u := range d.unbind {
		u()
	}
	d.unbind = nil
}

// expandDeps flattens dependencies into observables. A Group contributes
// its own observables, one level deep. Duplicates are dropped so that one
// change triggers exactly one recomputation per path.
func expandDeps(op string, deps []any) ([]Observable, error) {
	seen := make(map[string]bool)
	var out []Observable
	add := func(o Observable) {
		if seen[o.ID()] {
			return
		}
		seen[o.ID()] = true
		out = append(out, o)
	}

	for _, dep := range deps {
		switch d := dep.(type) {
		case Group:
			for _, o := range d.Observables() {
				if o != nil {
					add(o)
				}
			}
		case Observable:
			add(d)
		default:
			return nil, &ConfigError{Op: op, Err: fmt.Errorf("%w: %T", ErrNotObservable, dep)}
		}
	}
	return out, nil
}

// Dynamic is a read-only value recomputed from its dependencies. Set,
// SetFrom, AddSource and Follow return ErrReadOnly; the value only changes
// through Recompute and Push.
type Dynamic[T any] struct {
	*Value[T]
	d *deriver[T]
}

// Derive creates a value holding fn's result, recomputed whenever any of
// deps changes. A dependency is an Observable, such as a *Value, or a
// Group whose observables all count as dependencies.
//
// fn is first called during Derive; its error is returned. Later errors
// propagate to the setter of the dependency that triggered the
// recomputation. Persistence options are ignored.
func Derive[T any](b *Binder, fn func(ctx context.Context) (T, error), deps []any, opts ...ValueOption) (*Dynamic[T], error) {
	return newDynamic(b, func(ctx context.Context, _ any) (T, error) {
		return fn(ctx)
	}, false, deps, opts, "bind.Derive")
}

// DeriveEvent is like Derive, but fn receives the widget-facing value of
// the dependency that changed, or the payload given to Push. Every
// recomputation propagates, even when the result is unchanged. The initial
// call receives a nil payload.
func DeriveEvent[T any](b *Binder, fn func(ctx context.Context, payload any) (T, error), deps []any, opts ...ValueOption) (*Dynamic[T], error) {
	return newDynamic(b, fn, true, deps, opts, "bind.DeriveEvent")
}

func newDynamic[T any](b *Binder, fn func(context.Context, any) (T, error), force bool, deps []any, opts []ValueOption, op string) (*Dynamic[T], error) {
	obs, err := expandDeps(op, deps)
	if err != nil {
		return nil, err
	}

	initial, err := fn(context.Background(), nil)
	if err != nil {
		return nil, err
	}

	cfg := newValueConfig(opts)
	cfg.serialize = false
	v, err := newValue(b, initial, cfg, op)
	if err != nil {
		return nil, err
	}
	v.readOnly = true

	dyn := &Dynamic[T]{
		Value: v,
		d:     &deriver[T]{target: v, fn: fn, force: force},
	}
	dyn.d.listen(dyn, obs)
	return dyn, nil
}

// Recompute calls the derive function and assigns its result.
func (d *Dynamic[T]) Recompute(ctx context.Context) error {
	return d.d.recompute(ctx, nil)
}

// Push recomputes with payload and always propagates the result.
func (d *Dynamic[T]) Push(ctx context.Context, payload any) error {
	x, err := d.d.fn(ctx, payload)
	if err != nil {
		return err
	}
	return d.set(ctx, x, nil, true)
}

// Detach stops listening to the dependencies. The value keeps its last
// result.
func (d *Dynamic[T]) Detach() {
	d.d.detach()
}

// DynamicArray is a read-only array recomputed from its dependencies, with
// the same selection index and item as Array.
type DynamicArray[E any] struct {
	*Array[E]
	d *deriver[[]E]
}

// DeriveArray creates an array holding fn's result, recomputed whenever
// any of deps changes. After each change the index is reconciled like an
// Array's; WithResetIndex selects a fixed index instead.
func DeriveArray[E any](b *Binder, fn func(ctx context.Context) ([]E, error), deps []any, opts ...ValueOption) (*DynamicArray[E], error) {
	const op = "bind.DeriveArray"
	obs, err := expandDeps(op, deps)
	if err != nil {
		return nil, err
	}

	initial, err := fn(context.Background())
	if err != nil {
		return nil, err
	}

	cfg := newValueConfig(opts)
	cfg.serialize = false
	arr, err := newArray(b, initial, cfg, op)
	if err != nil {
		return nil, err
	}
	arr.readOnly = true

	da := &DynamicArray[E]{
		Array: arr,
		d: &deriver[[]E]{
			target: arr.Value,
			fn: func(ctx context.Context, _ any) ([]E, error) {
				return fn(ctx)
			},
		},
	}
	da.d.listen(da, obs)
	return da, nil
}

// Recompute calls the derive function and assigns its result.
func (d *DynamicArray[E]) Recompute(ctx context.Context) error {
	return d.d.recompute(ctx, nil)
}

// Detach stops listening to the dependencies.
func (d *DynamicArray[E]) Detach() {
	d.d.detach()
}
