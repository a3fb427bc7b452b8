package bind

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
)

// Array is a value over a slice paired with a selection. Index holds the
// selected position and Item the element at that position.
//
// After every change of the slice the index is reconciled, once, after the
// array's own targets were notified: with preservation (the default) the
// previously selected element is searched in the new slice and the index
// follows it; when it is gone the index is clamped into range. Without
// preservation the index is reset to a fixed position.
type Array[E any] struct {
	*Value[[]E]

	// Index is the selected position. It is persisted with the array under
	// the name "<name>-sel".
	Index *Value[int]

	// Item is the selected element, or the zero E when nothing is in range.
	Item *Dynamic[E]

	preserve   bool
	resetIndex int
	itemEqual  func(a, b E) bool

	// reconciled is the array revision the index was last reconciled for.
	reconciled atomic.Uint64
}

// NewArray creates an array holding initial with the first element
// selected.
func NewArray[E any](b *Binder, initial []E, opts ...ValueOption) (*Array[E], error) {
	return newArray(b, initial, newValueConfig(opts), "bind.NewArray")
}

func newArray[E any](b *Binder, initial []E, cfg *valueConfig, op string) (*Array[E], error) {
	v, err := newValue(b, initial, cfg, op)
	if err != nil {
		return nil, err
	}

	idxOpts := []ValueOption{}
	if cfg.name != "" {
		idxOpts = append(idxOpts, WithName(cfg.name+"-sel"))
	}
	if cfg.serialize {
		idxOpts = append(idxOpts, WithSerialize())
	}
	index, err := New(b, 0, idxOpts...)
	if err != nil {
		return nil, err
	}

	a := &Array[E]{
		Value:      v,
		Index:      index,
		preserve:   cfg.preserve,
		resetIndex: cfg.resetIndex,
		itemEqual:  func(x, y E) bool { return reflect.DeepEqual(x, y) },
	}

	// A restored index may point past a restored or default array.
	index.mu.Lock()
	index.value = clampIndex(index.value, len(v.value))
	index.mu.Unlock()

	a.reconciled.Store(v.rev())

	a.Item, err = Derive(b, func(context.Context) (E, error) {
		return a.at(a.Index.Get()), nil
	}, []any{index})
	if err != nil {
		return nil, err
	}

	v.AfterChanged.Subscribe(a.reconcile)
	return a, nil
}

func (a *Array[E]) at(i int) E {
	items := a.Get()
	if i < 0 || i >= len(items) {
		var zero E
		return zero
	}
	return items[i]
}

// reconcile runs after every propagation of the array. A propagation
// without a new revision, such as Touch, re-applies the index unchanged.
func (a *Array[E]) reconcile(ctx context.Context, items []E) error {
	rev := a.rev()
	if a.reconciled.Swap(rev) == rev {
		return a.Index.Touch(ctx)
	}

	cur := a.Index.Get()
	next := a.resetIndex

	if a.preserve {
		next = cur
		prev := a.Previous()
		if cur >= 0 && cur < len(prev) {
			if i := a.indexOf(items, prev[cur]); i >= 0 {
				next = i
			}
		}
	}
	next = clampIndex(next, len(items))

	if next != cur {
		return a.Index.assign(ctx, next)
	}
	return a.Index.Touch(ctx)
}

func (a *Array[E]) indexOf(items []E, item E) int {
	for i, x := range items {
		if a.itemEqual(x, item) {
			return i
		}
	}
	return -1
}

// clampIndex bounds i to the valid positions of a slice of length n, or 0
// for an empty slice.
func clampIndex(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Selected returns the selected element, and false when the array is empty.
func (a *Array[E]) Selected() (E, bool) {
	items := a.Get()
	i := a.Index.Get()
	if i < 0 || i >= len(items) {
		var zero E
		return zero, false
	}
	return items[i], true
}

// Select moves the index to the first element equal to item.
func (a *Array[E]) Select(ctx context.Context, item E) error {
	i := a.indexOf(a.Get(), item)
	if i < 0 {
		return fmt.Errorf("select in %s: %w", a.label(), ErrNotFound)
	}
	return a.Index.Set(ctx, i)
}

// Len returns the length of the current slice.
func (a *Array[E]) Len() int {
	return len(a.Get())
}

// Observables returns the array and its index, so that a derived value
// depending on the array also follows the selection.
func (a *Array[E]) Observables() []Observable {
	return []Observable{a.Value, a.Index}
}

var _ Group = (*Array[int])(nil)
