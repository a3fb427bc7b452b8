package bind

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/zoobzio/capitan"
)

// Value is an observable cell. Assigning a different value notifies every
// registered target on the UI loop, in registration order.
//
// Get is safe from any goroutine. Set may be called from any goroutine; it
// returns once every target has observed the new value. Replace slices and
// maps wholesale through Set; in-place edits are invisible to targets.
//
// The value is stored on the setting goroutine and read again on the UI
// loop when targets are notified. Concurrent Sets therefore coalesce: each
// propagation delivers the latest value, and an intermediate value may
// never reach the targets.
type Value[T any] struct {
	binder     *Binder
	id         string
	name       string
	serialize  bool
	serializer Serializer[T]
	equal      func(a, b T) bool
	readOnly   bool

	mu       sync.RWMutex
	value    T
	previous T
	revision uint64

	tmu        sync.Mutex
	nextTarget uint64
	targets    []*Target[T]
	sources    map[sourceKey]*Source[T]

	// ValueSet fires on every assignment attempt, before change detection,
	// on the assigning goroutine.
	ValueSet *Event[T]

	// ValueChanged fires on the UI loop before targets are updated.
	ValueChanged *Event[T]

	// AfterChanged fires on the UI loop after all targets were updated.
	AfterChanged *Event[T]
}

// New creates a value holding initial.
//
// With WithSerialize the value is keyed by its name in the binder's store:
// a persisted value replaces initial and the value is registered for the
// next save. Persistence without a name fails with a *ConfigError wrapping
// ErrNoName.
func New[T any](b *Binder, initial T, opts ...ValueOption) (*Value[T], error) {
	return newValue(b, initial, newValueConfig(opts), "bind.New")
}

// MustNew is like New but panics on configuration errors.
func MustNew[T any](b *Binder, initial T, opts ...ValueOption) *Value[T] {
	v, err := New(b, initial, opts...)
	if err != nil {
		panic(err)
	}
	return v
}

func newValue[T any](b *Binder, initial T, cfg *valueConfig, op string) (*Value[T], error) {
	if b == nil {
		return nil, &ConfigError{Op: op, Name: cfg.name, Err: ErrNoBinder}
	}

	v := &Value[T]{
		binder:       b,
		id:           newID(),
		name:         cfg.name,
		serialize:    cfg.serialize,
		value:        initial,
		ValueSet:     NewEvent[T]("value_set"),
		ValueChanged: NewEvent[T]("value_changed"),
		AfterChanged: NewEvent[T]("after_changed"),
	}

	v.equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	if cfg.equal != nil {
		eq, ok := cfg.equal.(func(a, b T) bool)
		if !ok {
			return nil, &ConfigError{Op: op, Name: cfg.name, Err: fmt.Errorf("%w: equal func %T for %T", ErrTypeMismatch, cfg.equal, initial)}
		}
		v.equal = eq
	}

	v.serializer = JSONSerializer[T]{}
	if cfg.serializer != nil {
		s, ok := cfg.serializer.(Serializer[T])
		if !ok {
			return nil, &ConfigError{Op: op, Name: cfg.name, Err: fmt.Errorf("%w: serializer %T for %T", ErrTypeMismatch, cfg.serializer, initial)}
		}
		v.serializer = s
	}

	if v.serialize {
		if v.name == "" {
			return nil, &ConfigError{Op: op, Err: ErrNoName}
		}
		store := b.Store()
		if store == nil {
			return nil, &ConfigError{Op: op, Name: v.name, Err: ErrNoStore}
		}
		v.restoreFrom(store)
		store.Register(v.name, v)
	}

	return v, nil
}

func (v *Value[T]) restoreFrom(store Store) {
	raw, ok := store.Get(v.name)
	if !ok {
		return
	}
	ctx := context.Background()
	x, err := v.serializer.Deserialize(raw)
	if err != nil {
		capitan.Emit(ctx, ValueRestoreFailed,
			KeyName.Field(v.name),
			KeyError.Field(err.Error()),
		)
		return
	}
	v.value = x
	capitan.Emit(ctx, ValueRestored,
		KeyName.Field(v.name),
	)
}

// ID returns the generated identity of the value.
func (v *Value[T]) ID() string {
	return v.id
}

// Name returns the configured name, or "" when unnamed.
func (v *Value[T]) Name() string {
	return v.name
}

func (v *Value[T]) label() string {
	if v.name != "" {
		return v.name
	}
	return v.id
}

// Binder returns the binder the value belongs to.
func (v *Value[T]) Binder() *Binder {
	return v.binder
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Previous returns the value replaced by the last change.
func (v *Value[T]) Previous() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.previous
}

func (v *Value[T]) rev() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.revision
}

// String formats the current value.
func (v *Value[T]) String() string {
	return fmt.Sprint(v.Get())
}

// Set assigns x. ValueSet always fires; when x differs from the current
// value the change propagates to every target before Set returns. Targets
// see the value current at propagation time, which a concurrent Set may
// already have replaced. Errors from event handlers and targets are
// returned unchanged.
func (v *Value[T]) Set(ctx context.Context, x T) error {
	return v.SetFrom(ctx, x, nil)
}

// SetFrom assigns x on behalf of source. Targets owned by source are
// skipped during the resulting propagation.
func (v *Value[T]) SetFrom(ctx context.Context, x T, source any) error {
	if v.readOnly {
		return fmt.Errorf("set %s: %w", v.label(), ErrReadOnly)
	}
	return v.set(ctx, x, source, false)
}

// Update applies fn to the current value and assigns the result.
func (v *Value[T]) Update(ctx context.Context, fn func(T) T) error {
	return v.Set(ctx, fn(v.Get()))
}

// assign is the write path for derived values and store reloads.
func (v *Value[T]) assign(ctx context.Context, x T) error {
	return v.set(ctx, x, nil, false)
}

func (v *Value[T]) set(ctx context.Context, x T, source any, force bool) error {
	capitan.Emit(ctx, ValueAssigned,
		KeyName.Field(v.label()),
	)
	if err := v.ValueSet.Fire(ctx, x); err != nil {
		return err
	}

	v.mu.Lock()
	if !force && v.equal(v.value, x) {
		v.mu.Unlock()
		return nil
	}
	v.previous = v.value
	v.value = x
	v.revision++
	v.mu.Unlock()

	capitan.Emit(ctx, ValueUpdated,
		KeyName.Field(v.label()),
		KeyID.Field(v.id),
	)
	if v.serialize {
		if d, ok := v.binder.Store().(dirtyMarker); ok {
			d.MarkDirty()
		}
	}

	return v.UpdateTarget(ctx, source)
}

// UpdateTarget notifies targets of the current value on the UI loop:
// ValueChanged fires, every target not owned by source is invoked in
// registration order, then AfterChanged fires. The first error aborts the
// remaining notifications and is returned to the caller, across goroutines
// when dispatched.
func (v *Value[T]) UpdateTarget(ctx context.Context, source any) error {
	return v.binder.Dispatcher().Invoke(ctx, func(ctx context.Context) error {
		return v.propagate(ctx, source)
	})
}

// Touch re-runs UpdateTarget without changing the value, refreshing newly
// bound widgets. ValueSet does not fire.
func (v *Value[T]) Touch(ctx context.Context) error {
	return v.UpdateTarget(ctx, nil)
}

func (v *Value[T]) propagate(ctx context.Context, source any) error {
	start := v.binder.clock.Now()
	metrics := v.binder.metricsProvider()
	cur := v.Get()

	if err := v.ValueChanged.Fire(ctx, cur); err != nil {
		return err
	}

	v.tmu.Lock()
	targets := v.targets
	v.tmu.Unlock()

	notified := 0
	for _, t := range targets {
		if source != nil && sameOwner(t.owner, source) {
			continue
		}
		if err := t.apply(ctx, cur); err != nil {
			metrics.OnTargetFailure(v.label())
			capitan.Emit(ctx, TargetFailed,
				KeyName.Field(v.label()),
				KeyError.Field(err.Error()),
			)
			return err
		}
		notified++
	}

	if err := v.AfterChanged.Fire(ctx, cur); err != nil {
		return err
	}
	metrics.OnPropagate(v.label(), notified, v.binder.clock.Since(start))
	capitan.Emit(ctx, ValuePropagated,
		KeyName.Field(v.label()),
		KeyTargets.Field(notified),
	)
	return nil
}

// AddTarget registers sink as a target owned by owner.
func (v *Value[T]) AddTarget(owner any, sink Sink) *Target[T] {
	v.tmu.Lock()
	defer v.tmu.Unlock()

	v.nextTarget++
	t := &Target[T]{id: v.nextTarget, owner: owner, sink: sink}
	id := t.id
	t.remove = func() { v.removeTarget(id) }
	v.targets = append(v.targets, t)
	return t
}

// AddAttr keeps the named attribute of obj in sync, see SetAttr.
func (v *Value[T]) AddAttr(obj any, attr string) *Target[T] {
	return v.AddTarget(obj, SetAttr(obj, attr))
}

// AddCall keeps a call binding on owner in sync, see CallWith.
func (v *Value[T]) AddCall(owner any, fn func(ctx context.Context, args Args) error, fixed ...Arg) *Target[T] {
	return v.AddTarget(owner, CallWith(fn, fixed...))
}

// Subscribe registers sink as a target owned by owner.
func (v *Value[T]) Subscribe(owner any, sink Sink) Unbind {
	return v.AddTarget(owner, sink).Remove
}

// TargetCount returns the number of registered targets.
func (v *Value[T]) TargetCount() int {
	v.tmu.Lock()
	defer v.tmu.Unlock()
	return len(v.targets)
}

func (v *Value[T]) removeTarget(id uint64) {
	v.tmu.Lock()
	defer v.tmu.Unlock()
	for i, t := range v.targets {
		if t.id == id {
			v.targets = append(v.targets[:i:i], v.targets[i+1:]...)
			return
		}
	}
}

// AddSource listens to event on w. When it fires, get reads the widget
// value, which is converted to T and assigned on behalf of w, so w's own
// targets are skipped. A later source for the same widget and event
// replaces the earlier one.
func (v *Value[T]) AddSource(w Widget, event string, get Getter) (*Source[T], error) {
	if v.readOnly {
		return nil, fmt.Errorf("source for %s: %w", v.label(), ErrReadOnly)
	}

	s := &Source[T]{widget: w, event: event, get: get}
	key := sourceKey{widget: w, event: event}

	v.tmu.Lock()
	if v.sources == nil {
		v.sources = make(map[sourceKey]*Source[T])
	}
	_, bound := v.sources[key]
	v.sources[key] = s
	v.tmu.Unlock()

	if !bound {
		w.Bind(event, func(ctx context.Context) error {
			return v.receive(ctx, key)
		})
	}
	return s, nil
}

// AddAttrSource listens to event on w and reads the named attribute, see GetAttr.
func (v *Value[T]) AddAttrSource(w Widget, event, attr string) (*Source[T], error) {
	return v.AddSource(w, event, GetAttr(w, attr))
}

func (v *Value[T]) receive(ctx context.Context, key sourceKey) error {
	v.tmu.Lock()
	s := v.sources[key]
	v.tmu.Unlock()
	if s == nil {
		return nil
	}

	x, err := s.read(ctx)
	if err != nil {
		return fmt.Errorf("read %s from %T: %w", v.label(), s.widget, err)
	}
	capitan.Emit(ctx, SourceReceived,
		KeyName.Field(v.label()),
		KeyEvent.Field(s.event),
	)
	return v.set(ctx, x, s.widget, false)
}

// Follow makes v track parent: every change of parent is assigned to v.
func (v *Value[T]) Follow(parent *Value[T]) (*Target[T], error) {
	if v.readOnly {
		return nil, fmt.Errorf("follow for %s: %w", v.label(), ErrReadOnly)
	}
	return parent.AddTarget(v, func(ctx context.Context, x any) error {
		t, err := assertTo[T](x)
		if err != nil {
			return err
		}
		return v.set(ctx, t, nil, false)
	}), nil
}

// Snapshot returns the serialized current value for the store.
func (v *Value[T]) Snapshot() (any, error) {
	return v.serializer.Serialize(v.Get())
}

// Restore assigns a value loaded from the store through the normal setter.
func (v *Value[T]) Restore(ctx context.Context, raw any) error {
	x, err := v.serializer.Deserialize(raw)
	if err != nil {
		capitan.Emit(ctx, ValueRestoreFailed,
			KeyName.Field(v.label()),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("restore %s: %w", v.label(), err)
	}
	return v.assign(ctx, x)
}

var (
	_ Observable  = (*Value[int])(nil)
	_ Persistable = (*Value[int])(nil)
)
