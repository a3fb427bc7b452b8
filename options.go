package bind

import (
	"time"

	"github.com/zoobzio/clockz"
)

// config holds configuration options for a Binder.
type config struct {
	dispatcher   *Dispatcher
	store        Store
	metrics      MetricsProvider
	clock        clockz.Clock
	errorHistory int
}

// Option configures a Binder.
type Option func(*config)

// WithDispatcher sets the UI dispatcher. Without it the binder creates a
// queued dispatcher that must be driven with Run.
func WithDispatcher(d *Dispatcher) Option {
	return func(c *config) {
		c.dispatcher = d
	}
}

// WithStore sets the named value store used by persistent values.
func WithStore(s Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithMetrics sets a metrics provider for propagation and dispatch events.
func WithMetrics(m MetricsProvider) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithClock sets the clock used for timing measurements.
// Use this with clockz.FakeClock in tests.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithErrorHistory keeps the last n errors that had no caller to return to.
func WithErrorHistory(n int) Option {
	return func(c *config) {
		c.errorHistory = n
	}
}

// valueConfig holds configuration options for a Value.
type valueConfig struct {
	name       string
	serialize  bool
	serializer any
	equal      any
	preserve   bool
	resetIndex int
}

// ValueOption configures a Value, Array or derived value.
type ValueOption func(*valueConfig)

// WithName names the value. The name keys the value in the store and labels
// its signals.
func WithName(name string) ValueOption {
	return func(c *valueConfig) {
		c.name = name
	}
}

// WithSerialize persists the value in the binder's store under its name.
func WithSerialize() ValueOption {
	return func(c *valueConfig) {
		c.serialize = true
	}
}

// WithSerializer sets the persistence codec for a value of type T. It
// implies WithSerialize.
func WithSerializer[T any](s Serializer[T]) ValueOption {
	return func(c *valueConfig) {
		c.serialize = true
		c.serializer = s
	}
}

// WithEqual replaces the change-detection comparison for a value of type T.
func WithEqual[T any](fn func(a, b T) bool) ValueOption {
	return func(c *valueConfig) {
		c.equal = fn
	}
}

// WithPreserve controls array index reconciliation. When enabled (the
// default) the previously selected item is searched in the new array.
// When disabled the index resets, see WithResetIndex.
func WithPreserve(preserve bool) ValueOption {
	return func(c *valueConfig) {
		c.preserve = preserve
	}
}

// WithResetIndex disables preservation and sets the index an array selects
// after every change.
func WithResetIndex(i int) ValueOption {
	return func(c *valueConfig) {
		c.preserve = false
		c.resetIndex = i
	}
}

func newValueConfig(opts []ValueOption) *valueConfig {
	cfg := &valueConfig{preserve: true}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DefaultDebounce is the default debounce duration for store autosave.
const DefaultDebounce = 100 * time.Millisecond
