package bind

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultErrorHistory is the number of unreported errors a Binder keeps.
const DefaultErrorHistory = 16

// Binder is the explicit context every value belongs to. It owns the UI
// dispatcher, the named value store and the ambient hooks, and replaces any
// process-wide registry.
type Binder struct {
	dispatcher *Dispatcher
	store      Store
	metrics    MetricsProvider
	clock      clockz.Clock
	errors     *errorRing

	// Failed fires for every error that had no caller to return to: failed
	// posted tasks, failed background work and failed autosaves.
	Failed *Event[error]

	closeOnce sync.Once
	closeErr  error
}

// hookable is implemented by components that report through a Binder.
type hookable interface {
	attach(metrics MetricsProvider, onError func(context.Context, error))
}

// NewBinder creates a Binder. Without WithDispatcher it creates a queued
// dispatcher which must be driven with Run on the UI goroutine.
func NewBinder(opts ...Option) *Binder {
	cfg := &config{
		metrics:      NoOpMetricsProvider{},
		clock:        clockz.RealClock,
		errorHistory: DefaultErrorHistory,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.dispatcher == nil {
		cfg.dispatcher = NewDispatcher()
	}

	b := &Binder{
		dispatcher: cfg.dispatcher,
		store:      cfg.store,
		metrics:    cfg.metrics,
		clock:      cfg.clock,
		errors:     newErrorRing(cfg.errorHistory),
		Failed:     NewEvent[error]("failed"),
	}
	b.dispatcher.attach(b.metrics, b.report)
	if h, ok := b.store.(hookable); ok {
		h.attach(b.metrics, b.report)
	}
	return b
}

// Dispatcher returns the UI dispatcher.
func (b *Binder) Dispatcher() *Dispatcher {
	return b.dispatcher
}

// Store returns the named value store, or nil when none is configured.
func (b *Binder) Store() Store {
	return b.store
}

func (b *Binder) metricsProvider() MetricsProvider {
	return b.metrics
}

// Run drives the UI loop on the calling goroutine, see Dispatcher.Run.
func (b *Binder) Run(ctx context.Context) error {
	return b.dispatcher.Run(ctx)
}

// Go runs fn on a new goroutine, off the UI loop. Values fn assigns are
// propagated through the dispatcher. An error returned by fn is reported
// to Failed and kept in Errors.
func (b *Binder) Go(ctx context.Context, fn Task) {
	go func() {
		if err := fn(ctx); err != nil {
			b.report(ctx, err)
		}
	}()
}

// Errors returns the most recent unreported errors, oldest first.
func (b *Binder) Errors() []ErrorRecord {
	return b.errors.all()
}

// ClearErrors drops the error history.
func (b *Binder) ClearErrors() {
	b.errors.clear()
}

func (b *Binder) report(ctx context.Context, err error) {
	b.errors.push(err, b.clock.Now())
	_ = b.Failed.Fire(ctx, err) //nolint:errcheck // Handlers cannot fail a report
}

// Close tears the binder down: blocking dispatch is disabled so that
// goroutines still assigning values cannot wait on a loop that is going
// away, the store is saved, then the UI loop is stopped. Close is
// idempotent and returns the save error, if any.
func (b *Binder) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.dispatcher.StopBlocking()
		if b.store != nil {
			b.closeErr = b.store.Save(ctx)
		}
		b.dispatcher.Stop()
		capitan.Emit(ctx, BinderClosed)
	})
	return b.closeErr
}
