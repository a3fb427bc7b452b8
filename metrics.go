package bind

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key binding events.
type MetricsProvider interface {
	// OnPropagate is called after a value finished notifying its targets.
	// Targets is the number of targets invoked (the originating source is
	// not counted).
	OnPropagate(name string, targets int, duration time.Duration)

	// OnTargetFailure is called when a target aborts a propagation.
	OnTargetFailure(name string)

	// OnDispatch is called when a call from outside the UI loop completes
	// (blocking) or is queued (fire-and-forget). Wait is the time the caller
	// spent handing the call over.
	OnDispatch(blocking bool, wait time.Duration)

	// OnStoreStateChange is called when a document store transitions between states.
	OnStoreStateChange(from, to StoreState)

	// OnStoreSave is called when a document store writes its document.
	OnStoreSave(keys int, duration time.Duration)

	// OnStoreFailure is called when a store operation fails.
	// Stage is one of "load", "decode", "encode", "save" or "restore".
	OnStoreFailure(stage string, duration time.Duration)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnPropagate(_ string, _ int, _ time.Duration)  {}
func (NoOpMetricsProvider) OnTargetFailure(_ string)                     {}
func (NoOpMetricsProvider) OnDispatch(_ bool, _ time.Duration)           {}
func (NoOpMetricsProvider) OnStoreStateChange(_, _ StoreState)           {}
func (NoOpMetricsProvider) OnStoreSave(_ int, _ time.Duration)           {}
func (NoOpMetricsProvider) OnStoreFailure(_ string, _ time.Duration)     {}
