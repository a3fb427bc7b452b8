package bind

import "github.com/zoobzio/capitan"

// Value lifecycle signals.
var (
	// ValueAssigned is emitted on every assignment attempt, changed or not.
	ValueAssigned = capitan.NewSignal(
		"bind.value.set",
		"Value assignment attempted",
	)

	// ValueUpdated is emitted when an assignment changes a value.
	ValueUpdated = capitan.NewSignal(
		"bind.value.changed",
		"Value changed",
	)

	// ValueRestored is emitted when a named value is loaded from the store.
	ValueRestored = capitan.NewSignal(
		"bind.value.restored",
		"Value restored from store",
	)

	// ValueRestoreFailed is emitted when a persisted value cannot be decoded.
	ValueRestoreFailed = capitan.NewSignal(
		"bind.value.restore.failed",
		"Persisted value rejected",
	)
)

// Propagation signals.
var (
	// ValuePropagated is emitted after targets were notified of a value.
	ValuePropagated = capitan.NewSignal(
		"bind.value.propagated",
		"Targets notified",
	)

	// TargetFailed is emitted when a target aborts propagation with an error.
	TargetFailed = capitan.NewSignal(
		"bind.target.failed",
		"Target update failed",
	)

	// SourceReceived is emitted when a widget event pushes a value.
	SourceReceived = capitan.NewSignal(
		"bind.source.received",
		"Widget source event received",
	)
)

// Dispatch signals.
var (
	// DispatchSkipped is emitted when blocking dispatch is disabled and a call
	// from outside the UI loop is dropped.
	DispatchSkipped = capitan.NewSignal(
		"bind.dispatch.skipped",
		"Blocking dispatch disabled, call skipped",
	)

	// DispatchPanicked is emitted when a task panics on the UI loop.
	DispatchPanicked = capitan.NewSignal(
		"bind.dispatch.panicked",
		"UI task panicked",
	)

	// DispatchFailed is emitted when a fire-and-forget task returns an error.
	DispatchFailed = capitan.NewSignal(
		"bind.dispatch.failed",
		"Posted UI task failed",
	)
)

// Store signals.
var (
	// StoreLoaded is emitted after the persisted document is read.
	StoreLoaded = capitan.NewSignal(
		"bind.store.loaded",
		"Store document loaded",
	)

	// StoreSaved is emitted after the persisted document is written.
	StoreSaved = capitan.NewSignal(
		"bind.store.saved",
		"Store document saved",
	)

	// StoreFailed is emitted when loading, decoding or saving fails.
	StoreFailed = capitan.NewSignal(
		"bind.store.failed",
		"Store operation failed",
	)

	// StoreStateChanged is emitted when the store transitions between states.
	StoreStateChanged = capitan.NewSignal(
		"bind.store.state.changed",
		"Store state transition",
	)

	// StoreReloaded is emitted when an externally changed document is applied.
	StoreReloaded = capitan.NewSignal(
		"bind.store.reloaded",
		"Store document reloaded",
	)
)

// BinderClosed is emitted when a Binder finishes its teardown.
var BinderClosed = capitan.NewSignal(
	"bind.binder.closed",
	"Binder closed",
)

// StoreAutosaveStarted is emitted when a store begins its debounced autosave loop.
var StoreAutosaveStarted = capitan.NewSignal(
	"bind.store.autosave.started",
	"Store autosave started",
)
