package bind

import "github.com/zoobzio/capitan"

// Field keys for binding events.
var (
	// KeyName is the value name, or its ID when unnamed.
	KeyName = capitan.NewStringKey("name")

	// KeyID is the generated identity of a value.
	KeyID = capitan.NewStringKey("id")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyTargets is the number of targets a propagation notified.
	KeyTargets = capitan.NewIntKey("targets")

	// KeyEvent is the widget event name that triggered a source.
	KeyEvent = capitan.NewStringKey("event")

	// KeyDebounce is the configured autosave debounce.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeyOldState is the store state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the store state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyKeyCount is the number of keys read or written.
	KeyKeyCount = capitan.NewIntKey("key_count")

	// KeyStage is the store operation that failed.
	KeyStage = capitan.NewStringKey("stage")
)
