/*
Package bind keeps application state and widgets in sync.

A Value holds one piece of state. Widgets register as targets to be told
about changes and as sources to report user input. Every change is applied
to the widgets on a single UI goroutine, in registration order, and the
goroutine that made the change waits until every widget has observed it.

bind is toolkit-agnostic: a target is anything with a settable attribute or
a callable, a source is anything that can bind a handler to a named event.

# Basic Usage

Create a Binder and drive its UI loop:

	b := bind.NewBinder(bind.WithStore(store))
	go worker(b)
	b.Run(ctx) // on the UI goroutine

Declare values and wire widgets:

	name := bind.MustNew(b, "", bind.WithName("name"), bind.WithSerialize())
	name.AddAttr(label, "Text")
	name.AddAttrSource(entry, "changed", "Value")

	// From any goroutine; returns once label shows the new name.
	err := name.Set(ctx, "Ada")

# Derived Values

Derive recomputes a read-only value whenever one of its dependencies
changes. A dependency may be a Group, contributing all of its observables:

	greeting, err := bind.Derive(b, func(ctx context.Context) (string, error) {
	    return "Hello, " + name.Get(), nil
	}, []any{name})

Array pairs a slice with a selection index that follows the selected
element when the slice is replaced:

	files, _ := bind.NewArray(b, []string{"a.txt", "b.txt"})
	files.Index.AddAttr(list, "Selection")
	files.Item.AddAttr(preview, "Path")

# Persistence

Values created WithSerialize are keyed by name into the binder's Store.
DocumentStore keeps them in one flat document on a Backend; the file, memory
and pkg/ backends share the same contract:

	store, err := bind.NewFileStore(bind.FileStoreConfig{Path: "app.store.yaml"})
	go store.Autosave(ctx)
	store.Watch(ctx, bind.NewFileBackend("app.store.yaml"))

# Observability

Lifecycle events are emitted as capitan signals (see signals.go) and may be
counted with a MetricsProvider. Errors that have no caller to return to are
reported to Binder.Failed and kept in Binder.Errors.
*/
package bind
