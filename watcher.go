package bind

import "context"

// Watcher observes a store document for external changes and emits its raw
// bytes on a channel. Implementations should emit the current document
// immediately when one exists.
type Watcher interface {
	// Watch begins observing the document. The channel is closed when ctx
	// is canceled or an unrecoverable error occurs.
	Watch(ctx context.Context) (<-chan []byte, error)
}
