// Package firestore provides a bind.Backend storing the value document in
// a field of a Firestore document, watched with realtime listeners.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/zoobzio/bind"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultField is the document field holding the encoded value document.
const DefaultField = "data"

// Backend stores the encoded document in one field of a Firestore
// document. Other fields are preserved on save.
type Backend struct {
	client     *firestore.Client
	collection string
	document   string
	field      string
}

// Option configures a Backend.
type Option func(*Backend)

// WithField sets the field holding the encoded document.
// Defaults to DefaultField.
func WithField(field string) Option {
	return func(b *Backend) {
		b.field = field
	}
}

// New creates a Backend for the given Firestore document.
func New(client *firestore.Client, collection, document string, opts ...Option) *Backend {
	b := &Backend{
		client:     client,
		collection: collection,
		document:   document,
		field:      DefaultField,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) ref() *firestore.DocumentRef {
	return b.client.Collection(b.collection).Doc(b.document)
}

// Load returns the stored document, or nil when the Firestore document or
// field is absent.
func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	snap, err := b.ref().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", b.collection, b.document, err)
	}
	return b.extractValue(snap.Data()), nil
}

// Save writes the document into the field, merging with existing fields.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	_, err := b.ref().Set(ctx, map[string]any{
		b.field: data,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", b.collection, b.document, err)
	}
	return nil
}

// Watch listens to the Firestore document and returns a channel that emits
// the stored document whenever it changes. The current value is emitted
// first when present.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		snapshots := b.ref().Snapshots(ctx)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			if !snap.Exists() {
				continue
			}

			value := b.extractValue(snap.Data())
			if value == nil {
				continue
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (b *Backend) extractValue(data map[string]any) []byte {
	switch v := data[b.field].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

var (
	_ bind.Backend = (*Backend)(nil)
	_ bind.Watcher = (*Backend)(nil)
)
