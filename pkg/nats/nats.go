// Package nats provides a bind.Backend storing the value document in a
// NATS JetStream key-value bucket.
package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/zoobzio/bind"
)

// Backend stores the document under one key of a JetStream KV bucket.
type Backend struct {
	kv  jetstream.KeyValue
	key string
}

// Option configures a Backend.
type Option func(*Backend)

// New creates a Backend for the given bucket and key.
func New(kv jetstream.KeyValue, key string, opts ...Option) *Backend {
	b := &Backend{
		kv:  kv,
		key: key,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load returns the key's value, or nil when the key does not exist.
func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	entry, err := b.kv.Get(ctx, b.key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", b.key, err)
	}
	return entry.Value(), nil
}

// Save writes the document to the key.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	if _, err := b.kv.Put(ctx, b.key, data); err != nil {
		return fmt.Errorf("failed to put %s: %w", b.key, err)
	}
	return nil
}

// Watch begins watching the key and returns a channel that emits its value
// whenever it changes. The current value is emitted first when present.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	watcher, err := b.kv.Watch(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch key: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values
				if entry == nil {
					continue
				}
				if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
					continue
				}

				select {
				case out <- entry.Value():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var (
	_ bind.Backend = (*Backend)(nil)
	_ bind.Watcher = (*Backend)(nil)
)
