// Package consul provides a bind.Backend storing the value document in a
// Consul KV key, watched with blocking queries.
package consul

import (
	"context"
	"fmt"

	"github.com/hashicorp/consul/api"
	"github.com/zoobzio/bind"
)

// Backend stores the document in one Consul KV key.
type Backend struct {
	client *api.Client
	key    string
}

// Option configures a Backend.
type Option func(*Backend)

// New creates a Backend for the given Consul KV key.
func New(client *api.Client, key string, opts ...Option) *Backend {
	b := &Backend{
		client: client,
		key:    key,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load returns the key's value, or nil when the key does not exist.
func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	pair, _, err := b.client.KV().Get(b.key, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", b.key, err)
	}
	if pair == nil {
		return nil, nil
	}
	return pair.Value, nil
}

// Save writes the document to the key.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	_, err := b.client.KV().Put(&api.KVPair{Key: b.key, Value: data}, (&api.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", b.key, err)
	}
	return nil
}

// Watch begins watching the key and returns a channel that emits its value
// whenever it changes. The current value is emitted immediately when the
// key exists.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	kv := b.client.KV()

	pair, meta, err := kv.Get(b.key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		lastIndex := meta.LastIndex

		if pair != nil {
			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			opts := (&api.QueryOptions{WaitIndex: lastIndex}).WithContext(ctx)
			pair, meta, err := kv.Get(b.key, opts)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}

			// A lower index means the raft index was reset; start over.
			if meta.LastIndex < lastIndex {
				lastIndex = 0
				continue
			}
			if meta.LastIndex == lastIndex {
				continue
			}
			lastIndex = meta.LastIndex

			// Deletion keeps the last document.
			if pair == nil {
				continue
			}
			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

var (
	_ bind.Backend = (*Backend)(nil)
	_ bind.Watcher = (*Backend)(nil)
)
