// Package etcd provides a bind.Backend storing the value document in an
// etcd key, watched with the native Watch API.
package etcd

import (
	"context"
	"fmt"

	"github.com/zoobzio/bind"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Backend stores the document in one etcd key.
type Backend struct {
	client *clientv3.Client
	key    string
}

// Option configures a Backend.
type Option func(*Backend)

// New creates a Backend for the given etcd key.
func New(client *clientv3.Client, key string, opts ...Option) *Backend {
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
	resp, err := b.client.Get(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", b.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	return resp.Kvs[0].Value, nil
}

// Save writes the document to the key.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	if _, err := b.client.Put(ctx, b.key, string(data)); err != nil {
		return fmt.Errorf("failed to put %s: %w", b.key, err)
	}
	return nil
}

// Watch begins watching the key and returns a channel that emits its value
// on every put. The current value is emitted immediately when the key
// exists. Deletes are ignored.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	resp, err := b.client.Get(ctx, b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		if len(resp.Kvs) > 0 {
			select {
			case out <- resp.Kvs[0].Value:
			case <-ctx.Done():
				return
			}
		}

		watchChan := b.client.Watch(ctx, b.key, clientv3.WithRev(resp.Header.Revision+1))

		for {
			select {
			case <-ctx.Done():
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					continue
				}

				for _, event := range watchResp.Events {
					if event.Type != clientv3.EventTypePut {
						continue
					}
					select {
					case out <- event.Kv.Value:
					case <-ctx.Done():
						return
					}
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
