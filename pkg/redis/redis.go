// Package redis provides a bind.Backend storing the value document in a
// Redis key, watched through keyspace notifications.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/bind"
)

// Backend stores the document in one Redis key. Watch requires keyspace
// notifications to be enabled:
//
//	CONFIG SET notify-keyspace-events KEA
type Backend struct {
	client *redis.Client
	key    string
	db     int
}

// Option configures a Backend.
type Option func(*Backend)

// WithDB sets the database index used in the keyspace channel name.
// Defaults to 0.
func WithDB(db int) Option {
	return func(b *Backend) {
		b.db = db
	}
}

// New creates a Backend for the given Redis key.
func New(client *redis.Client, key string, opts ...Option) *Backend {
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
	val, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", b.key, err)
	}
	return val, nil
}

// Save writes the document to the key without expiry.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", b.key, err)
	}
	return nil
}

// Watch subscribes to keyspace notifications for the key and returns a
// channel that emits its value after every write. The current value is
// emitted first when present.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", b.db, b.key)
	pubsub := b.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer pubsub.Close()

		val, err := b.Load(ctx)
		if err != nil {
			return
		}
		if val != nil {
			select {
			case out <- val:
			case <-ctx.Done():
				return
			}
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				switch msg.Payload {
				case "set", "mset", "setex", "psetex", "setnx":
					val, err := b.Load(ctx)
					if err != nil || val == nil {
						continue
					}
					select {
					case out <- val:
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
