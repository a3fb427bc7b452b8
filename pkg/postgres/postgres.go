// Package postgres provides a bind.Backend storing the value document in a
// PostgreSQL table row, watched with LISTEN/NOTIFY.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zoobzio/bind"
)

// Backend stores the document in the row identified by key. Save notifies
// the channel with the key as payload in the same transaction, so other
// processes watching the channel see every save. Writers outside this
// package can use a trigger instead:
//
//	CREATE OR REPLACE FUNCTION notify_bind_change() RETURNS trigger AS $$
//	BEGIN
//	    PERFORM pg_notify('bind_changed', NEW.key);
//	    RETURN NEW;
//	END;
//	$$ LANGUAGE plpgsql;
type Backend struct {
	pool          *pgxpool.Pool
	channel       string
	key           string
	table         string
	retryInterval time.Duration
}

// DefaultRetryInterval is the pause after a failed wait for notifications.
const DefaultRetryInterval = time.Second

// Option configures a Backend.
type Option func(*Backend)

// WithTable sets the table holding documents.
// Defaults to "bind_store".
func WithTable(table string) Option {
	return func(b *Backend) {
		b.table = table
	}
}

// WithRetryInterval sets the pause after a failed wait on a live connection.
// Defaults to DefaultRetryInterval.
func WithRetryInterval(d time.Duration) Option {
	return func(b *Backend) {
		b.retryInterval = d
	}
}

// New creates a Backend for the given notification channel and row key.
func New(pool *pgxpool.Pool, channel, key string, opts ...Option) *Backend {
	b := &Backend{
		pool:          pool,
		channel:       channel,
		key:           key,
		table:         "bind_store",
		retryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Migrate creates the document table when it does not exist.
func (b *Backend) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`, pgx.Identifier{b.table}.Sanitize())
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", b.table, err)
	}
	return nil
}

// Load returns the row's value, or nil when the row does not exist.
func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	value, err := b.fetchValue(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", b.key, err)
	}
	return value, nil
}

// Save upserts the row and notifies the channel.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		pgx.Identifier{b.table}.Sanitize())

	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, query, b.key, data); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, b.key)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", b.key, err)
	}
	return nil
}

// Watch listens on the channel and returns a channel that emits the row's
// value whenever a notification names this key. The current value is
// emitted first when present. The channel closes when ctx ends or the
// listening connection is lost.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize())
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", b.channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer conn.Release()

		if value, err := b.fetchValue(ctx); err == nil && value != nil {
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}

		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil || conn.Conn().IsClosed() {
					return
				}
				select {
				case <-time.After(b.retryInterval):
				case <-ctx.Done():
					return
				}
				continue
			}

			if notification.Payload != b.key {
				continue
			}

			value, err := b.fetchValue(ctx)
			if err != nil || value == nil {
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

func (b *Backend) fetchValue(ctx context.Context) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pgx.Identifier{b.table}.Sanitize())
	if err := b.pool.QueryRow(ctx, query, b.key).Scan(&value); err != nil {
		return nil, err
	}
	return value, nil
}

var (
	_ bind.Backend = (*Backend)(nil)
	_ bind.Watcher = (*Backend)(nil)
)
