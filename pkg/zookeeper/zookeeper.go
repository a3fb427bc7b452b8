// Package zookeeper provides a bind.Backend storing the value document in a
// ZooKeeper node, watched with the native watch API.
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/zoobzio/bind"
)

// Backend stores the document in one ZooKeeper node. Missing parent nodes
// are created on the first save.
type Backend struct {
	conn *zk.Conn
	path string
	acl  []zk.ACL
}

// Option configures a Backend.
type Option func(*Backend)

// WithACL sets the ACL used when creating nodes.
// Defaults to zk.WorldACL(zk.PermAll).
func WithACL(acl []zk.ACL) Option {
	return func(b *Backend) {
		b.acl = acl
	}
}

// New creates a Backend for the given node path.
func New(conn *zk.Conn, path string, opts ...Option) *Backend {
	b := &Backend{
		conn: conn,
		path: path,
		acl:  zk.WorldACL(zk.PermAll),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load returns the node's data, or nil when the node does not exist.
func (b *Backend) Load(_ context.Context) ([]byte, error) {
	data, _, err := b.conn.Get(b.path)
	if errors.Is(err, zk.ErrNoNode) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", b.path, err)
	}
	return data, nil
}

// Save writes the document to the node, creating it and its parents when
// absent.
func (b *Backend) Save(_ context.Context, data []byte) error {
	_, err := b.conn.Set(b.path, data, -1)
	if errors.Is(err, zk.ErrNoNode) {
		if err := b.ensureParents(); err != nil {
			return err
		}
		_, err = b.conn.Create(b.path, data, 0, b.acl)
		if errors.Is(err, zk.ErrNodeExists) {
			_, err = b.conn.Set(b.path, data, -1)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", b.path, err)
	}
	return nil
}

func (b *Backend) ensureParents() error {
	dir := path.Dir(b.path)
	if dir == "/" || dir == "." {
		return nil
	}
	current := ""
	for _, part := range strings.Split(strings.TrimPrefix(dir, "/"), "/") {
		current += "/" + part
		_, err := b.conn.Create(current, nil, 0, b.acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("failed to create %s: %w", current, err)
		}
	}
	return nil
}

// Watch begins watching the node and returns a channel that emits its data
// whenever it changes. The current data is emitted first. When the node
// does not exist yet, the watch waits for its creation.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			data, _, eventCh, err := b.conn.GetW(b.path)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				exists, _, existCh, err := b.conn.ExistsW(b.path)
				if err != nil {
					return
				}
				if !exists {
					select {
					case <-ctx.Done():
						return
					case <-existCh:
						continue
					}
				}
				continue
			}

			select {
			case out <- data:
			case <-ctx.Done():
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-eventCh:
			}
		}
	}()

	return out, nil
}

var (
	_ bind.Backend = (*Backend)(nil)
	_ bind.Watcher = (*Backend)(nil)
)
