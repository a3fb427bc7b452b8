package bind

import (
	"bytes"
	"context"
	"sync"
)

// Persistable is a named observable that can be written to and restored
// from a store document.
type Persistable interface {
	// Snapshot returns the current value as plain data.
	Snapshot() (any, error)

	// Restore assigns a value read back from the document.
	Restore(ctx context.Context, data any) error
}

// Store is the named value store persistent values are keyed into.
type Store interface {
	// Get returns the persisted data for key, loading the document on first
	// use.
	Get(key string) (any, bool)

	// Register tracks p for the next save and returns the key it was
	// registered under. An empty key is replaced by a generated one.
	Register(key string, p Persistable) string

	// Save writes the current value of every registered observable.
	Save(ctx context.Context) error
}

// dirtyMarker is implemented by stores that track unsaved changes.
type dirtyMarker interface {
	MarkDirty()
}

// Backend reads and writes the raw store document. Load returns nil data
// and a nil error when no document exists yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// MemoryBackend keeps the document in memory. It is useful for tests and
// for sharing one document between stores in a single process. It also
// implements Watcher, emitting every saved document to watchers.
type MemoryBackend struct {
	mu       sync.Mutex
	data     []byte
	watchers []chan []byte
}

// NewMemoryBackend creates a backend holding data, which may be nil.
func NewMemoryBackend(data []byte) *MemoryBackend {
	return &MemoryBackend{data: bytes.Clone(data)}
}

// Load returns a copy of the held document.
func (m *MemoryBackend) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.data), nil
}

// Save replaces the held document and notifies watchers. Watchers that are
// not keeping up miss intermediate documents.
func (m *MemoryBackend) Save(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = bytes.Clone(data)
	for _, ch := range m.watchers {
		select {
		case ch <- bytes.Clone(data):
		default:
		}
	}
	return nil
}

// Bytes returns a copy of the held document.
func (m *MemoryBackend) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.data)
}

// Watch emits the current document, if any, then every saved document until
// ctx is canceled.
func (m *MemoryBackend) Watch(ctx context.Context) (<-chan []byte, error) {
	ch := make(chan []byte, 1)

	m.mu.Lock()
	if m.data != nil {
		ch <- bytes.Clone(m.data)
	}
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer m.unwatch(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-ch:
				select {
				case out <- data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *MemoryBackend) unwatch(ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.watchers {
		if w == ch {
			m.watchers = append(m.watchers[:i:i], m.watchers[i+1:]...)
			return
		}
	}
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Watcher = (*MemoryBackend)(nil)
)
