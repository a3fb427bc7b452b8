package bind

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// storeConfig holds configuration options for a DocumentStore.
type storeConfig struct {
	codec    Codec
	debounce time.Duration
	clock    clockz.Clock
	metrics  MetricsProvider
}

// StoreOption configures a DocumentStore.
type StoreOption func(*storeConfig)

// WithCodec sets the document encoding. The default is JSONCodec.
func WithCodec(c Codec) StoreOption {
	return func(cfg *storeConfig) {
		cfg.codec = c
	}
}

// WithDebounce sets how long autosave and reload wait for changes to settle.
func WithDebounce(d time.Duration) StoreOption {
	return func(cfg *storeConfig) {
		cfg.debounce = d
	}
}

// WithStoreClock sets the clock used for debouncing.
// Use this with clockz.FakeClock for deterministic tests.
func WithStoreClock(clock clockz.Clock) StoreOption {
	return func(cfg *storeConfig) {
		cfg.clock = clock
	}
}

// WithStoreMetrics sets a metrics provider for store operations.
func WithStoreMetrics(m MetricsProvider) StoreOption {
	return func(cfg *storeConfig) {
		cfg.metrics = m
	}
}

// DocumentStore is a Store keeping every named value in one flat
// key-to-data document, read from and written to a Backend.
//
// The document is read on first use. Save writes only the keys registered
// during this run. Autosave and Watch keep the document and the registered
// values in sync in the background.
type DocumentStore struct {
	backend  Backend
	codec    Codec
	debounce time.Duration
	clock    clockz.Clock

	state     atomic.Int32
	lastError atomic.Pointer[error]
	hasDoc    atomic.Bool
	reloading atomic.Int32
	autosave  atomic.Bool

	mu       sync.Mutex
	loaded   bool
	doc      map[string]any
	last     []byte
	keys     []string
	registry map[string]Persistable
	counter  int

	hmu     sync.RWMutex
	metrics MetricsProvider
	onError func(context.Context, error)
	custom  bool

	dirty chan struct{}
}

// NewStore creates a DocumentStore over backend.
func NewStore(backend Backend, opts ...StoreOption) *DocumentStore {
	cfg := &storeConfig{
		codec:    JSONCodec{},
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &DocumentStore{
		backend:  backend,
		codec:    cfg.codec,
		debounce: cfg.debounce,
		clock:    cfg.clock,
		doc:      map[string]any{},
		registry: map[string]Persistable{},
		metrics:  NoOpMetricsProvider{},
		dirty:    make(chan struct{}, 1),
	}
	if cfg.metrics != nil {
		s.metrics = cfg.metrics
		s.custom = true
	}
	s.state.Store(int32(StoreLoading))
	return s
}

// NewMemoryStore creates a DocumentStore over an empty MemoryBackend.
func NewMemoryStore(opts ...StoreOption) *DocumentStore {
	return NewStore(NewMemoryBackend(nil), opts...)
}

// attach wires binder-level metrics and error handling. Metrics configured
// on the store itself take precedence.
func (s *DocumentStore) attach(metrics MetricsProvider, onError func(context.Context, error)) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	if metrics != nil && !s.custom {
		s.metrics = metrics
	}
	s.onError = onError
}

func (s *DocumentStore) hooks() (MetricsProvider, func(context.Context, error)) {
	s.hmu.RLock()
	defer s.hmu.RUnlock()
	return s.metrics, s.onError
}

// Backend returns the backend the document is stored in.
func (s *DocumentStore) Backend() Backend {
	return s.backend
}

// State returns the current state of the store.
func (s *DocumentStore) State() StoreState {
	return StoreState(s.state.Load())
}

// LastError returns the last error encountered, or nil after a success.
func (s *DocumentStore) LastError() error {
	ptr := s.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// Load reads the document from the backend, replacing the in-memory copy.
// A missing document is not an error. When the document cannot be read or
// decoded the store keeps its previous document, or starts empty.
func (s *DocumentStore) Load(ctx context.Context) error {
	start := s.clock.Now()

	data, err := s.backend.Load(ctx)
	if err != nil {
		s.markLoaded()
		return s.fail(ctx, "load", err, start)
	}

	doc, err := s.decode(data)
	if err != nil {
		s.markLoaded()
		return s.fail(ctx, "decode", err, start)
	}

	s.mu.Lock()
	s.doc = doc
	s.last = data
	s.loaded = true
	s.mu.Unlock()

	s.succeed(ctx)
	capitan.Emit(ctx, StoreLoaded,
		KeyKeyCount.Field(len(doc)),
	)
	return nil
}

func (s *DocumentStore) markLoaded() {
	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
}

func (s *DocumentStore) decode(data []byte) (map[string]any, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := s.codec.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// Get returns the persisted data for key.
func (s *DocumentStore) Get(key string) (any, bool) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		_ = s.Load(context.Background()) //nolint:errcheck // Recorded via LastError
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc[key]
	return v, ok
}

// Register tracks p under key. An empty key is replaced by "value-<n>"
// numbered in registration order. Registering a key again replaces the
// earlier observable.
func (s *DocumentStore) Register(key string, p Persistable) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		key = fmt.Sprintf("value-%d", s.counter)
		s.counter++
	}
	if _, ok := s.registry[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.registry[key] = p
	return key
}

// Keys returns the registered keys in registration order.
func (s *DocumentStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Save snapshots every registered observable and writes the document.
// With nothing registered it does nothing.
func (s *DocumentStore) Save(ctx context.Context) error {
	start := s.clock.Now()

	s.mu.Lock()
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	members := make([]Persistable, len(keys))
	for i, k := range keys {
		members[i] = s.registry[k]
	}
	s.mu.Unlock()

	if len(keys) == 0 {
		return nil
	}

	doc := make(map[string]any, len(keys))
	for i, k := range keys {
		data, err := members[i].Snapshot()
		if err != nil {
			return s.fail(ctx, "encode", fmt.Errorf("%s: %w", k, err), start)
		}
		doc[k] = data
	}

	raw, err := s.codec.Marshal(doc)
	if err != nil {
		return s.fail(ctx, "encode", err, start)
	}
	if err := s.backend.Save(ctx, raw); err != nil {
		return s.fail(ctx, "save", err, start)
	}

	s.mu.Lock()
	s.doc = doc
	s.last = raw
	s.loaded = true
	s.mu.Unlock()

	s.succeed(ctx)
	metrics, _ := s.hooks()
	metrics.OnStoreSave(len(keys), s.clock.Since(start))
	capitan.Emit(ctx, StoreSaved,
		KeyKeyCount.Field(len(keys)),
	)
	return nil
}

// MarkDirty schedules a save when Autosave is running. Changes applied by a
// reload do not mark the store dirty.
func (s *DocumentStore) MarkDirty() {
	if s.reloading.Load() > 0 {
		return
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Autosave saves the document once changes have settled for the debounce
// duration. It blocks until ctx is canceled, then writes any pending change
// and returns. Autosave can only run once at a time.
func (s *DocumentStore) Autosave(ctx context.Context) error {
	if !s.autosave.CompareAndSwap(false, true) {
		return errors.New("autosave already running")
	}
	defer s.autosave.Store(false)

	capitan.Emit(ctx, StoreAutosaveStarted,
		KeyDebounce.Field(s.debounce),
	)

	var (
		timer   clockz.Timer
		pending bool
	)

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if pending {
				_ = s.Save(context.WithoutCancel(ctx)) //nolint:errcheck // Reported via fail
			}
			return nil

		case <-s.dirty:
			pending = true
			timer = s.resetTimer(timer)

		case <-timerC:
			if pending {
				_ = s.Save(ctx) //nolint:errcheck // Reported via fail
				pending = false
			}
		}
	}
}

func (s *DocumentStore) resetTimer(timer clockz.Timer) clockz.Timer {
	if timer == nil {
		return s.clock.NewTimer(s.debounce)
	}
	if !timer.Stop() {
		select {
		case <-timer.C():
		default:
		}
	}
	timer.Reset(s.debounce)
	return timer
}

// Watch observes w for external edits of the document. Each document that
// settles for the debounce duration is applied with Reload. Watch returns
// once the watcher is started; observation ends when ctx is canceled.
func (s *DocumentStore) Watch(ctx context.Context, w Watcher) error {
	changes, err := w.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	go s.watch(ctx, changes)
	return nil
}

func (s *DocumentStore) watch(ctx context.Context, changes <-chan []byte) {
	var (
		timer   clockz.Timer
		pending []byte
	)

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-changes:
			if !ok {
				if pending != nil {
					_ = s.Reload(ctx, pending) //nolint:errcheck // Reported via fail
				}
				return
			}
			pending = raw
			timer = s.resetTimer(timer)

		case <-timerC:
			if pending != nil {
				_ = s.Reload(ctx, pending) //nolint:errcheck // Reported via fail
				pending = nil
			}
		}
	}
}

// Reload applies an externally changed document: the in-memory document is
// replaced and every registered observable present in it is restored. A
// document identical to the last one read or written is ignored.
func (s *DocumentStore) Reload(ctx context.Context, data []byte) error {
	start := s.clock.Now()

	s.mu.Lock()
	same := s.last != nil && bytes.Equal(s.last, data)
	s.mu.Unlock()
	if same {
		return nil
	}

	doc, err := s.decode(data)
	if err != nil {
		return s.fail(ctx, "decode", err, start)
	}

	s.mu.Lock()
	s.doc = doc
	s.last = data
	s.loaded = true
	type entry struct {
		key  string
		p    Persistable
		data any
	}
	var restore []entry
	for _, k := range s.keys {
		if v, ok := doc[k]; ok {
			restore = append(restore, entry{key: k, p: s.registry[k], data: v})
		}
	}
	s.mu.Unlock()

	s.reloading.Add(1)
	defer s.reloading.Add(-1)

	var errs []error
	for _, e := range restore {
		if err := e.p.Restore(ctx, e.data); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return s.fail(ctx, "restore", err, start)
	}

	s.succeed(ctx)
	capitan.Emit(ctx, StoreReloaded,
		KeyKeyCount.Field(len(restore)),
	)
	return nil
}

func (s *DocumentStore) succeed(ctx context.Context) {
	s.hasDoc.Store(true)
	s.lastError.Store(nil)
	s.transitionState(ctx, StoreHealthy)
}

func (s *DocumentStore) fail(ctx context.Context, stage string, err error, start time.Time) error {
	err = fmt.Errorf("store %s failed: %w", stage, err)
	e := err
	s.lastError.Store(&e)

	next := StoreDegraded
	if !s.hasDoc.Load() {
		next = StoreEmpty
	}
	s.transitionState(ctx, next)

	metrics, onError := s.hooks()
	metrics.OnStoreFailure(stage, s.clock.Since(start))
	capitan.Emit(ctx, StoreFailed,
		KeyStage.Field(stage),
		KeyError.Field(err.Error()),
	)
	if onError != nil {
		onError(ctx, err)
	}
	return err
}

func (s *DocumentStore) transitionState(ctx context.Context, next StoreState) {
	prev := StoreState(s.state.Swap(int32(next)))
	if prev == next {
		return
	}
	metrics, _ := s.hooks()
	metrics.OnStoreStateChange(prev, next)
	capitan.Emit(ctx, StoreStateChanged,
		KeyOldState.Field(prev.String()),
		KeyNewState.Field(next.String()),
	)
}

var (
	_ Store       = (*DocumentStore)(nil)
	_ dirtyMarker = (*DocumentStore)(nil)
)
