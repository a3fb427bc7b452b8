// Package testing provides test utilities and helpers for bind.
package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/bind"
)

// Settings is a standard record type for testing serialized values. It
// carries validator tags so StructSerializer rejects invalid documents.
type Settings struct {
	Theme    string `json:"theme" yaml:"theme" validate:"required,oneof=light dark"`
	FontSize int    `json:"font_size" yaml:"font_size" validate:"min=6,max=72"`
}

// FakeWidget stands in for a toolkit control. It exposes attributes that
// bind can set by name and records event handlers so tests can emit
// events the way a toolkit would.
type FakeWidget struct {
	mu       sync.Mutex
	Text     string
	Checked  bool
	handlers map[string][]bind.EventHandler
}

// NewFakeWidget creates a widget with no bound handlers.
func NewFakeWidget() *FakeWidget {
	return &FakeWidget{handlers: map[string][]bind.EventHandler{}}
}

// Bind implements bind.Widget.
func (w *FakeWidget) Bind(event string, handler bind.EventHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = append(w.handlers[event], handler)
}

// SetText sets the text attribute.
func (w *FakeWidget) SetText(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Text = s
}

// GetText returns the text attribute.
func (w *FakeWidget) GetText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Text
}

// Type simulates user input: the text changes, then event fires.
func (w *FakeWidget) Type(ctx context.Context, event, text string) error {
	w.SetText(text)
	return w.Emit(ctx, event)
}

// Emit runs every handler bound to event in bind order and returns the
// first error.
func (w *FakeWidget) Emit(ctx context.Context, event string) error {
	w.mu.Lock()
	hs := append([]bind.EventHandler(nil), w.handlers[event]...)
	w.mu.Unlock()
	for _, h := range hs {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Handlers returns the number of handlers bound to event.
func (w *FakeWidget) Handlers(event string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.handlers[event])
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForValue waits until v holds want or timeout occurs.
func WaitForValue[T comparable](t *testing.T, v *bind.Value[T], want T, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return v.Get() == want
	})
}

// WaitForState waits until the store reaches the expected state or timeout occurs.
func WaitForState(t *testing.T, s *bind.DocumentStore, expected bind.StoreState, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return s.State() == expected
	})
}

// RequireValue fails the test immediately if v does not hold want.
func RequireValue[T comparable](t *testing.T, v *bind.Value[T], want T) {
	t.Helper()
	if got := v.Get(); got != want {
		t.Fatalf("expected %s to hold %v, got %v", v.Name(), want, got)
	}
}

// RequireState fails the test immediately if the store is not in the expected state.
func RequireState(t *testing.T, s *bind.DocumentStore, expected bind.StoreState) {
	t.Helper()
	if got := s.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// NewTestBinder creates a binder whose dispatcher runs tasks on the calling
// goroutine, backed by an in-memory store. Returns the binder and the
// backend so tests can inspect saved documents.
func NewTestBinder(t *testing.T, opts ...bind.Option) (*bind.Binder, *bind.MemoryBackend) {
	t.Helper()
	backend := bind.NewMemoryBackend(nil)
	base := []bind.Option{
		bind.WithDispatcher(bind.NewInlineDispatcher()),
		bind.WithStore(bind.NewStore(backend)),
	}
	return bind.NewBinder(append(base, opts...)...), backend
}

// RunBinder creates a binder with a real UI loop running on its own
// goroutine. The binder is closed when the test ends.
func RunBinder(t *testing.T, opts ...bind.Option) *bind.Binder {
	t.Helper()
	b := bind.NewBinder(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = b.Run(ctx) //nolint:errcheck // Ends with the test
	}()
	t.Cleanup(func() {
		_ = b.Close(context.Background()) //nolint:errcheck // Best effort
		cancel()
		<-b.Dispatcher().Done()
	})
	return b
}
