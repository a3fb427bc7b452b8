package bind

import (
	"context"
	"sync"
	"testing"
	"time"
)

// testWidget is a minimal toolkit object: a label and text that can be set
// and events that handlers can be bound to.
type testWidget struct {
	mu       sync.Mutex
	Label    string
	Text     string
	Count    int
	handlers map[string][]EventHandler
}

func newTestWidget() *testWidget {
	return &testWidget{handlers: map[string][]EventHandler{}}
}

func (w *testWidget) Bind(event string, handler EventHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[event] = append(w.handlers[event], handler)
}

func (w *testWidget) SetText(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Text = s
}

func (w *testWidget) GetText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Text
}

// emit fires event the way a toolkit would, on the UI loop.
func (w *testWidget) emit(ctx context.Context, event string) error {
	w.mu.Lock()
	hs := append([]EventHandler(nil), w.handlers[event]...)
	w.mu.Unlock()
	for _, h := range hs {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *testWidget) handlerCount(event string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.handlers[event])
}

// inlineBinder returns a binder whose dispatcher runs everything on the
// calling goroutine.
func inlineBinder(opts ...Option) *Binder {
	return NewBinder(append([]Option{WithDispatcher(NewInlineDispatcher())}, opts...)...)
}

// recorder collects values delivered to sinks in order.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) sink(tag string) Sink {
	return func(_ context.Context, _ any) error {
		r.add(tag)
		return nil
	}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
