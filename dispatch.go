package bind

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
)

// DefaultQueueSize is the default capacity of the UI task queue.
const DefaultQueueSize = 256

// Task is a unit of work executed on the UI loop. The context it receives is
// marked as belonging to the loop; pass it on to any binding call made from
// inside the task so that nested dispatches run inline.
type Task func(ctx context.Context) error

type loopKey struct{}

type dispatchTask struct {
	ctx    context.Context
	fn     Task
	result chan error // nil for fire-and-forget
}

// Dispatcher owns the UI task queue.
//
// The goroutine calling Run becomes the UI loop: every widget mutation the
// binding engine performs happens there. Calls made from other goroutines
// are queued onto the loop; calls made with a context handed out by the loop
// run inline, so nested propagation never waits on itself.
type Dispatcher struct {
	inline bool
	tasks  chan dispatchTask
	quit   chan struct{}
	exited chan struct{}

	stopOnce sync.Once
	started  atomic.Bool
	noBlock  atomic.Bool

	hooksMu sync.RWMutex
	metrics MetricsProvider
	onError func(context.Context, error)
}

type dispatcherConfig struct {
	queueSize int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

// WithQueueSize sets the capacity of the UI task queue.
func WithQueueSize(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// NewDispatcher creates a Dispatcher. Nothing executes off-loop calls until
// Run is called.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	cfg := &dispatcherConfig{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Dispatcher{
		tasks:   make(chan dispatchTask, cfg.queueSize),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
		metrics: NoOpMetricsProvider{},
	}
}

// NewInlineDispatcher creates a Dispatcher for headless use: every caller is
// treated as the UI loop and all calls execute synchronously.
func NewInlineDispatcher() *Dispatcher {
	d := NewDispatcher(WithQueueSize(1))
	d.inline = true
	return d
}

// attach wires binder-level metrics and error handling.
func (d *Dispatcher) attach(metrics MetricsProvider, onError func(context.Context, error)) {
	d.hooksMu.Lock()
	defer d.hooksMu.Unlock()
	if metrics != nil {
		d.metrics = metrics
	}
	d.onError = onError
}

func (d *Dispatcher) hooks() (MetricsProvider, func(context.Context, error)) {
	d.hooksMu.RLock()
	defer d.hooksMu.RUnlock()
	return d.metrics, d.onError
}

// Run pumps the task queue on the calling goroutine until ctx is canceled or
// Stop is called. Run can only be called once.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return errors.New("dispatcher already running")
	}
	defer close(d.exited)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.quit:
			return nil
		case t := <-d.tasks:
			d.execute(t)
		}
	}
}

// Stop asks the loop to exit after the task it is running. Queued tasks are
// abandoned; callers blocked on them receive ErrDispatcherStopped.
// Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
	})
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.exited
}

// StopBlocking disables blocking dispatch: off-loop Invoke calls return nil
// immediately without executing. Use during teardown when the loop may no
// longer pump its queue.
func (d *Dispatcher) StopBlocking() {
	d.noBlock.Store(true)
}

// ResumeBlocking re-enables blocking dispatch.
func (d *Dispatcher) ResumeBlocking() {
	d.noBlock.Store(false)
}

// OnLoop reports whether ctx was handed out by this dispatcher's loop.
func (d *Dispatcher) OnLoop(ctx context.Context) bool {
	if d.inline {
		return true
	}
	loop, _ := ctx.Value(loopKey{}).(*Dispatcher)
	return loop == d
}

// LoopContext marks ctx as belonging to the UI loop. Toolkit integrations
// that deliver widget events natively on the UI thread use it to enter the
// binding engine without a queue round trip. Never call it off the UI thread.
func (d *Dispatcher) LoopContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loopKey{}, d)
}

// Invoke runs fn on the UI loop and waits for it to finish, returning its
// error unchanged. On the loop it runs inline. A panic on the loop is
// recovered and returned as *PanicError.
//
// Invoke waits until the loop runs fn, the loop exits, or ctx is canceled.
// After cancellation a queued fn may still run.
//
// The loop is recognized by ctx alone. Code running on the UI goroutine
// must pass the context its Task received, or one from LoopContext; an
// Invoke made there with any other context queues behind the running task
// and blocks the loop until ctx is canceled.
func (d *Dispatcher) Invoke(ctx context.Context, fn Task) error {
	if d.OnLoop(ctx) {
		return fn(ctx)
	}
	if d.noBlock.Load() {
		capitan.Emit(ctx, DispatchSkipped)
		return nil
	}

	select {
	case <-d.exited:
		return ErrDispatcherStopped
	default:
	}

	start := time.Now()
	result := make(chan error, 1)
	select {
	case d.tasks <- dispatchTask{ctx: ctx, fn: fn, result: result}:
	case <-d.exited:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		metrics, _ := d.hooks()
		metrics.OnDispatch(true, time.Since(start))
		return err
	case <-d.exited:
		select {
		case err := <-result:
			return err
		default:
			return ErrDispatcherStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues fn on the UI loop and returns without waiting. On the loop it
// runs inline. Errors have no caller to return to; they are reported to the
// binder's error handler.
func (d *Dispatcher) Post(ctx context.Context, fn Task) {
	if d.OnLoop(ctx) {
		if err := fn(ctx); err != nil {
			d.fail(ctx, err)
		}
		return
	}

	select {
	case <-d.exited:
		d.fail(ctx, ErrDispatcherStopped)
		return
	default:
	}

	start := time.Now()
	select {
	case d.tasks <- dispatchTask{ctx: ctx, fn: fn}:
		metrics, _ := d.hooks()
		metrics.OnDispatch(false, time.Since(start))
	default:
		d.fail(ctx, ErrQueueFull)
	}
}

func (d *Dispatcher) execute(t dispatchTask) {
	ctx := d.LoopContext(t.ctx)
	err := d.call(ctx, t.fn)
	if t.result != nil {
		t.result <- err
		return
	}
	if err != nil {
		d.fail(ctx, err)
	}
}

func (d *Dispatcher) call(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := newPanicError("bind.Dispatcher", r)
			capitan.Emit(ctx, DispatchPanicked,
				KeyError.Field(pe.Error()),
			)
			err = pe
		}
	}()
	return fn(ctx)
}

func (d *Dispatcher) fail(ctx context.Context, err error) {
	capitan.Emit(ctx, DispatchFailed,
		KeyError.Field(err.Error()),
	)
	if _, onError := d.hooks(); onError != nil {
		onError(ctx, err)
	}
}
