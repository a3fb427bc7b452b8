package bind

import (
	"context"
	"errors"
	"testing"
)

func TestEvent_FiresInSubscriptionOrder(t *testing.T) {
	ctx := context.Background()
	e := NewEvent[int]("test")

	var order []string
	e.Subscribe(func(_ context.Context, v int) error {
		order = append(order, "first")
		return nil
	})
	e.Subscribe(func(_ context.Context, v int) error {
		order = append(order, "second")
		return nil
	})

	if err := e.Fire(ctx, 1); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected [first second], got %v", order)
	}
}

func TestEvent_PassesPayload(t *testing.T) {
	e := NewEvent[string]("payload")
	var got string
	e.Subscribe(func(_ context.Context, v string) error {
		got = v
		return nil
	})

	_ = e.Fire(context.Background(), "hello") //nolint:errcheck // handler never fails

	if got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
}

func TestEvent_ErrorAbortsDelivery(t *testing.T) {
	e := NewEvent[int]("abort")
	boom := errors.New("boom")

	var reached bool
	e.Subscribe(func(_ context.Context, _ int) error { return boom })
	e.Subscribe(func(_ context.Context, _ int) error {
		reached = true
		return nil
	})

	err := e.Fire(context.Background(), 0)
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if reached {
		t.Error("expected second handler to be skipped after error")
	}
}

func TestEvent_Unsubscribe(t *testing.T) {
	e := NewEvent[int]("unsub")
	var calls int
	sub := e.Subscribe(func(_ context.Context, _ int) error {
		calls++
		return nil
	})

	if !e.Unsubscribe(sub) {
		t.Fatal("expected Unsubscribe to find handler")
	}
	if e.Unsubscribe(sub) {
		t.Error("expected second Unsubscribe to report false")
	}

	_ = e.Fire(context.Background(), 1) //nolint:errcheck // no handlers
	if calls != 0 {
		t.Errorf("expected 0 calls, got %d", calls)
	}
}

func TestEvent_SubscribeDuringFireNotInvokedInSamePass(t *testing.T) {
	ctx := context.Background()
	e := NewEvent[int]("reentrant")

	var late int
	e.Subscribe(func(_ context.Context, _ int) error {
		e.Subscribe(func(_ context.Context, _ int) error {
			late++
			return nil
		})
		return nil
	})

	_ = e.Fire(ctx, 1) //nolint:errcheck // handlers never fail
	if late != 0 {
		t.Errorf("expected late handler not to run in the subscribing pass, ran %d times", late)
	}

	_ = e.Fire(ctx, 2) //nolint:errcheck // handlers never fail
	if late != 1 {
		t.Errorf("expected late handler to run on next fire, ran %d times", late)
	}
}

func TestEvent_UnsubscribeDuringFireStillDelivers(t *testing.T) {
	e := NewEvent[int]("unsub-mid")

	var second Subscription
	var got int
	e.Subscribe(func(_ context.Context, _ int) error {
		e.Unsubscribe(second)
		return nil
	})
	second = e.Subscribe(func(_ context.Context, v int) error {
		got = v
		return nil
	})

	_ = e.Fire(context.Background(), 7) //nolint:errcheck // handlers never fail
	if got != 7 {
		t.Errorf("expected snapshot delivery of 7, got %d", got)
	}
	if e.Len() != 1 {
		t.Errorf("expected 1 remaining handler, got %d", e.Len())
	}
}

func TestEvent_FireOnceClearsAfterSuccess(t *testing.T) {
	ctx := context.Background()
	e := NewEvent[int]("once", FireOnce())

	var calls int
	e.Subscribe(func(_ context.Context, _ int) error {
		calls++
		return nil
	})

	_ = e.Fire(ctx, 1) //nolint:errcheck // handler never fails
	_ = e.Fire(ctx, 2) //nolint:errcheck // handler never fails

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if e.Len() != 0 {
		t.Errorf("expected handlers cleared, got %d", e.Len())
	}
}

func TestEvent_FireOnceKeepsHandlersOnError(t *testing.T) {
	ctx := context.Background()
	e := NewEvent[int]("once-err", FireOnce())

	fail := true
	e.Subscribe(func(_ context.Context, _ int) error {
		if fail {
			return errors.New("not yet")
		}
		return nil
	})

	if err := e.Fire(ctx, 1); err == nil {
		t.Fatal("expected error")
	}
	if e.Len() != 1 {
		t.Fatalf("expected handler kept after failed fire, got %d", e.Len())
	}

	fail = false
	if err := e.Fire(ctx, 2); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if e.Len() != 0 {
		t.Errorf("expected handlers cleared, got %d", e.Len())
	}
}

func TestEvent_DefaultName(t *testing.T) {
	if n := NewEvent[int]("").Name(); n != "event" {
		t.Errorf("expected default name 'event', got %q", n)
	}
	if n := NewEvent[int]("value_changed").Name(); n != "value_changed" {
		t.Errorf("expected 'value_changed', got %q", n)
	}
}

func TestEvent_Clear(t *testing.T) {
	e := NewEvent[int]("clear")
	e.Subscribe(func(_ context.Context, _ int) error { return nil })
	e.Subscribe(func(_ context.Context, _ int) error { return nil })
	e.Clear()
	if e.Len() != 0 {
		t.Errorf("expected 0 handlers, got %d", e.Len())
	}
}
