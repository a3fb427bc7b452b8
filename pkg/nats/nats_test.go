package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/zoobzio/bind"
)

func setupNATS(t *testing.T) jetstream.KeyValue {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcnats.Run(ctx, "nats:2.10-alpine", tcnats.WithArgument("--jetstream"))
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	nc, err := nats.Connect(endpoint)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
	})

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("failed to create jetstream: %v", err)
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: "bind",
	})
	if err != nil {
		t.Fatalf("failed to create kv bucket: %v", err)
	}

	return kv
}

func TestBackend_LoadMissingKey(t *testing.T) {
	kv := setupNATS(t)

	data, err := New(kv, "missing").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if data != nil {
		t.Errorf("expected no document, got %q", data)
	}
}

func TestBackend_SaveThenLoad(t *testing.T) {
	kv := setupNATS(t)
	ctx := context.Background()
	b := New(kv, "state")

	if err := b.Save(ctx, []byte(`{"n": 1}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	data, err := b.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != `{"n": 1}` {
		t.Errorf("unexpected document %q", data)
	}
}

func TestBackend_WatchEmitsOnChange(t *testing.T) {
	kv := setupNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := kv.Put(ctx, "state", []byte(`{"v": 1}`)); err != nil {
		t.Fatalf("failed to put initial value: %v", err)
	}

	ch, err := New(kv, "state").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != `{"v": 1}` {
			t.Errorf("expected initial document, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}

	if _, err := kv.Put(ctx, "state", []byte(`{"v": 2}`)); err != nil {
		t.Fatalf("failed to update value: %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != `{"v": 2}` {
			t.Errorf("expected updated document, got %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestBackend_WatchClosesOnContextCancel(t *testing.T) {
	kv := setupNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	if _, err := kv.Put(ctx, "state", []byte("{}")); err != nil {
		t.Fatalf("failed to put value: %v", err)
	}

	ch, err := New(kv, "state").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	<-ch

	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to close")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestBackend_StoreReloadsRemoteChange(t *testing.T) {
	kv := setupNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend := New(kv, "app")
	store := bind.NewStore(backend, bind.WithDebounce(10*time.Millisecond))
	b := bind.NewBinder(bind.WithDispatcher(bind.NewInlineDispatcher()), bind.WithStore(store))
	theme := bind.MustNew(b, "light", bind.WithName("theme"), bind.WithSerialize())

	if err := store.Watch(ctx, backend); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if _, err := kv.Put(ctx, "app", []byte(`{"theme": "dark"}`)); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for theme.Get() != "dark" {
		if time.Now().After(deadline) {
			t.Fatalf("expected remote change to reach value, got %q", theme.Get())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
