package consul

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/testcontainers/testcontainers-go"
	tcconsul "github.com/testcontainers/testcontainers-go/modules/consul"
	"github.com/zoobzio/bind"
)

func setupConsul(t *testing.T) *api.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcconsul.Run(ctx, "hashicorp/consul:1.15")
	if err != nil {
		t.Fatalf("failed to start consul container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ApiEndpoint(ctx)
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client, err := api.NewClient(&api.Config{Address: endpoint})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestBackend_LoadMissingKey(t *testing.T) {
	client := setupConsul(t)

	data, err := New(client, "bind/missing").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if data != nil {
		t.Errorf("expected no document, got %q", data)
	}
}

func TestBackend_SaveThenLoad(t *testing.T) {
	client := setupConsul(t)
	ctx := context.Background()
	b := New(client, "bind/state")

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

func TestBackend_WatchEmitsInitialAndChanges(t *testing.T) {
	client := setupConsul(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b := New(client, "bind/state")
	_ = b.Save(ctx, []byte(`{"v": 1}`)) //nolint:errcheck // checked by Watch below

	ch, err := b.Watch(ctx)
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

	if _, err := client.KV().Put(&api.KVPair{Key: "bind/state", Value: []byte(`{"v": 2}`)}, nil); err != nil {
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
	client := setupConsul(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := New(client, "bind/state").Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
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

func TestBackend_StoreRoundTrip(t *testing.T) {
	client := setupConsul(t)
	ctx := context.Background()

	store := bind.NewStore(New(client, "bind/app"))
	b := bind.NewBinder(bind.WithDispatcher(bind.NewInlineDispatcher()), bind.WithStore(store))
	count := bind.MustNew(b, 0, bind.WithName("count"), bind.WithSerialize())
	if err := count.Set(ctx, 7); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	again := bind.NewStore(New(client, "bind/app"))
	b2 := bind.NewBinder(bind.WithDispatcher(bind.NewInlineDispatcher()), bind.WithStore(again))
	restored := bind.MustNew(b2, 0, bind.WithName("count"), bind.WithSerialize())

	if restored.Get() != 7 {
		t.Errorf("expected 7, got %d", restored.Get())
	}
}
