package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/zoobzio/bind"
	bindredis "github.com/zoobzio/bind/pkg/redis"
	bindtesting "github.com/zoobzio/bind/testing"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})
	t.Cleanup(func() {
		client.Close()
	})

	if err := client.ConfigSet(ctx, "notify-keyspace-events", "KEA").Err(); err != nil {
		t.Fatalf("failed to enable keyspace notifications: %v", err)
	}

	return client
}

// Two binders sharing one key behave like two windows of the same
// application: an edit typed into one reaches the widget of the other.
func TestRedisStore_SharedStateAcrossBinders(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const key = "bind:shared"

	writerBackend := bindredis.New(client, key)
	writerStore := bind.NewStore(writerBackend, bind.WithDebounce(20*time.Millisecond))
	writer := bindtesting.RunBinder(t, bind.WithStore(writerStore))
	input := bindtesting.NewFakeWidget()
	draft := bind.MustNew(writer, "", bind.WithName("draft"), bind.WithSerialize())
	if _, err := draft.AddAttrSource(input, "text", "Text"); err != nil {
		t.Fatalf("AddAttrSource() error = %v", err)
	}

	readerBackend := bindredis.New(client, key)
	readerStore := bind.NewStore(readerBackend, bind.WithDebounce(20*time.Millisecond))
	reader := bindtesting.RunBinder(t, bind.WithStore(readerStore))
	label := bindtesting.NewFakeWidget()
	mirror := bind.MustNew(reader, "", bind.WithName("draft"), bind.WithSerialize())
	mirror.AddAttr(label, "Text")

	go func() { _ = writerStore.Autosave(ctx) }() //nolint:errcheck // Ends with ctx
	if err := readerStore.Watch(ctx, readerBackend); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	err := writer.Dispatcher().Invoke(ctx, func(ctx context.Context) error {
		return input.Type(ctx, "text", "hello from writer")
	})
	if err != nil {
		t.Fatalf("Type() error = %v", err)
	}

	if !bindtesting.WaitFor(t, 5*time.Second, func() bool { return label.GetText() == "hello from writer" }) {
		t.Errorf("expected mirrored label, got %q", label.GetText())
	}
	bindtesting.RequireValue(t, mirror, "hello from writer")
}

func TestRedisStore_RecoveryFromDegraded(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const key = "bind:recover"
	if err := client.Set(ctx, key, `{"settings": {"theme": "light", "font_size": 12}}`, 0).Err(); err != nil {
		t.Fatalf("failed to seed key: %v", err)
	}

	backend := bindredis.New(client, key)
	store := bind.NewStore(backend, bind.WithDebounce(20*time.Millisecond))
	b := bind.NewBinder(bind.WithDispatcher(bind.NewInlineDispatcher()), bind.WithStore(store))
	settings := newSettings(t, b, bindtesting.NewFakeWidget())

	if err := store.Watch(ctx, backend); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := client.Set(ctx, key, `not json`, 0).Err(); err != nil {
		t.Fatalf("failed to write malformed value: %v", err)
	}
	if !bindtesting.WaitForState(t, store, bind.StoreDegraded, 5*time.Second) {
		t.Fatalf("expected degraded state, got %s", store.State())
	}

	if err := client.Set(ctx, key, `{"settings": {"theme": "dark", "font_size": 12}}`, 0).Err(); err != nil {
		t.Fatalf("failed to write valid value: %v", err)
	}
	if !bindtesting.WaitForState(t, store, bind.StoreHealthy, 5*time.Second) {
		t.Fatalf("expected healthy state, got %s", store.State())
	}
	if !bindtesting.WaitFor(t, time.Second, func() bool { return settings.Get().Theme == "dark" }) {
		t.Errorf("expected recovered settings, got %+v", settings.Get())
	}
}
