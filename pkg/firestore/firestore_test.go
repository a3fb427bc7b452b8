package firestore

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/gcloud"
	"github.com/zoobzio/bind"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func setupFirestore(t *testing.T) *firestore.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := gcloud.RunFirestore(ctx, "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators",
		gcloud.WithProjectID("test-project"),
	)
	if err != nil {
		t.Fatalf("failed to start firestore container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	conn, err := grpc.NewClient(container.URI,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to create grpc connection: %v", err)
	}

	client, err := firestore.NewClient(ctx, "test-project",
		option.WithGRPCConn(conn),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	return client
}

func TestBackend_LoadMissingDocument(t *testing.T) {
	client := setupFirestore(t)

	data, err := New(client, "bind", "missing").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if data != nil {
		t.Errorf("expected no document, got %q", data)
	}
}

func TestBackend_SavePreservesOtherFields(t *testing.T) {
	client := setupFirestore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ref := client.Collection("bind").Doc("app")
	if _, err := ref.Set(ctx, map[string]any{"owner": "ops"}); err != nil {
		t.Fatalf("failed to seed document: %v", err)
	}

	b := New(client, "bind", "app", WithField("state"))
	if err := b.Save(ctx, []byte(`{"n": 1}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Data()["owner"] != "ops" {
		t.Errorf("expected owner field to survive, got %v", snap.Data())
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
	client := setupFirestore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	b := New(client, "bind", "app")
	if err := b.Save(ctx, []byte(`{"v": 1}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ch, err := b.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != `{"v": 1}` {
			t.Errorf("expected initial document, got %q", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for initial value")
	}

	if err := b.Save(ctx, []byte(`{"v": 2}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	select {
	case data := <-ch:
		if string(data) != `{"v": 2}` {
			t.Errorf("expected updated document, got %q", data)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestBackend_WatchClosesOnContextCancel(t *testing.T) {
	client := setupFirestore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	b := New(client, "bind", "app")
	if err := b.Save(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ch, err := b.Watch(ctx)
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
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestExtractValue(t *testing.T) {
	b := &Backend{field: DefaultField}

	if got := b.extractValue(map[string]any{"data": []byte("x")}); string(got) != "x" {
		t.Errorf("expected bytes field, got %q", got)
	}
	if got := b.extractValue(map[string]any{"data": "y"}); string(got) != "y" {
		t.Errorf("expected string field, got %q", got)
	}
	if got := b.extractValue(map[string]any{"data": 3}); got != nil {
		t.Errorf("expected nil for unsupported type, got %q", got)
	}
	if got := b.extractValue(map[string]any{}); got != nil {
		t.Errorf("expected nil for missing field, got %q", got)
	}
}

func TestBackend_StoreRoundTrip(t *testing.T) {
	client := setupFirestore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store := bind.NewStore(New(client, "bind", "prefs"))
	b := bind.NewBinder(bind.WithDispatcher(bind.NewInlineDispatcher()), bind.WithStore(store))
	lang := bind.MustNew(b, "en", bind.WithName("lang"), bind.WithSerialize())
	if err := lang.Set(ctx, "fr"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	again := bind.NewStore(New(client, "bind", "prefs"))
	b2 := bind.NewBinder(bind.WithDispatcher(bind.NewInlineDispatcher()), bind.WithStore(again))
	restored := bind.MustNew(b2, "en", bind.WithName("lang"), bind.WithSerialize())

	if restored.Get() != "fr" {
		t.Errorf("expected fr, got %q", restored.Get())
	}
}
