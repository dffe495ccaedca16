package redis

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/scribe/logger"
	"github.com/kbukum/scribe/store"
)

type testState struct {
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(func() { mini.Close() })

	client, err := New(Config{Addr: mini.Addr(), KeyPrefix: "test"}, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, mini
}

func TestTypedStore_SaveAndLoad(t *testing.T) {
	client, mini := newTestClient(t)
	s := NewTypedStore[testState](client)
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Save(ctx, store.Key("u1", store.ModeBatch), &testState{Count: 5, Tags: []string{"a", "b"}}, 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !mini.Exists("test:u1:batch") {
		t.Fatal("expected prefixed key in redis")
	}

	got, err := s.Load(ctx, "u1:batch")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil || got.Count != 5 || len(got.Tags) != 2 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestTypedStore_LoadMissing(t *testing.T) {
	client, _ := newTestClient(t)
	s := NewTypedStore[testState](client)

	got, err := s.Load(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing key, got %+v", got)
	}
}

func TestTypedStore_Delete(t *testing.T) {
	client, _ := newTestClient(t)
	s := NewTypedStore[testState](client)
	ctx := context.Background()

	_ = s.Save(ctx, "k1", &testState{Count: 1}, 0)
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := s.Load(ctx, "k1"); got != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestTypedStore_TTL(t *testing.T) {
	client, mini := newTestClient(t)
	s := NewTypedStore[testState](client)
	ctx := context.Background()

	_ = s.Save(ctx, "k1", &testState{Count: 1}, time.Minute)
	mini.FastForward(2 * time.Minute)

	if got, _ := s.Load(ctx, "k1"); got != nil {
		t.Fatal("expected key to expire")
	}
}

func TestTypedStore_Corrupt(t *testing.T) {
	client, mini := newTestClient(t)
	s := NewTypedStore[testState](client)

	if err := mini.Set("test:k1", "not json"); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load(context.Background(), "k1")
	if !stderrors.Is(err, store.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
