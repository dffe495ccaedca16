package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type testState struct {
	Count int `json:"count"`
}

// fakeS3 serves path-style object GET/PUT/DELETE from memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = b
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*Store[testState], *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := Config{Bucket: "scribe", Prefix: "snapshots/", Endpoint: srv.URL, AccessKey: "test", SecretKey: "test"}
	client, err := NewClient(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewStore[testState](client, cfg), fake
}

func TestConfig_Validate(t *testing.T) {
	if err := (&Config{}).Validate(); err == nil {
		t.Error("expected error without bucket")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	if got, err := s.Load(ctx, "u1:batch"); err != nil || got != nil {
		t.Fatalf("expected nil for missing object, got %+v, %v", got, err)
	}
	if err := s.Save(ctx, "u1:batch", &testState{Count: 4}, 0); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fake.objects["/scribe/snapshots/u1/batch.json"]; !ok {
		t.Fatalf("expected object at bucket path, have %v", fake.objects)
	}
	got, err := s.Load(ctx, "u1:batch")
	if err != nil || got == nil || got.Count != 4 {
		t.Fatalf("unexpected load %+v, %v", got, err)
	}
	if err := s.Delete(ctx, "u1:batch"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Errorf("expected object removed, have %d", len(fake.objects))
	}
}
