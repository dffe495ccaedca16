package store

import (
	stderrors "errors"
	"testing"
	"time"
)

type sample struct {
	Name string `json:"name"`
}

func TestKey(t *testing.T) {
	if got := Key("u1", ModeBatch); got != "u1:batch" {
		t.Errorf("got %q", got)
	}
	if got := Key("u1", ModeSingle); got != "u1:single" {
		t.Errorf("got %q", got)
	}
}

func TestUnmarshal_Corrupt(t *testing.T) {
	_, err := Unmarshal[sample]("k", []byte("{not json"))
	if !stderrors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	data, err := Marshal("k", &sample{Name: "a"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal[sample]("k", data)
	if err != nil || got.Name != "a" {
		t.Fatalf("unexpected %+v, %v", got, err)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	if !Expiry(0, now).IsZero() {
		t.Error("expected zero deadline without ttl")
	}
	d := Expiry(time.Second, now)
	if Expired(d, now) {
		t.Error("expected not expired yet")
	}
	if !Expired(d, now.Add(2*time.Second)) {
		t.Error("expected expired")
	}
	if Expired(time.Time{}, now) {
		t.Error("zero deadline must never expire")
	}
}
