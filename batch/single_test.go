package batch

import (
	"context"
	"testing"

	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
)

func newSingle(t *testing.T) (*Single, *fakeCapture) {
	t.Helper()
	dev := &fakeCapture{}
	s := NewSingle(Config{Model: "m1"}, Deps{
		Capture:      dev,
		Transcriber:  &fakeTranscriber{},
		Conversation: &fakeConversation{},
		Logger:       logger.Nop(),
	})
	return s, dev
}

func TestSingle_IDCreatesOnDemand(t *testing.T) {
	s, _ := newSingle(t)
	if s.Len() != 0 {
		t.Fatal("expected no item before first use")
	}
	id := s.ID()
	if s.ID() != id || s.Len() != 1 {
		t.Fatal("expected a stable single item")
	}
	if _, err := s.Add(); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("expected CONFLICT adding a second item, got %v", err)
	}
}

func TestSingle_UsesSingleGreeting(t *testing.T) {
	s, _ := newSingle(t)
	ctx := context.Background()
	id := s.ID()

	_ = s.StartCapture(ctx, id)
	_ = s.StopCapture(ctx, id)
	if err := s.Transcribe(ctx, id); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	it := s.Current()
	want := "transcript of seg1;\n\n" + SingleGreeting
	if it.State != StateComplete || len(it.Turns) != 1 || it.Turns[0].Text != want {
		t.Errorf("unexpected item %+v", it)
	}
}

func TestSingle_ResetReleasesDevice(t *testing.T) {
	s, dev := newSingle(t)
	ctx := context.Background()
	old := s.ID()
	_ = s.StartCapture(ctx, old)

	fresh := s.Reset(ctx)
	if fresh.ID == old || fresh.State != StateIdle || fresh.HasAudio() {
		t.Errorf("expected a fresh idle item, got %+v", fresh)
	}
	if s.Recording() != "" || dev.stops != 1 {
		t.Errorf("expected device released, recording=%q stops=%d", s.Recording(), dev.stops)
	}
	if s.ID() != fresh.ID || s.Len() != 1 {
		t.Error("expected the fresh item to be current")
	}
}
