package batch

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/logger"
)

func segmentData(it Item) []string {
	out := make([]string, len(it.Segments))
	for i, s := range it.Segments {
		out[i] = string(s.Data)
	}
	return out
}

func TestCapture_PauseResumeStop(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	id := f.add(t)

	if it := f.item(t, id); it.State != StateIdle || it.Name != "Audio #1" {
		t.Fatalf("unexpected new item %+v", it)
	}
	if err := f.m.StartCapture(ctx, id); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if f.m.Recording() != id {
		t.Fatal("expected item to hold the device")
	}
	if err := f.m.PauseCapture(ctx, id); err != nil {
		t.Fatalf("PauseCapture: %v", err)
	}
	it := f.item(t, id)
	if it.State != StatePaused || len(it.Segments) != 1 {
		t.Fatalf("expected paused with 1 segment, got %s with %d", it.State, len(it.Segments))
	}

	if err := f.m.ResumeCapture(ctx, id); err != nil {
		t.Fatalf("ResumeCapture: %v", err)
	}
	if err := f.m.StopCapture(ctx, id); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	it = f.item(t, id)
	if it.State != StateReady || len(it.Segments) != 2 {
		t.Fatalf("expected ready with 2 segments, got %s with %d", it.State, len(it.Segments))
	}
	if f.m.Recording() != "" {
		t.Error("expected device released")
	}
}

func TestCapture_SegmentsKeptInOrder(t *testing.T) {
	tests := []struct {
		name string
		ops  []string
		want []string
	}{
		{"single take", []string{"start", "stop"}, []string{"seg1;"}},
		{"pause resume", []string{"start", "pause", "resume", "pause", "resume", "stop"}, []string{"seg1;", "seg2;", "seg3;"}},
		{"stop from pause", []string{"start", "pause", "stop"}, []string{"seg1;"}},
		{"record again after stop", []string{"start", "stop", "start", "pause"}, []string{"seg1;", "seg2;"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			ctx := context.Background()
			id := f.add(t)
			ops := map[string]func(context.Context, string) error{
				"start":  f.m.StartCapture,
				"pause":  f.m.PauseCapture,
				"resume": f.m.ResumeCapture,
				"stop":   f.m.StopCapture,
			}
			for _, op := range tc.ops {
				if err := ops[op](ctx, id); err != nil {
					t.Fatalf("%s: %v", op, err)
				}
			}
			got := segmentData(f.item(t, id))
			if strings.Join(got, "") != strings.Join(tc.want, "") || len(got) != len(tc.want) {
				t.Errorf("segments = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCapture_StartPausesOtherRecorder(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	a, b := f.add(t), f.add(t)

	if err := f.m.StartCapture(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := f.m.StartCapture(ctx, b); err != nil {
		t.Fatal(err)
	}

	itA := f.item(t, a)
	if itA.State != StatePaused || len(itA.Segments) != 1 {
		t.Errorf("expected a paused with its segment kept, got %s with %d", itA.State, len(itA.Segments))
	}
	if f.item(t, b).State != StateRecording || f.m.Recording() != b {
		t.Error("expected b recording")
	}

	// resuming a takes the device back from b
	if err := f.m.ResumeCapture(ctx, a); err != nil {
		t.Fatal(err)
	}
	if f.item(t, b).State != StatePaused || f.item(t, a).State != StateRecording {
		t.Error("expected b paused and a recording")
	}
	if f.dev.overlaps != 0 {
		t.Errorf("device started while active %d times", f.dev.overlaps)
	}
}

func TestCapture_AtMostOneRecording(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = f.add(t)
	}

	var violations atomic.Int32
	f.m.Subscribe(func() {
		n := 0
		for _, it := range f.m.Items() {
			if it.State == StateRecording {
				n++
			}
		}
		if n > 1 {
			violations.Add(1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ids[i%len(ids)]
			switch i % 3 {
			case 0:
				_ = f.m.StartCapture(ctx, id)
			case 1:
				_ = f.m.ResumeCapture(ctx, id)
			default:
				_ = f.m.PauseCapture(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Fatalf("observed %d instants with more than one recording item", v)
	}
	recording := 0
	for _, it := range f.m.Items() {
		if it.State == StateRecording {
			recording++
			if f.m.Recording() != it.ID {
				t.Errorf("device slot %q does not match recording item %q", f.m.Recording(), it.ID)
			}
		}
	}
	if recording > 1 {
		t.Fatalf("expected at most one recording item, got %d", recording)
	}
	if f.dev.overlaps != 0 {
		t.Errorf("device started while active %d times", f.dev.overlaps)
	}
}

func TestCapture_HardwareUnavailable(t *testing.T) {
	f := newFixture(t, Config{})
	f.dev.startErr = stderrors.New("device busy")
	id := f.add(t)

	err := f.m.StartCapture(context.Background(), id)
	if !errors.HasCode(err, errors.ErrCodeHardwareUnavailable) {
		t.Fatalf("expected HARDWARE_UNAVAILABLE, got %v", err)
	}
	if it := f.item(t, id); it.State != StateIdle {
		t.Errorf("expected item back in idle, got %s", it.State)
	}
	if f.m.Recording() != "" {
		t.Error("expected no active recorder")
	}
}

func TestCapture_InvalidTransitions(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	id := f.add(t)

	if err := f.m.PauseCapture(ctx, id); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("pause idle: expected CONFLICT, got %v", err)
	}
	if err := f.m.ResumeCapture(ctx, id); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("resume idle: expected CONFLICT, got %v", err)
	}
	if err := f.m.StartCapture(ctx, "missing"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("unknown id: expected NOT_FOUND, got %v", err)
	}

	done := f.completed(t, "A")
	if err := f.m.StartCapture(ctx, done); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("start with transcript: expected CONFLICT, got %v", err)
	}
}

// gatedCapture holds Resume until gate is closed.
type gatedCapture struct {
	*fakeCapture
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedCapture) Resume(ctx context.Context) error {
	close(g.entered)
	<-g.gate
	return g.fakeCapture.Resume(ctx)
}

func TestCapture_ResumeLosesToTranscription(t *testing.T) {
	tests := []struct {
		name  string
		start func(ctx context.Context, m *Manager, id string) error
	}{
		{"process all", func(ctx context.Context, m *Manager, _ string) error {
			if n := m.ProcessAll(ctx); n != 1 {
				return stderrors.New("expected one item dispatched")
			}
			return nil
		}},
		{"transcribe", func(ctx context.Context, m *Manager, id string) error {
			return m.Transcribe(ctx, id)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Config{})
			dev := &gatedCapture{fakeCapture: f.dev, entered: make(chan struct{}), gate: make(chan struct{})}
			f.m = New(Config{Model: "m1"}, Deps{Capture: dev, Transcriber: f.tr, Conversation: f.conv, Logger: logger.Nop()})

			id := f.add(t)
			if err := f.m.StartCapture(ctx, id); err != nil {
				t.Fatalf("StartCapture: %v", err)
			}
			if err := f.m.PauseCapture(ctx, id); err != nil {
				t.Fatalf("PauseCapture: %v", err)
			}

			resumed := make(chan error, 1)
			go func() { resumed <- f.m.ResumeCapture(ctx, id) }()
			<-dev.entered

			if err := tc.start(ctx, f.m, id); err != nil {
				t.Fatalf("start transcription: %v", err)
			}
			close(dev.gate)

			if err := <-resumed; !errors.HasCode(err, errors.ErrCodeConflict) {
				t.Errorf("expected CONFLICT from the late resume, got %v", err)
			}
			f.m.Wait()

			it := f.item(t, id)
			if it.State != StateComplete || it.Transcript == nil || *it.Transcript != "transcript of seg1;" {
				t.Errorf("expected the transcription applied, got %s %v", it.State, it.Transcript)
			}
			if f.m.Recording() != "" || f.dev.stops != 1 {
				t.Errorf("expected the device released, recording %q stops %d", f.m.Recording(), f.dev.stops)
			}
		})
	}
}

func TestCapture_RemoveReleasesDevice(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	id := f.add(t)
	_ = f.m.StartCapture(ctx, id)

	if err := f.m.Remove(ctx, id); err != nil {
		t.Fatal(err)
	}
	if f.dev.stops != 1 || f.dev.active {
		t.Errorf("expected device stopped, stops=%d active=%v", f.dev.stops, f.dev.active)
	}
	if f.m.Recording() != "" || f.m.Len() != 0 {
		t.Error("expected empty collection with no recorder")
	}
}

func TestUpload(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	id := f.add(t)
	_ = f.m.StartCapture(ctx, id)
	_ = f.m.PauseCapture(ctx, id)
	if err := f.m.Upload(id, []byte("FILE"), "audio/mpeg"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	it := f.item(t, id)
	if it.State != StateReady || len(it.Segments) != 1 || string(it.Segments[0].Data) != "FILE" {
		t.Fatalf("expected uploaded file to replace segments, got %s %v", it.State, segmentData(it))
	}

	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)
	sniffed := f.add(t)
	if err := f.m.Upload(sniffed, wav, ""); err != nil {
		t.Fatalf("Upload wav: %v", err)
	}
	if got := f.item(t, sniffed).Segments[0].MIMEType; got != "audio/wav" {
		t.Errorf("expected sniffed audio/wav, got %q", got)
	}

	if err := f.m.Upload(sniffed, []byte("just some text"), ""); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for text, got %v", err)
	}
	if err := f.m.Upload(sniffed, nil, "audio/webm"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for empty file, got %v", err)
	}

	recording := f.add(t)
	_ = f.m.StartCapture(ctx, recording)
	if err := f.m.Upload(recording, []byte("x"), "audio/webm"); !errors.HasCode(err, errors.ErrCodeConflict) {
		t.Errorf("expected CONFLICT while recording, got %v", err)
	}
}
