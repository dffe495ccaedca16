package batch

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/logger"
)

type fakeCapture struct {
	mu       sync.Mutex
	active   bool
	n        int
	overlaps int
	startErr error
	stops    int
}

func (f *fakeCapture) begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if f.active {
		f.overlaps++
	}
	f.active = true
	return nil
}

func (f *fakeCapture) end() (audio.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return audio.Segment{}, stderrors.New("not capturing")
	}
	f.active = false
	f.n++
	return audio.Segment{Data: []byte(fmt.Sprintf("seg%d;", f.n)), MIMEType: "audio/webm;codecs=opus"}, nil
}

func (f *fakeCapture) Start(context.Context) error  { return f.begin() }
func (f *fakeCapture) Resume(context.Context) error { return f.begin() }
func (f *fakeCapture) Pause(context.Context) (audio.Segment, error) {
	return f.end()
}
func (f *fakeCapture) Stop(context.Context) (audio.Segment, error) {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return f.end()
}

type transcribeCall struct {
	data  string
	mime  string
	model string
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls []transcribeCall
	fn    func(p audio.Payload, model string) (string, error)
}

func (f *fakeTranscriber) Transcribe(_ context.Context, p audio.Payload, model string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transcribeCall{data: string(p.Data), mime: p.MIMEType, model: model})
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return "transcript of " + string(p.Data), nil
	}
	return fn(p, model)
}

func (f *fakeTranscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeConversation struct {
	mu          sync.Mutex
	seeds       []conversation.Seed
	msgs        []conversation.Message
	createDelay time.Duration
	sendDelay   time.Duration
	createErr   error
	sendErr     error
	gate        chan struct{}
}

func (f *fakeConversation) CreateSession(_ context.Context, seed conversation.Seed) (conversation.Session, error) {
	time.Sleep(f.createDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeds = append(f.seeds, seed)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &fakeSession{c: f}, nil
}

func (f *fakeConversation) sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeds)
}

type fakeSession struct {
	c *fakeConversation
}

func (s *fakeSession) Send(_ context.Context, msg conversation.Message) (string, error) {
	if s.c.gate != nil {
		<-s.c.gate
	}
	time.Sleep(s.c.sendDelay)
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.msgs = append(s.c.msgs, msg)
	if s.c.sendErr != nil {
		return "", s.c.sendErr
	}
	if msg.Text == "" {
		return "reply to audio", nil
	}
	return "reply to " + msg.Text, nil
}

type fixture struct {
	m    *Manager
	dev  *fakeCapture
	tr   *fakeTranscriber
	conv *fakeConversation
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "m1"
	}
	f := &fixture{dev: &fakeCapture{}, tr: &fakeTranscriber{}, conv: &fakeConversation{}}
	f.m = New(cfg, Deps{
		Capture:      f.dev,
		Transcriber:  f.tr,
		Conversation: f.conv,
		Logger:       logger.Nop(),
	})
	return f
}

func (f *fixture) add(t *testing.T) string {
	t.Helper()
	it, err := f.m.Add()
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return it.ID
}

// uploaded adds an item holding data as its only segment.
func (f *fixture) uploaded(t *testing.T, data string) string {
	t.Helper()
	id := f.add(t)
	if err := f.m.Upload(id, []byte(data), "audio/webm"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return id
}

// completed adds an item and transcribes it.
func (f *fixture) completed(t *testing.T, data string) string {
	t.Helper()
	id := f.uploaded(t, data)
	if err := f.m.Transcribe(context.Background(), id); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	f.m.Wait()
	if it := f.item(t, id); it.State != StateComplete {
		t.Fatalf("expected complete, got %s (%s)", it.State, it.LastError)
	}
	return id
}

func (f *fixture) item(t *testing.T, id string) Item {
	t.Helper()
	it, err := f.m.Item(id)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	return it
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
