package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/errors"
)

type fakeTranscriber struct {
	text  string
	model string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ audio.Payload, model string) (string, error) {
	f.model = model
	return f.text, nil
}

func newServer(t *testing.T, status int, reply string, got *[]chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
			return
		case "/api/chat":
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		*got = append(*got, req)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(chatResponse{Model: req.Model, Message: chatMessage{Role: "assistant", Content: reply}, Done: true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSession_SendCarriesHistory(t *testing.T) {
	var got []chatRequest
	srv := newServer(t, http.StatusOK, " sure ", &got)
	p := NewProvider(Config{BaseURL: srv.URL, Model: "llama3"}, nil)

	if !p.IsAvailable(context.Background()) {
		t.Fatal("expected provider available")
	}

	sess, err := p.CreateSession(context.Background(), conversation.Seed{
		Transcript: "meeting notes",
		History:    []conversation.Turn{{Speaker: conversation.User, Text: "q1"}, {Speaker: conversation.Assistant, Text: "a1"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	reply, err := sess.Send(context.Background(), conversation.Message{Text: "q2"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != "sure" {
		t.Errorf("expected trimmed reply, got %q", reply)
	}
	if _, err := sess.Send(context.Background(), conversation.Message{Text: "q3"}); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	first := got[0].Messages
	// system, audio note, transcript, q1, a1, q2
	if len(first) != 6 || first[0].Role != "system" || first[2].Content != "This is the transcript you requested:\n\nmeeting notes" {
		t.Errorf("unexpected first request messages %+v", first)
	}
	if n := len(got[1].Messages); n != 8 {
		t.Errorf("expected second request to carry the first exchange, got %d messages", n)
	}
}

func TestSession_FailureLeavesHistory(t *testing.T) {
	var got []chatRequest
	srv := newServer(t, http.StatusInternalServerError, "", &got)
	p := NewProvider(Config{BaseURL: srv.URL}, nil)
	sess, _ := p.CreateSession(context.Background(), conversation.Seed{Transcript: "t"})

	_, err := sess.Send(context.Background(), conversation.Message{Text: "q"})
	if !errors.HasCode(err, errors.ErrCodeProvider) {
		t.Fatalf("expected PROVIDER_ERROR, got %v", err)
	}
	if n := len(sess.(*session).messages); n != 3 {
		t.Errorf("expected history untouched, got %d messages", n)
	}
}

func TestSession_SpokenFollowUp(t *testing.T) {
	var got []chatRequest
	srv := newServer(t, http.StatusOK, "ok", &got)
	clip := &audio.Payload{Data: []byte("opus"), MIMEType: "audio/webm"}

	p := NewProvider(Config{BaseURL: srv.URL}, nil)
	sess, _ := p.CreateSession(context.Background(), conversation.Seed{})
	_, err := sess.Send(context.Background(), conversation.Message{Audio: clip, Instruction: conversation.SpokenFollowUp})
	if !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT without transcriber, got %v", err)
	}

	tr := &fakeTranscriber{text: "what was decided"}
	p = NewProvider(Config{BaseURL: srv.URL, TranscriptionModel: "base"}, tr)
	sess, _ = p.CreateSession(context.Background(), conversation.Seed{})
	if _, err := sess.Send(context.Background(), conversation.Message{Audio: clip, Instruction: conversation.SpokenFollowUp}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if tr.model != "base" {
		t.Errorf("expected transcription model base, got %q", tr.model)
	}
	msgs := got[len(got)-1].Messages
	want := conversation.SpokenFollowUp + "\n\nSpoken question: what was decided"
	if msgs[len(msgs)-1].Content != want {
		t.Errorf("unexpected user message %q", msgs[len(msgs)-1].Content)
	}
}
