package whisper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
)

func TestProvider_Transcribe(t *testing.T) {
	var gotModel, gotLang, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/transcribe":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			gotModel, gotLang = r.FormValue("model"), r.FormValue("language")
			_, hdr, err := r.FormFile("audio")
			if err != nil {
				t.Fatalf("form file: %v", err)
			}
			gotFile = hdr.Filename
			_, _ = io.WriteString(w, `{"text":" bonjour ","language":"fr"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProvider(Config{URL: srv.URL, Language: "fr"})
	if !p.IsAvailable(context.Background()) {
		t.Fatal("expected sidecar available")
	}

	text, err := p.Transcribe(context.Background(), audio.Payload{Data: []byte("RIFF"), MIMEType: "audio/wav"}, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "bonjour" {
		t.Errorf("expected trimmed text, got %q", text)
	}
	if gotModel != "base" || gotLang != "fr" || gotFile != "audio.wav" {
		t.Errorf("unexpected request model=%q lang=%q file=%q", gotModel, gotLang, gotFile)
	}
}

func TestProvider_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusServiceUnavailable, true},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = io.WriteString(w, "bad things")
		}))

		p := NewProvider(Config{URL: srv.URL})
		_, err := p.Transcribe(context.Background(), audio.Payload{Data: []byte("x")}, "small")
		srv.Close()

		appErr, ok := errors.AsAppError(err)
		if !ok || appErr.Code != errors.ErrCodeProvider {
			t.Fatalf("status %d: expected PROVIDER_ERROR, got %v", tc.status, err)
		}
		if appErr.Retryable != tc.retryable {
			t.Errorf("status %d: expected retryable=%v", tc.status, tc.retryable)
		}
	}
}

func TestProvider_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	p := NewProvider(Config{URL: srv.URL})
	if p.IsAvailable(context.Background()) {
		t.Error("expected unavailable for closed server")
	}
}
