package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeProvider, "provider down", http.StatusBadGateway)
	if !err.Retryable {
		t.Error("PROVIDER_ERROR should be retryable")
	}

	err = New(ErrCodeCorruptSnapshot, "bad data", http.StatusInternalServerError)
	if err.Retryable {
		t.Error("CORRUPT_SNAPSHOT should not be retryable")
	}
}

func TestAppError_ProviderError_CarriesCause(t *testing.T) {
	cause := stderrors.New("quota exceeded")
	err := ProviderError("transcription", cause)

	if err.Code != ErrCodeProvider {
		t.Errorf("expected PROVIDER_ERROR, got %s", err.Code)
	}
	if !strings.Contains(err.Message, "quota exceeded") {
		t.Errorf("expected cause text in message, got %q", err.Message)
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Details["service"] != "transcription" {
		t.Errorf("expected service=transcription, got %v", err.Details["service"])
	}
}

func TestAppError_HardwareUnavailable(t *testing.T) {
	err := HardwareUnavailable(stderrors.New("device busy"))
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("HARDWARE_UNAVAILABLE should not be retryable")
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("item", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
	err = NotFound("item", "abc")
	if err.Details["id"] != "abc" {
		t.Errorf("expected id=abc, got %v", err.Details["id"])
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := Conflict("item is processing")
	if err.Error() != "CONFLICT: item is processing" {
		t.Errorf("unexpected error string %q", err.Error())
	}

	err = StoreError(stderrors.New("disk full"))
	if !strings.Contains(err.Error(), "(cause: disk full)") {
		t.Errorf("expected cause in error string, got %q", err.Error())
	}
}

func TestCodeOf_Wrapped(t *testing.T) {
	inner := CorruptSnapshot(stderrors.New("bad base64"))
	wrapped := fmt.Errorf("load: %w", inner)

	if CodeOf(wrapped) != ErrCodeCorruptSnapshot {
		t.Errorf("expected CORRUPT_SNAPSHOT, got %q", CodeOf(wrapped))
	}
	if !HasCode(wrapped, ErrCodeCorruptSnapshot) {
		t.Error("expected HasCode to match")
	}
	if CodeOf(stderrors.New("plain")) != "" {
		t.Error("expected empty code for plain error")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("item", "1"), http.StatusNotFound},
		{"conflict", Conflict("busy"), http.StatusConflict},
		{"plain", stderrors.New("x"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOf(tc.err); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	if Message(nil) != "" {
		t.Error("expected empty message for nil")
	}
	if Message(Conflict("nope")) != "nope" {
		t.Error("expected AppError message")
	}
	if Message(stderrors.New("raw")) != "raw" {
		t.Error("expected raw error text")
	}
}

func TestToResponse(t *testing.T) {
	resp := InvalidInput("name", "too long").ToResponse()
	if resp.Error.Code != ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", resp.Error.Code)
	}
	if resp.Error.Details["field"] != "name" {
		t.Errorf("expected field=name, got %v", resp.Error.Details["field"])
	}
}
