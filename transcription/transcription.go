// Package transcription turns audio into text. Backends implement Provider;
// the Router picks an available backend per call and retries transient
// failures.
package transcription

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/provider"
)

// Service is the service label used in provider errors.
const Service = "transcription"

// ErrEmptyResult is returned when a backend answers with no text.
var ErrEmptyResult = stderrors.New("API returned an empty response")

// Gateway transcribes a merged audio payload with the named model.
type Gateway interface {
	Transcribe(ctx context.Context, payload audio.Payload, model string) (string, error)
}

// Provider is a named, health-checkable Gateway.
type Provider interface {
	provider.Provider
	Gateway
}

// NewRegistry creates a registry for transcription providers.
func NewRegistry() *provider.Registry[Provider] {
	return provider.NewRegistry[Provider]()
}

// Result trims text and maps blank output to a ProviderError wrapping
// ErrEmptyResult. Backends call it on their raw output.
func Result(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.ProviderError(Service, ErrEmptyResult)
	}
	return text, nil
}
