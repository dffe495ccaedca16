// Package openai transcribes audio through the OpenAI audio transcriptions
// endpoint.
package openai

import (
	"bytes"
	"context"
	stderrors "errors"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kbukum/scribe/apiclient"
	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/transcription"
)

// ProviderName is the registered name for this provider.
const ProviderName = "openai"

// Config holds request options.
type Config struct {
	// Prompt guides the transcription style.
	Prompt string `yaml:"prompt" mapstructure:"prompt"`
	// Language is an ISO-639-1 hint; empty lets the model detect it.
	Language string `yaml:"language" mapstructure:"language"`
}

// Provider implements transcription.Provider on go-openai.
type Provider struct {
	cfg    Config
	handle *apiclient.Handle
}

// NewProvider creates a provider using the client bound to handle.
func NewProvider(cfg Config, handle *apiclient.Handle) *Provider {
	return &Provider{cfg: cfg, handle: handle}
}

var _ transcription.Provider = (*Provider)(nil)

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable reports whether a credential is bound.
func (p *Provider) IsAvailable(context.Context) bool { return p.handle.Initialized() }

// Transcribe uploads the payload and returns the trimmed transcript.
func (p *Provider) Transcribe(ctx context.Context, payload audio.Payload, model string) (string, error) {
	client, err := p.handle.Client()
	if err != nil {
		return "", err
	}

	resp, err := client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    model,
		Reader:   bytes.NewReader(payload.Data),
		FilePath: audio.FileName("audio", payload.MIMEType),
		Prompt:   p.cfg.Prompt,
		Language: p.cfg.Language,
	})
	if err != nil {
		return "", classify(err)
	}
	return transcription.Result(resp.Text)
}

// classify marks client errors (bad key, bad model, bad audio) as not
// retryable. Rate limits and server errors stay retryable.
func classify(err error) error {
	appErr := errors.ProviderError(transcription.Service, err)
	var apiErr *goopenai.APIError
	if stderrors.As(err, &apiErr) {
		appErr.WithDetail("status", apiErr.HTTPStatusCode)
		appErr.Retryable = Retryable(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if stderrors.As(err, &reqErr) {
		appErr.WithDetail("status", reqErr.HTTPStatusCode)
		appErr.Retryable = Retryable(reqErr.HTTPStatusCode)
	}
	return appErr
}

// Retryable reports whether an HTTP status from the API is worth retrying.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
