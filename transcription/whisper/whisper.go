// Package whisper transcribes audio through a faster-whisper HTTP sidecar.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/transcription"
)

// ProviderName is the registered name for the Whisper provider.
const ProviderName = "whisper"

// Config holds configuration for the Whisper sidecar.
type Config struct {
	URL      string        `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Language string        `yaml:"language" mapstructure:"language"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:8387"
	}
	if c.Model == "" {
		c.Model = "base"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}

// Provider implements transcription.Provider against the sidecar's
// /transcribe and /health endpoints.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a Whisper provider.
func NewProvider(cfg Config) *Provider {
	cfg.ApplyDefaults()
	return &Provider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

var _ transcription.Provider = (*Provider)(nil)

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the sidecar is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Transcribe posts the payload as multipart form data. An empty model uses
// the configured one.
func (p *Provider) Transcribe(ctx context.Context, payload audio.Payload, model string) (string, error) {
	if model == "" {
		model = p.cfg.Model
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", audio.FileName("audio", payload.MIMEType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(payload.Data); err != nil {
		return "", fmt.Errorf("write audio data: %w", err)
	}
	_ = writer.WriteField("model", model)
	if p.cfg.Language != "" {
		_ = writer.WriteField("language", p.cfg.Language)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/transcribe", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.ProviderError(transcription.Service, fmt.Errorf("whisper request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		appErr := errors.ProviderError(transcription.Service,
			fmt.Errorf("whisper error (status %d): %s", resp.StatusCode, bytes.TrimSpace(body)))
		appErr.Retryable = resp.StatusCode >= http.StatusInternalServerError
		return "", appErr
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.ProviderError(transcription.Service, fmt.Errorf("decode whisper response: %w", err))
	}
	return transcription.Result(result.Text)
}
