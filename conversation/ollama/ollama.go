// Package ollama runs follow-up conversations against a local Ollama server.
// Ollama models take text only, so spoken follow-ups are transcribed first
// when a transcription gateway is configured and rejected otherwise.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/transcription"
)

// ProviderName is the registered name for the Ollama provider.
const ProviderName = "ollama"

// Config holds configuration for the Ollama provider.
type Config struct {
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// TranscriptionModel is passed to the transcriber for spoken follow-ups.
	TranscriptionModel string `yaml:"transcription_model" mapstructure:"transcription_model"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "llama3"
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
}

// Provider implements conversation.Provider using Ollama's HTTP API.
type Provider struct {
	cfg         Config
	client      *http.Client
	transcriber transcription.Gateway
}

// NewProvider creates an Ollama provider. transcriber may be nil.
func NewProvider(cfg Config, transcriber transcription.Gateway) *Provider {
	cfg.ApplyDefaults()
	return &Provider{
		cfg:         cfg,
		client:      &http.Client{Timeout: cfg.Timeout},
		transcriber: transcriber,
	}
}

var _ conversation.Provider = (*Provider)(nil)

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the Ollama server is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// CreateSession seeds a session with the transcript and prior turns. The
// seed audio is not sent; the transcript stands in for it.
func (p *Provider) CreateSession(_ context.Context, seed conversation.Seed) (conversation.Session, error) {
	prelude := conversation.Prelude(seed)
	msgs := make([]chatMessage, 0, len(prelude)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: conversation.SystemInstruction})
	for _, t := range prelude {
		msgs = append(msgs, chatMessage{Role: role(t.Speaker), Content: t.Text})
	}
	return &session{p: p, messages: msgs}, nil
}

type session struct {
	p *Provider

	mu       sync.Mutex
	messages []chatMessage
}

// Send appends the message to the history only when the server answers.
func (s *session) Send(ctx context.Context, msg conversation.Message) (string, error) {
	spoken, err := s.p.transcribe(ctx, msg)
	if err != nil {
		return "", err
	}
	text := conversation.UserText(msg, spoken)
	if text == "" {
		return "", errors.InvalidInput("message", "message is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := chatMessage{Role: "user", Content: text}
	req := chatRequest{
		Model:    s.p.cfg.Model,
		Messages: append(append([]chatMessage(nil), s.messages...), user),
		Stream:   false,
	}
	if s.p.cfg.Temperature != 0 {
		req.Options = &chatOptions{Temperature: s.p.cfg.Temperature}
	}

	resp, err := s.p.doRequest(ctx, req)
	if err != nil {
		return "", errors.ProviderError(conversation.Service, err).WithDetail("provider", ProviderName)
	}
	reply := strings.TrimSpace(resp.Message.Content)
	if reply == "" {
		return "", errors.ProviderError(conversation.Service, transcription.ErrEmptyResult)
	}
	s.messages = append(s.messages, user, chatMessage{Role: "assistant", Content: reply})
	return reply, nil
}

func (p *Provider) transcribe(ctx context.Context, msg conversation.Message) (string, error) {
	if msg.Audio == nil || msg.Audio.Empty() {
		return "", nil
	}
	if p.transcriber == nil {
		if strings.TrimSpace(msg.Text) != "" {
			return "", nil
		}
		return "", errors.InvalidInput("audio", "spoken follow-ups are not supported by ollama")
	}
	return p.transcriber.Transcribe(ctx, *msg.Audio, p.cfg.TranscriptionModel)
}

func role(s conversation.Speaker) string {
	if s == conversation.Assistant {
		return "assistant"
	}
	return "user"
}

// --- internal Ollama API types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (p *Provider) doRequest(ctx context.Context, chatReq chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &out, nil
}
