// Package openai runs follow-up conversations on the OpenAI chat completions
// API. Spoken follow-ups go through the audio transcriptions endpoint first.
package openai

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kbukum/scribe/apiclient"
	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/conversation"
	"github.com/kbukum/scribe/errors"
	"github.com/kbukum/scribe/transcription"
	topenai "github.com/kbukum/scribe/transcription/openai"
)

// ProviderName is the registered name for this provider.
const ProviderName = "openai"

// Config holds model selection.
type Config struct {
	// ChatModel answers follow-ups. Empty uses the seed's model.
	ChatModel string `yaml:"chat_model" mapstructure:"chat_model"`
	// TranscriptionModel transcribes spoken follow-ups.
	TranscriptionModel string  `yaml:"transcription_model" mapstructure:"transcription_model"`
	Temperature        float32 `yaml:"temperature" mapstructure:"temperature"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = goopenai.Whisper1
	}
}

// Provider implements conversation.Provider on go-openai.
type Provider struct {
	cfg    Config
	handle *apiclient.Handle
}

// NewProvider creates a provider using the client bound to handle.
func NewProvider(cfg Config, handle *apiclient.Handle) *Provider {
	cfg.ApplyDefaults()
	return &Provider{cfg: cfg, handle: handle}
}

var _ conversation.Provider = (*Provider)(nil)

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable reports whether a credential is bound.
func (p *Provider) IsAvailable(context.Context) bool { return p.handle.Initialized() }

// CreateSession fails with NOT_INITIALIZED when no credential is bound.
func (p *Provider) CreateSession(_ context.Context, seed conversation.Seed) (conversation.Session, error) {
	if !p.handle.Initialized() {
		return nil, apiclient.ErrNotInitialized
	}
	model := p.cfg.ChatModel
	if model == "" {
		model = seed.Model
	}
	if model == "" {
		return nil, errors.MissingField("chat_model")
	}

	prelude := conversation.Prelude(seed)
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(prelude)+1)
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: conversation.SystemInstruction})
	for _, t := range prelude {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role(t.Speaker), Content: t.Text})
	}
	return &session{p: p, model: model, messages: msgs}, nil
}

type session struct {
	p     *Provider
	model string

	mu       sync.Mutex
	messages []goopenai.ChatCompletionMessage
}

func (s *session) Send(ctx context.Context, msg conversation.Message) (string, error) {
	client, err := s.p.handle.Client()
	if err != nil {
		return "", err
	}

	var spoken string
	if msg.Audio != nil && !msg.Audio.Empty() {
		spoken, err = s.p.transcribe(ctx, client, *msg.Audio)
		if err != nil {
			return "", err
		}
	}
	text := conversation.UserText(msg, spoken)
	if text == "" {
		return "", errors.InvalidInput("message", "message is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: text}
	resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    append(append([]goopenai.ChatCompletionMessage(nil), s.messages...), user),
		Temperature: s.p.cfg.Temperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.ProviderError(conversation.Service, transcription.ErrEmptyResult)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.ProviderError(conversation.Service, transcription.ErrEmptyResult)
	}
	s.messages = append(s.messages, user, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: reply})
	return reply, nil
}

func (p *Provider) transcribe(ctx context.Context, client *goopenai.Client, clip audio.Payload) (string, error) {
	resp, err := client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    p.cfg.TranscriptionModel,
		Reader:   bytes.NewReader(clip.Data),
		FilePath: audio.FileName("follow_up", clip.MIMEType),
	})
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func classify(err error) error {
	appErr := errors.ProviderError(conversation.Service, err).WithDetail("provider", ProviderName)
	var apiErr *goopenai.APIError
	if stderrors.As(err, &apiErr) {
		appErr.WithDetail("status", apiErr.HTTPStatusCode)
		appErr.Retryable = topenai.Retryable(apiErr.HTTPStatusCode)
	}
	return appErr
}

func role(s conversation.Speaker) string {
	if s == conversation.Assistant {
		return goopenai.ChatMessageRoleAssistant
	}
	return goopenai.ChatMessageRoleUser
}
