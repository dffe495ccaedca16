// Package apiclient holds the process-wide OpenAI client bound to the user's
// credential. Gateways receive the Handle explicitly and fetch the client per
// call, so a credential change takes effect on the next request.
package apiclient

import (
	"errors"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/kbukum/scribe/errors"
)

// ErrNotInitialized is returned by Client before Init or after Clear.
var ErrNotInitialized = apperrors.NotInitialized("openai")

// Config configures the client built on Init.
type Config struct {
	// BaseURL overrides the API endpoint (OpenAI-compatible servers).
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// APIKey initializes the handle at startup when set.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// Handle is a mutex-guarded holder for an *openai.Client.
type Handle struct {
	cfg Config

	mu     sync.RWMutex
	client *openai.Client
}

// NewHandle creates an uninitialized handle. When cfg.APIKey is set the
// handle is initialized with it.
func NewHandle(cfg Config) *Handle {
	h := &Handle{cfg: cfg}
	if cfg.APIKey != "" {
		_ = h.Init(cfg.APIKey)
	}
	return h
}

// Init binds the handle to credential, replacing any previous client.
func (h *Handle) Init(credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return apperrors.MissingField("api_key")
	}

	oc := openai.DefaultConfig(credential)
	if h.cfg.BaseURL != "" {
		oc.BaseURL = h.cfg.BaseURL
	}

	h.mu.Lock()
	h.client = openai.NewClientWithConfig(oc)
	h.mu.Unlock()
	return nil
}

// Clear drops the client. Subsequent Client calls fail with ErrNotInitialized.
func (h *Handle) Clear() {
	h.mu.Lock()
	h.client = nil
	h.mu.Unlock()
}

// Client returns the current client or ErrNotInitialized.
func (h *Handle) Client() (*openai.Client, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.client == nil {
		return nil, ErrNotInitialized
	}
	return h.client, nil
}

// Initialized reports whether a credential is bound.
func (h *Handle) Initialized() bool {
	_, err := h.Client()
	return err == nil
}

// IsNotInitialized reports whether err came from an uninitialized handle.
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized) || apperrors.HasCode(err, apperrors.ErrCodeNotInitialized)
}
