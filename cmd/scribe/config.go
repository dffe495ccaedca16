package main

import (
	"fmt"

	"github.com/kbukum/scribe/apiclient"
	"github.com/kbukum/scribe/audio"
	"github.com/kbukum/scribe/batch"
	"github.com/kbukum/scribe/config"
	copenai "github.com/kbukum/scribe/conversation/openai"
	"github.com/kbukum/scribe/conversation/ollama"
	"github.com/kbukum/scribe/observability"
	"github.com/kbukum/scribe/resilience"
	"github.com/kbukum/scribe/server"
	"github.com/kbukum/scribe/store"
	"github.com/kbukum/scribe/store/file"
	"github.com/kbukum/scribe/store/redis"
	"github.com/kbukum/scribe/store/s3"
	"github.com/kbukum/scribe/store/sqlite"
	topenai "github.com/kbukum/scribe/transcription/openai"
	"github.com/kbukum/scribe/transcription/whisper"
	"github.com/kbukum/scribe/validation"
)

// AppConfig is the scribe process configuration.
type AppConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	// UserID namespaces the persisted collections.
	UserID string `yaml:"user_id" mapstructure:"user_id" validate:"required"`

	Batch         batch.Config         `yaml:"batch" mapstructure:"batch"`
	OpenAI        apiclient.Config     `yaml:"openai" mapstructure:"openai"`
	Transcription TranscriptionConfig  `yaml:"transcription" mapstructure:"transcription"`
	Conversation  ConversationConfig   `yaml:"conversation" mapstructure:"conversation"`
	Store         StoreConfig          `yaml:"store" mapstructure:"store"`
	Persistence   batch.PersistConfig  `yaml:"persistence" mapstructure:"persistence"`
	Audio         AudioConfig          `yaml:"audio" mapstructure:"audio"`
	HTTP          server.Config        `yaml:"http" mapstructure:"http"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// TranscriptionConfig selects and configures transcription backends.
type TranscriptionConfig struct {
	// Providers are tried in order; the first available one serves a call.
	Providers []string          `yaml:"providers" mapstructure:"providers" validate:"min=1,dive,oneof=openai whisper"`
	Retry     resilience.Policy `yaml:"retry" mapstructure:"retry"`
	OpenAI    topenai.Config    `yaml:"openai" mapstructure:"openai"`
	Whisper   whisper.Config    `yaml:"whisper" mapstructure:"whisper"`
}

// ConversationConfig selects and configures chat backends.
type ConversationConfig struct {
	Providers []string       `yaml:"providers" mapstructure:"providers" validate:"min=1,dive,oneof=openai ollama"`
	OpenAI    copenai.Config `yaml:"openai" mapstructure:"openai"`
	Ollama    ollama.Config  `yaml:"ollama" mapstructure:"ollama"`
}

// StoreConfig selects the snapshot store.
type StoreConfig struct {
	Driver string        `yaml:"driver" mapstructure:"driver" validate:"oneof=memory file redis sqlite s3"`
	File   file.Config   `yaml:"file" mapstructure:"file"`
	Redis  redis.Config  `yaml:"redis" mapstructure:"redis"`
	SQLite sqlite.Config `yaml:"sqlite" mapstructure:"sqlite"`
	S3     s3.Config     `yaml:"s3" mapstructure:"s3"`
}

// AudioConfig configures microphone capture. When disabled only uploads
// provide audio.
type AudioConfig struct {
	Enabled bool               `yaml:"enabled" mapstructure:"enabled"`
	FFmpeg  audio.FFmpegConfig `yaml:"ffmpeg" mapstructure:"ffmpeg"`
}

// GetServiceConfig returns the embedded service config.
func (c *AppConfig) GetServiceConfig() *config.ServiceConfig {
	return &c.ServiceConfig
}

// ApplyDefaults fills every section's defaults.
func (c *AppConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "scribe"
	}
	c.ServiceConfig.ApplyDefaults()
	if c.UserID == "" {
		c.UserID = "local"
	}
	c.Batch.ApplyDefaults()
	if len(c.Transcription.Providers) == 0 {
		c.Transcription.Providers = []string{topenai.ProviderName}
	}
	c.Transcription.Whisper.ApplyDefaults()
	if len(c.Conversation.Providers) == 0 {
		c.Conversation.Providers = []string{copenai.ProviderName}
	}
	c.Conversation.OpenAI.ApplyDefaults()
	c.Conversation.Ollama.ApplyDefaults()
	if c.Store.Driver == "" {
		c.Store.Driver = store.DriverFile
	}
	c.Store.File.ApplyDefaults()
	c.Store.Redis.ApplyDefaults()
	c.Store.SQLite.ApplyDefaults()
	c.Store.S3.ApplyDefaults()
	c.Persistence.ApplyDefaults()
	c.Audio.FFmpeg.ApplyDefaults()
	c.HTTP.ApplyDefaults()
	c.Observability.ApplyDefaults()
}

// Validate checks struct tags and the per-section rules that tags cannot
// express.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case store.DriverRedis:
		if err := c.Store.Redis.Validate(); err != nil {
			return fmt.Errorf("store.redis: %w", err)
		}
	case store.DriverS3:
		if err := c.Store.S3.Validate(); err != nil {
			return fmt.Errorf("store.s3: %w", err)
		}
	}
	return nil
}

// loadConfig reads config.yml, .env and environment variables into an
// AppConfig with defaults applied, then validates it.
func loadConfig(opts ...config.Option) (*AppConfig, error) {
	var cfg AppConfig
	if err := config.LoadConfig("scribe", &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
