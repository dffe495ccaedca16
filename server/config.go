package server

import (
	"fmt"
	"time"

	"github.com/kbukum/scribe/server/middleware"
)

// Config configures the HTTP listener.
type Config struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`

	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	// WriteTimeout stays 0 by default: chat turns can outlast any fixed bound.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`

	// MaxBodySize caps request bodies, e.g. "64MB". Uploads are the largest.
	MaxBodySize string                `yaml:"max_body_size" mapstructure:"max_body_size"`
	CORS        middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// ApplyDefaults fills zero fields. The listener binds loopback unless told
// otherwise.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "64MB"
	}
	cors := &c.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID}
	}
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("http.port %d out of range", c.Port)
	case c.ReadTimeout < 0, c.WriteTimeout < 0, c.IdleTimeout < 0:
		return fmt.Errorf("http timeouts must not be negative")
	case middleware.ParseSize(c.MaxBodySize, -1) <= 0:
		return fmt.Errorf("http.max_body_size %q is not a size", c.MaxBodySize)
	}
	return nil
}
