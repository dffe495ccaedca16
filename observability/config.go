// Package observability wires OpenTelemetry tracing and metrics for scribe.
// When disabled the global no-op providers stay installed, so spans and
// instruments can be used unconditionally.
package observability

import (
	"context"
	"errors"
	"time"
)

// Config configures OTLP export.
type Config struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"min=0,max=1"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// ServiceInfo identifies the process in exported telemetry.
type ServiceInfo struct {
	Name        string
	Version     string
	Environment string
}

// Setup initializes tracing and metrics when enabled and returns a shutdown
// function that flushes both. The shutdown function is never nil.
func Setup(ctx context.Context, cfg Config, svc ServiceInfo) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	tp, err := InitTracer(ctx, cfg, svc)
	if err != nil {
		return nil, err
	}
	mp, err := InitMeter(ctx, cfg, svc)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
