package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/scribe/logger"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// InitMeter installs a global OTLP/HTTP meter provider.
// The caller shuts the returned provider down on exit.
func InitMeter(ctx context.Context, cfg Config, svc ServiceInfo) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(svc)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", svc.Name,
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Metrics holds the scribe instruments.
type Metrics struct {
	transcriptions        metric.Int64Counter
	transcriptionDuration metric.Float64Histogram
	chatTurns             metric.Int64Counter
	storeSaves            metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	transcriptions, err := meter.Int64Counter("scribe.transcriptions",
		metric.WithDescription("Transcription attempts by model and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scribe.transcriptions counter: %w", err)
	}

	transcriptionDuration, err := meter.Float64Histogram("scribe.transcription.duration",
		metric.WithDescription("Duration of transcription calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scribe.transcription.duration histogram: %w", err)
	}

	chatTurns, err := meter.Int64Counter("scribe.chat_turns",
		metric.WithDescription("Conversation turns by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scribe.chat_turns counter: %w", err)
	}

	storeSaves, err := meter.Int64Counter("scribe.store.saves",
		metric.WithDescription("Snapshot writes by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating scribe.store.saves counter: %w", err)
	}

	return &Metrics{
		transcriptions:        transcriptions,
		transcriptionDuration: transcriptionDuration,
		chatTurns:             chatTurns,
		storeSaves:            storeSaves,
	}, nil
}

// DefaultMetrics builds Metrics on the global meter provider, which is a
// no-op until InitMeter runs.
func DefaultMetrics() *Metrics {
	m, err := NewMetrics(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn("metrics unavailable", logger.ErrorFields("new_metrics", err))
		return nil
	}
	return m
}

// RecordTranscription records one transcription call. Nil receivers are ignored.
func (m *Metrics) RecordTranscription(ctx context.Context, model, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transcriptions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	))
	m.transcriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("model", model),
	))
}

// RecordChatTurn records one conversation turn.
func (m *Metrics) RecordChatTurn(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.chatTurns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStoreSave records one snapshot write.
func (m *Metrics) RecordStoreSave(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.storeSaves.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
