package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" || cfg.SampleRate != 1.0 || cfg.Interval != 15*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false}, ServiceInfo{Name: "scribe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestStartSpan_RecordsError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartSpan(context.Background(), SpanTranscribe)
	EndSpan(span, errors.New("quota"))

	_, ok := StartSpan(context.Background(), SpanChatTurn)
	EndSpan(ok, nil)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != SpanTranscribe || spans[0].Status.Code != codes.Error {
		t.Errorf("expected errored transcribe span, got %s %v", spans[0].Name, spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event")
	}
	if spans[1].Status.Code == codes.Error {
		t.Error("expected ok span without error status")
	}
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordTranscription(ctx, "whisper-1", OutcomeOK, 2*time.Second)
	m.RecordTranscription(ctx, "whisper-1", OutcomeError, time.Second)
	m.RecordChatTurn(ctx, OutcomeOK)
	m.RecordStoreSave(ctx, OutcomeOK)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[md.Name] += dp.Value
				}
			}
		}
	}
	if totals["scribe.transcriptions"] != 2 {
		t.Errorf("expected 2 transcriptions, got %d", totals["scribe.transcriptions"])
	}
	if totals["scribe.chat_turns"] != 1 || totals["scribe.store.saves"] != 1 {
		t.Errorf("unexpected totals: %v", totals)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.RecordTranscription(context.Background(), "m", OutcomeOK, time.Second)
	m.RecordChatTurn(context.Background(), OutcomeOK)
	m.RecordStoreSave(context.Background(), OutcomeOK)
}
