package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestCarryResumesSpanOnAnotherContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "commit")
	defer span.End()

	carried := Carry(ctx)
	if carried.TraceParent() == "" {
		t.Fatal("expected traceparent")
	}

	got := trace.SpanContextFromContext(carried.Resume(context.Background()))
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Fatalf("trace id mismatch: %s vs %s", got.TraceID(), span.SpanContext().TraceID())
	}
	if !got.IsRemote() {
		t.Fatal("expected a remote parent")
	}
}

func TestCarryWithoutSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	carried := Carry(context.Background())
	if carried != nil {
		t.Fatalf("expected nothing carried, got %v", carried)
	}
	ctx := context.Background()
	if carried.Resume(ctx) != ctx {
		t.Fatal("expected ctx unchanged")
	}
}

func TestConfigFromEnv(t *testing.T) {
	cases := []struct {
		name     string
		env      map[string]string
		endpoint string
		ratio    float64
	}{
		{"defaults export nothing", map[string]string{}, "", 1},
		{"endpoint enables export", map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317", "OTEL_SAMPLING_RATIO": "0.25"}, "localhost:4317", 0.25},
		{"disabled wins over endpoint", map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317", "OTEL_ENABLED": "false"}, "", 1},
		{"out of range ratio", map[string]string{"OTEL_SAMPLING_RATIO": "2"}, "", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO"} {
				t.Setenv(k, tc.env[k])
			}
			cfg := ConfigFromEnv("booking-service")
			if cfg.Endpoint != tc.endpoint || cfg.Exporting() != (tc.endpoint != "") {
				t.Fatalf("endpoint = %q exporting = %v", cfg.Endpoint, cfg.Exporting())
			}
			if cfg.SampleRatio != tc.ratio {
				t.Fatalf("ratio = %v, want %v", cfg.SampleRatio, tc.ratio)
			}
		})
	}
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "booking-service"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
