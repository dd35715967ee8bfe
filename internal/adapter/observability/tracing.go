package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/esurv/flowqueue/internal/config"
)

// SetupTracing wires an OTLP gRPC exporter when an endpoint is configured
// and installs the tracer provider that the repo and recovery spans report
// through. Returns the provider shutdown, or (nil, nil) when tracing is off.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return nil, nil
	}
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=observability.setup_tracing exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OTELServiceName),
		semconv.DeploymentEnvironmentKey.String(cfg.AppEnv),
	))
	if err != nil {
		return nil, fmt.Errorf("op=observability.setup_tracing resource: %w", err)
	}

	ratio := sampleRatio(cfg)
	slog.Info("tracing configured",
		slog.String("endpoint", cfg.OTLPEndpoint),
		slog.Float64("sample_ratio", ratio))

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// sampleRatio resolves the trace sampling fraction: TRACE_SAMPLE_RATIO when
// set, otherwise every trace in dev and one in ten in prod. Claim and sweep
// spans are cheap but high-volume, so production keeps a thin sample.
func sampleRatio(cfg config.Config) float64 {
	if cfg.TraceSampleRatio > 0 {
		return cfg.TraceSampleRatio
	}
	if cfg.IsProd() {
		return 0.1
	}
	return 1.0
}
