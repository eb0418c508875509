package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// TracerConfig holds configuration for the tracer provider.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC collector address (e.g., "localhost:4317").
	OTLPEndpoint string

	// Stdout exports spans to stdout when no endpoint is set. For local debugging.
	Stdout bool

	// SampleRate is the fraction of traces kept, 0 to 1. Defaults to 1.
	SampleRate float64
}

// InitTracer installs a global tracer provider. With neither an endpoint nor Stdout it
// leaves the default no-op provider in place.
func InitTracer(ctx context.Context, config TracerConfig) (shutdown func(context.Context) error, err error) {
	if config.OTLPEndpoint == "" && !config.Stdout {
		return func(context.Context) error { return nil }, nil
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironmentName(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	if config.OTLPEndpoint != "" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(5*time.Second)),
		trace.WithResource(res),
		trace.WithSampler(sampler(config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

func sampler(rate float64) trace.Sampler {
	switch {
	case rate >= 1.0:
		return trace.AlwaysSample()
	case rate <= 0:
		return trace.NeverSample()
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(rate))
	}
}
