// Package telemetry wires OpenTelemetry metrics and tracing.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// MetricConfig holds configuration for the meter provider.
type MetricConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the OTLP gRPC endpoint. Empty disables export.
	OTLPEndpoint string

	// ExportInterval defaults to 15s.
	ExportInterval time.Duration
}

// InitMetrics installs a global meter provider that exports over OTLP gRPC. With no
// endpoint configured it leaves the default no-op provider in place.
func InitMetrics(ctx context.Context, config MetricConfig) (shutdown func(context.Context) error, err error) {
	if config.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if config.ExportInterval <= 0 {
		config.ExportInterval = 15 * time.Second
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

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(config.ExportInterval))),
	)

	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}
