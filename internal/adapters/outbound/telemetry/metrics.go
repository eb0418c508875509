package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Compile-time check that Metrics implements outbound.IngestionMetrics.
var _ outbound.IngestionMetrics = (*Metrics)(nil)

// Metrics records ingestion metrics with OpenTelemetry instruments.
type Metrics struct {
	runDuration      metric.Float64Histogram
	observations     metric.Int64Counter
	providerFailures metric.Int64Counter
}

// NewMetrics creates the ingestion instruments on the global meter provider.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates the ingestion instruments on the given meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	duration, err := meter.Float64Histogram(
		"ingestion_run_duration_seconds",
		metric.WithDescription("Time taken by one ingestion run"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion_run_duration_seconds histogram: %w", err)
	}

	observations, err := meter.Int64Counter(
		"observations_inserted_total",
		metric.WithDescription("Total number of price observations written to the store"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create observations_inserted_total counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"provider_failures_total",
		metric.WithDescription("Total number of failed provider fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_failures_total counter: %w", err)
	}

	return &Metrics{
		runDuration:      duration,
		observations:     observations,
		providerFailures: failures,
	}, nil
}

// RecordRun records the duration of an ingestion run.
func (m *Metrics) RecordRun(ctx context.Context, duration time.Duration, status string) {
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// RecordObservationsInserted adds n to the inserted counter.
func (m *Metrics) RecordObservationsInserted(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.observations.Add(ctx, int64(n))
}

// RecordProviderFailure counts one failed fetch for provider.
func (m *Metrics) RecordProviderFailure(ctx context.Context, provider string) {
	m.providerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}
