package outbound

import (
	"context"
	"time"
)

// IngestionMetrics records ingestion run metrics without tying services to a telemetry backend.
type IngestionMetrics interface {
	// RecordRun records the duration and outcome ("success" or "failure") of a run.
	RecordRun(ctx context.Context, duration time.Duration, status string)

	// RecordObservationsInserted adds n to the inserted-observations counter.
	RecordObservationsInserted(ctx context.Context, n int)

	// RecordProviderFailure counts a failed fetch for the named provider.
	RecordProviderFailure(ctx context.Context, provider string)
}
