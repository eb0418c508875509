// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

// ObservationRepository is the append-only price store.
type ObservationRepository interface {
	// InsertBatch stores all observations atomically: either the whole batch becomes
	// visible to readers or none of it does. An empty batch is a no-op that never
	// touches storage. Returns the number of rows inserted.
	InsertBatch(ctx context.Context, observations []*entity.Observation) (int, error)

	// LatestAtOrBefore returns the observation for symbol with the greatest timestamp
	// not after at. Ties on timestamp resolve to the most recently inserted row.
	// Returns (nil, nil) when no such observation exists.
	LatestAtOrBefore(ctx context.Context, symbol string, at time.Time) (*entity.Observation, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
