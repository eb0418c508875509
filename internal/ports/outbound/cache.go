package outbound

import (
	"context"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

// ConversionCache holds recently computed conversions for a short freshness window.
// It is advisory: a miss or a failure never changes the answer, only its cost.
type ConversionCache interface {
	// Get returns the cached conversion for key, or (nil, nil) on a miss.
	Get(ctx context.Context, key string) (*entity.Conversion, error)

	// Set stores a conversion under key for ttl.
	Set(ctx context.Context, key string, conversion *entity.Conversion, ttl time.Duration) error

	// Close releases the cache's resources.
	Close() error
}
