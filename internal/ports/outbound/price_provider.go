package outbound

import (
	"context"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

// PriceProvider is the interface for any external price source.
type PriceProvider interface {
	// Name returns the provider name recorded as the observation source (e.g., "CoinMarketCap").
	Name() string

	// FetchPrices returns the latest USD observation for each requested symbol the
	// provider knows about. Symbols missing from the provider's response are omitted,
	// so callers must not assume one observation per requested symbol.
	FetchPrices(ctx context.Context, symbols []string) ([]*entity.Observation, error)
}
