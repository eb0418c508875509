// Package memory provides in-memory implementations of the outbound ports.
// Useful for testing and development; all data is lost on process restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Compile-time check that ObservationRepository implements outbound.ObservationRepository
var _ outbound.ObservationRepository = (*ObservationRepository)(nil)

// ObservationRepository is an append-only log of observations with a per-symbol
// index ordered by (timestamp, insertion order).
type ObservationRepository struct {
	mu sync.RWMutex

	// log holds every observation in insertion order; an observation's ID is its
	// position in log plus one.
	log []entity.Observation

	// index maps a symbol to positions in log, sorted by timestamp and then by position.
	index map[string][]int

	now func() time.Time
}

// NewObservationRepository creates an empty in-memory store.
func NewObservationRepository() *ObservationRepository {
	return &ObservationRepository{
		index: make(map[string][]int),
		now:   time.Now,
	}
}

// InsertBatch appends all observations under a single lock so readers see either
// the whole batch or none of it.
func (r *ObservationRepository) InsertBatch(ctx context.Context, observations []*entity.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}
	for i, o := range observations {
		if o == nil {
			return 0, entity.NewStorageError("inserting batch", fmt.Errorf("observation %d is nil", i))
		}
		if err := o.Validate(); err != nil {
			return 0, entity.NewStorageError("inserting batch", fmt.Errorf("observation %d: %w", i, err))
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, entity.NewStorageError("inserting batch", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ingestedAt := r.now().UTC()
	for _, o := range observations {
		pos := len(r.log)
		stored := *o
		stored.ID = int64(pos + 1)
		stored.Symbol = entity.NormalizeSymbol(o.Symbol)
		stored.PriceUSD = o.PriceUSD.Round(entity.PriceScale)
		stored.Timestamp = o.Timestamp.UTC()
		stored.IngestedAt = ingestedAt
		r.log = append(r.log, stored)

		positions := r.index[stored.Symbol]
		// Upper bound on timestamp: equal timestamps land after earlier inserts.
		at := sort.Search(len(positions), func(i int) bool {
			return r.log[positions[i]].Timestamp.After(stored.Timestamp)
		})
		positions = append(positions, 0)
		copy(positions[at+1:], positions[at:])
		positions[at] = pos
		r.index[stored.Symbol] = positions
	}

	return len(observations), nil
}

// LatestAtOrBefore returns the newest observation for symbol not after at, preferring the
// most recently inserted one on a timestamp tie. Returns (nil, nil) when there is none.
func (r *ObservationRepository) LatestAtOrBefore(ctx context.Context, symbol string, at time.Time) (*entity.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, entity.NewStorageError("querying latest observation", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	positions := r.index[entity.NormalizeSymbol(symbol)]
	n := sort.Search(len(positions), func(i int) bool {
		return r.log[positions[i]].Timestamp.After(at)
	})
	if n == 0 {
		return nil, nil
	}

	found := r.log[positions[n-1]]
	return &found, nil
}

// Ping always succeeds.
func (r *ObservationRepository) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored observations.
func (r *ObservationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.log)
}

// All returns a copy of every stored observation in insertion order.
func (r *ObservationRepository) All() []entity.Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.Observation, len(r.log))
	copy(out, r.log)
	return out
}
