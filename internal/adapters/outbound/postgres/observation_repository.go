package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Compile-time check that ObservationRepository implements outbound.ObservationRepository.
var _ outbound.ObservationRepository = (*ObservationRepository)(nil)

var observationColumns = []string{"symbol", "price_usd", "timestamp", "source"}

// ObservationRepository stores price observations in the currency_prices table.
type ObservationRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewObservationRepository creates a new PostgreSQL observation repository.
func NewObservationRepository(pool *pgxpool.Pool, logger *slog.Logger) (*ObservationRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ObservationRepository{
		pool:   pool,
		logger: logger.With("component", "observation-repository"),
	}, nil
}

// InsertBatch appends all observations in a single transaction using COPY. Either every
// row becomes visible or none does. Duplicates are kept as separate rows.
func (r *ObservationRepository) InsertBatch(ctx context.Context, observations []*entity.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(observations))
	for i, o := range observations {
		if o == nil {
			return 0, entity.NewStorageError("insert batch", fmt.Errorf("observation %d is nil", i))
		}
		if err := o.Validate(); err != nil {
			return 0, entity.NewStorageError("insert batch", fmt.Errorf("observation %d: %w", i, err))
		}
		rows = append(rows, []any{
			entity.NormalizeSymbol(o.Symbol),
			decimalToNumeric(o.PriceUSD),
			o.Timestamp.UTC(),
			o.Source,
		})
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, entity.NewStorageError("insert batch", fmt.Errorf("beginning transaction: %w", err))
	}
	defer rollback(ctx, tx, r.logger)

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"currency_prices"}, observationColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, entity.NewStorageError("insert batch", fmt.Errorf("copying rows: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, entity.NewStorageError("insert batch", fmt.Errorf("committing transaction: %w", err))
	}

	r.logger.Debug("inserted observations", "count", copied)
	return int(copied), nil
}

// LatestAtOrBefore returns the observation with the greatest timestamp not after at.
// Rows sharing that timestamp are resolved in favour of the most recent insert.
// It returns nil, nil when the symbol has no qualifying row.
func (r *ObservationRepository) LatestAtOrBefore(ctx context.Context, symbol string, at time.Time) (*entity.Observation, error) {
	var (
		o     entity.Observation
		price pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, symbol, price_usd, timestamp, source, ingested_at
		FROM currency_prices
		WHERE symbol = $1 AND timestamp <= $2
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, entity.NormalizeSymbol(symbol), at.UTC()).Scan(
		&o.ID, &o.Symbol, &price, &o.Timestamp, &o.Source, &o.IngestedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, entity.NewStorageError("latest at or before", err)
	}

	o.PriceUSD = numericToDecimal(price)
	o.Timestamp = o.Timestamp.UTC()
	o.IngestedAt = o.IngestedAt.UTC()
	return &o, nil
}

// Ping checks that the database is reachable.
func (r *ObservationRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return entity.NewStorageError("ping", err)
	}
	return nil
}
