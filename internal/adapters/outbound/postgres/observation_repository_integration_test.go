//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archon-research/spotrate/internal/adapters/outbound/postgres"
	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/testutil"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func newObs(t *testing.T, symbol, price string, ts time.Time) *entity.Observation {
	t.Helper()
	o, err := entity.NewObservation(symbol, decimal.RequireFromString(price), ts, "CoinMarketCap")
	require.NoError(t, err)
	return o
}

func setupRepo(t *testing.T) *postgres.ObservationRepository {
	t.Helper()
	pool := testutil.SetupPostgres(t)
	repo, err := postgres.NewObservationRepository(pool, nil)
	require.NoError(t, err)
	return repo
}

func TestObservationRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	repo := setupRepo(t)

	require.NoError(t, repo.Ping(ctx))

	t.Run("empty batch is a no-op", func(t *testing.T) {
		n, err := repo.InsertBatch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("insert and look up", func(t *testing.T) {
		n, err := repo.InsertBatch(ctx, []*entity.Observation{
			newObs(t, "BTC", "45678.12345678", t0),
			newObs(t, "ETH", "2500.5", t0),
			newObs(t, "BTC", "46000", t0.Add(time.Minute)),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := repo.LatestAtOrBefore(ctx, "btc", t0.Add(30*time.Second))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "BTC", got.Symbol)
		assert.Equal(t, "45678.12345678", got.PriceUSD.String())
		assert.True(t, got.Timestamp.Equal(t0))
		assert.Equal(t, time.UTC, got.Timestamp.Location())
		assert.False(t, got.IngestedAt.IsZero())

		got, err = repo.LatestAtOrBefore(ctx, "BTC", t0.Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "46000", got.PriceUSD.String())
	})

	t.Run("absent before first observation", func(t *testing.T) {
		got, err := repo.LatestAtOrBefore(ctx, "BTC", t0.Add(-time.Nanosecond))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		got, err := repo.LatestAtOrBefore(ctx, "SOL", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicates are kept and latest insert wins", func(t *testing.T) {
		ts := t0.Add(10 * time.Minute)
		_, err := repo.InsertBatch(ctx, []*entity.Observation{newObs(t, "ETH", "1", ts)})
		require.NoError(t, err)
		_, err = repo.InsertBatch(ctx, []*entity.Observation{newObs(t, "ETH", "2", ts)})
		require.NoError(t, err)

		got, err := repo.LatestAtOrBefore(ctx, "ETH", ts)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "2", got.PriceUSD.String())
	})

	t.Run("invalid batch is rejected whole", func(t *testing.T) {
		bad := &entity.Observation{Symbol: "XRP", PriceUSD: decimal.NewFromInt(-1), Timestamp: t0, Source: "x"}
		_, err := repo.InsertBatch(ctx, []*entity.Observation{newObs(t, "XRP", "0.5", t0), bad})
		require.Error(t, err)
		assert.True(t, entity.IsKind(err, entity.KindStorage))

		got, err := repo.LatestAtOrBefore(ctx, "XRP", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestObservationRepository_ConcurrentBatches(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	repo := setupRepo(t)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ts := t0.Add(time.Duration(w*10+i) * time.Second)
				_, err := repo.InsertBatch(ctx, []*entity.Observation{
					newObs(t, "BTC", "100", ts),
					newObs(t, "ETH", "10", ts),
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	btc, err := repo.LatestAtOrBefore(ctx, "BTC", t0.Add(time.Hour))
	require.NoError(t, err)
	eth, err := repo.LatestAtOrBefore(ctx, "ETH", t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, btc)
	require.NotNil(t, eth)
	assert.True(t, btc.Timestamp.Equal(eth.Timestamp))
}
