// Package app wires configured adapters into the services shared by the spotrate binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/archon-research/spotrate/internal/adapters/outbound/coingecko"
	"github.com/archon-research/spotrate/internal/adapters/outbound/coinmarketcap"
	"github.com/archon-research/spotrate/internal/adapters/outbound/memory"
	"github.com/archon-research/spotrate/internal/adapters/outbound/postgres"
	"github.com/archon-research/spotrate/internal/adapters/outbound/redis"
	"github.com/archon-research/spotrate/internal/adapters/outbound/telemetry"
	"github.com/archon-research/spotrate/internal/config"
	"github.com/archon-research/spotrate/internal/ports/outbound"
	"github.com/archon-research/spotrate/internal/services/ingestion"
)

// NewRegistry registers every provider that has a credential, CoinMarketCap first.
// Providers without one are logged and left out.
func NewRegistry(cfg config.Config, logger *slog.Logger) (*ingestion.Registry, error) {
	registry := ingestion.NewRegistry(logger)

	if err := registry.TryRegister(coinmarketcap.ProviderName, func() (outbound.PriceProvider, error) {
		return coinmarketcap.NewClient(coinmarketcap.ClientConfig{
			APIKey:  cfg.CoinMarketCap.APIKey,
			BaseURL: cfg.CoinMarketCap.BaseURL,
			Logger:  logger,
		})
	}); err != nil {
		return nil, err
	}

	if err := registry.TryRegister(coingecko.ProviderName, func() (outbound.PriceProvider, error) {
		return coingecko.NewClient(coingecko.ClientConfig{
			APIKey:  cfg.CoinGecko.APIKey,
			BaseURL: cfg.CoinGecko.BaseURL,
			CoinIDs: cfg.CoinGeckoIDs,
			Logger:  logger,
		})
	}); err != nil {
		return nil, err
	}

	return registry, nil
}

// Store is the price store together with its release function.
type Store struct {
	outbound.ObservationRepository
	Close func()
}

// OpenStore opens the Postgres store when DatabaseURL is set and the in-memory store
// otherwise.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory price store")
		return &Store{ObservationRepository: memory.NewObservationRepository(), Close: func() {}}, nil
	}

	pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	repo, err := postgres.NewObservationRepository(pool, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating observation repository: %w", err)
	}
	return &Store{ObservationRepository: repo, Close: pool.Close}, nil
}

// OpenCache opens the Redis conversion cache when an address is configured and a bounded
// in-memory cache otherwise.
func OpenCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (outbound.ConversionCache, error) {
	if cfg.Redis.Addr == "" {
		return memory.NewConversionCache(0), nil
	}

	cache, err := redis.NewConversionCache(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating redis cache: %w", err)
	}
	if err := cache.Ping(ctx); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return cache, nil
}

// NewIngestion builds the ingestion service with OpenTelemetry metrics on the global
// meter provider.
func NewIngestion(cfg config.Config, registry *ingestion.Registry, repo outbound.ObservationRepository, logger *slog.Logger) (*ingestion.Service, error) {
	metrics, err := telemetry.NewMetrics("spotrate/ingestion")
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	return ingestion.NewService(ingestion.Config{
		Symbols:         cfg.Symbols,
		ProviderTimeout: cfg.Fetch.ProviderTimeout,
		PersistTimeout:  cfg.Fetch.PersistTimeout,
		StaleAfter:      cfg.StaleAfter(),
		Logger:          logger,
	}, registry, repo, metrics)
}

// InitTelemetry installs the OTLP meter and tracer providers as configured. The returned
// function flushes and stops both.
func InitTelemetry(ctx context.Context, cfg config.Config, service, version string) (func(context.Context) error, error) {
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    service,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Stdout:         cfg.TraceStdout,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		_ = shutdownMetrics(ctx)
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}

	return func(ctx context.Context) error {
		return errors.Join(shutdownTracer(ctx), shutdownMetrics(ctx))
	}, nil
}
