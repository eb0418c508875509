// Package ingestion runs one ingestion pass: fetch prices from every registered
// provider concurrently, aggregate what succeeded, and store it as a single batch.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/inbound"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

const tracerName = "github.com/archon-research/spotrate/internal/services/ingestion"

// Compile-time checks.
var (
	_ inbound.Ingester      = (*Service)(nil)
	_ inbound.HealthChecker = (*Service)(nil)
)

// Config holds configuration for the ingestion service.
type Config struct {
	// Symbols is the allow-list requested from every provider. Required.
	Symbols entity.SymbolSet

	// ProviderTimeout bounds a single provider fetch.
	ProviderTimeout time.Duration

	// PersistTimeout bounds the batch write. The write ignores caller cancellation.
	PersistTimeout time.Duration

	// StaleAfter is how long after the last successful run the service still reports healthy.
	StaleAfter time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns the default configuration for a one-minute cadence.
func ConfigDefaults() Config {
	return Config{
		ProviderTimeout: 30 * time.Second,
		PersistTimeout:  30 * time.Second,
		StaleAfter:      5 * time.Minute,
		Logger:          slog.Default(),
	}
}

// Service implements inbound.Ingester.
type Service struct {
	config   Config
	registry *Registry
	repo     outbound.ObservationRepository
	metrics  outbound.IngestionMetrics
	logger   *slog.Logger
	now      func() time.Time

	ready       atomic.Bool
	mu          sync.RWMutex
	lastSuccess time.Time
}

// NewService creates a new ingestion service. metrics may be nil.
func NewService(config Config, registry *Registry, repo outbound.ObservationRepository, metrics outbound.IngestionMetrics) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if config.Symbols.Len() == 0 {
		return nil, entity.NewConfigurationError("symbol allow-list cannot be empty")
	}

	defaults := ConfigDefaults()
	if config.ProviderTimeout <= 0 {
		config.ProviderTimeout = defaults.ProviderTimeout
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = defaults.PersistTimeout
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Service{
		config:   config,
		registry: registry,
		repo:     repo,
		metrics:  metrics,
		logger:   config.Logger.With("component", "ingestion"),
		now:      time.Now,
	}, nil
}

// fetchOutcome is the settled result of one provider fetch.
type fetchOutcome struct {
	provider     string
	observations []*entity.Observation
	err          error
}

// RunOnce performs one ingestion run. Provider failures are absorbed; the run fails
// only when no provider is registered or the batch write fails. The returned result is
// populated even when err is non-nil.
func (s *Service) RunOnce(ctx context.Context) (*inbound.RunResult, error) {
	result := &inbound.RunResult{StartedAt: s.now()}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingestion.run")
	defer span.End()

	providers := s.registry.Providers()
	if len(providers) == 0 {
		err := entity.NewConfigurationError("no price providers configured")
		s.finish(ctx, result, err)
		return result, err
	}

	outcomes := s.fanOut(ctx, providers)
	batch := s.aggregate(ctx, outcomes, result)
	result.Fetched = len(batch)

	if len(batch) == 0 {
		s.logger.Warn("no observations fetched, skipping persist",
			"providers", len(providers),
			"failed", len(result.FailedProviders))
		s.finish(ctx, result, nil)
		return result, nil
	}

	inserted, err := s.persist(ctx, batch)
	if err != nil {
		s.finish(ctx, result, err)
		return result, err
	}
	result.Inserted = inserted
	s.metrics.RecordObservationsInserted(ctx, inserted)

	s.finish(ctx, result, nil)
	return result, nil
}

// fanOut calls every provider concurrently and waits for all of them. outcomes[i]
// belongs to providers[i].
func (s *Service) fanOut(ctx context.Context, providers []outbound.PriceProvider) []fetchOutcome {
	symbols := s.config.Symbols.Symbols()
	outcomes := make([]fetchOutcome, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p outbound.PriceProvider) {
			defer wg.Done()
			outcomes[i] = s.fetch(ctx, p, symbols)
		}(i, p)
	}
	wg.Wait()

	return outcomes
}

func (s *Service) fetch(ctx context.Context, p outbound.PriceProvider, symbols []string) (out fetchOutcome) {
	out.provider = p.Name()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingestion.fetch",
		trace.WithAttributes(attribute.String("provider", out.provider)))
	defer func() {
		span.SetAttributes(attribute.Int("observations", len(out.observations)))
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, "provider fetch failed")
		}
		span.End()
	}()

	defer func() {
		if r := recover(); r != nil {
			out.observations = nil
			out.err = entity.NewProviderError(out.provider, fmt.Errorf("panic: %v", r))
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	start := s.now()
	observations, err := p.FetchPrices(fetchCtx, symbols)
	if err != nil {
		if !entity.IsKind(err, entity.KindProvider) {
			err = entity.NewProviderError(out.provider, err)
		}
		out.err = err
		return out
	}

	s.logger.Debug("provider fetch complete",
		"provider", out.provider,
		"observations", len(observations),
		"duration", time.Since(start))
	out.observations = observations
	return out
}

// aggregate concatenates successful outcomes in registry order. Observations outside the
// allow-list or that the store would reject are dropped here, so one provider's bad row
// cannot fail the batch carrying every other provider's data.
func (s *Service) aggregate(ctx context.Context, outcomes []fetchOutcome, result *inbound.RunResult) []*entity.Observation {
	var batch []*entity.Observation
	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Error("provider fetch failed", "provider", o.provider, "error", o.err)
			s.metrics.RecordProviderFailure(ctx, o.provider)
			result.FailedProviders = append(result.FailedProviders, o.provider)
			continue
		}

		invalid := 0
		for _, obs := range o.observations {
			if obs == nil {
				continue
			}
			if !s.config.Symbols.Contains(obs.Symbol) {
				s.logger.Warn("dropping observation outside allow-list",
					"provider", o.provider,
					"symbol", obs.Symbol)
				continue
			}
			if err := obs.Validate(); err != nil {
				s.logger.Warn("dropping invalid observation",
					"provider", o.provider,
					"symbol", obs.Symbol,
					"error", err)
				invalid++
				continue
			}
			batch = append(batch, obs)
		}
		if invalid > 0 {
			s.metrics.RecordProviderFailure(ctx, o.provider)
		}
	}
	return batch
}

// persist writes the batch once. The write is detached from ctx so a caller that gives
// up mid-write cannot leave the outcome unknown; PersistTimeout bounds it instead.
func (s *Service) persist(ctx context.Context, batch []*entity.Observation) (int, error) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.PersistTimeout)
	defer cancel()

	persistCtx, span := otel.Tracer(tracerName).Start(persistCtx, "ingestion.persist",
		trace.WithAttributes(attribute.Int("batch.size", len(batch))))
	defer span.End()

	n, err := s.repo.InsertBatch(persistCtx, batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert batch failed")
		if !entity.IsKind(err, entity.KindStorage) {
			err = entity.NewStorageError("insert batch", err)
		}
		return 0, err
	}
	return n, nil
}

func (s *Service) finish(ctx context.Context, result *inbound.RunResult, err error) {
	result.FinishedAt = s.now()
	duration := result.FinishedAt.Sub(result.StartedAt)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Int("observations.fetched", result.Fetched),
		attribute.Int("observations.inserted", result.Inserted),
		attribute.StringSlice("providers.failed", result.FailedProviders),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, entity.KindOf(err).String())
		s.metrics.RecordRun(ctx, duration, "failure")
		s.logger.Error("ingestion run failed",
			"kind", entity.KindOf(err).String(),
			"error", err,
			"fetched", result.Fetched,
			"failedProviders", result.FailedProviders,
			"duration", duration)
		return
	}

	s.metrics.RecordRun(ctx, duration, "success")
	s.mu.Lock()
	s.lastSuccess = result.FinishedAt
	s.mu.Unlock()
	s.ready.Store(true)

	s.logger.Info("ingestion run complete",
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"failedProviders", result.FailedProviders,
		"duration", duration)
}

// IsReady reports whether at least one run has succeeded.
func (s *Service) IsReady() bool {
	return s.ready.Load()
}

// IsHealthy reports whether the last successful run finished within StaleAfter.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	last := s.lastSuccess
	s.mu.RUnlock()
	if last.IsZero() {
		return false
	}
	return s.now().Sub(last) <= s.config.StaleAfter
}

type noopMetrics struct{}

func (noopMetrics) RecordRun(context.Context, time.Duration, string) {}
func (noopMetrics) RecordObservationsInserted(context.Context, int)  {}
func (noopMetrics) RecordProviderFailure(context.Context, string)    {}
