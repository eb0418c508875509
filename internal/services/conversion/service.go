// Package conversion resolves point-in-time conversion queries against the price store.
package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/inbound"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Compile-time check that Service implements inbound.Converter.
var _ inbound.Converter = (*Service)(nil)

const tracerName = "github.com/archon-research/spotrate/internal/services/conversion"

// RatePrecision is the number of decimal places kept when dividing two prices.
const RatePrecision = 18

// Config holds configuration for the conversion service.
type Config struct {
	// Symbols is the allow-list of convertible tickers. Required.
	Symbols entity.SymbolSet

	// CacheTTL is the freshness window for cached conversions.
	CacheTTL time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns the default configuration.
func ConfigDefaults() Config {
	return Config{
		CacheTTL: 60 * time.Second,
		Logger:   slog.Default(),
	}
}

// Service implements inbound.Converter.
type Service struct {
	config Config
	repo   outbound.ObservationRepository
	cache  outbound.ConversionCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a conversion service. cache may be nil to disable caching.
func NewService(config Config, repo outbound.ObservationRepository, cache outbound.ConversionCache) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if config.Symbols.Len() == 0 {
		return nil, entity.NewConfigurationError("symbol allow-list cannot be empty")
	}

	defaults := ConfigDefaults()
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config: config,
		repo:   repo,
		cache:  cache,
		logger: config.Logger.With("component", "conversion"),
		now:    time.Now,
	}, nil
}

// lookup is the settled result of one point-in-time query.
type lookup struct {
	observation *entity.Observation
	err         error
}

// Convert validates the request, resolves both symbols at the target time and returns
// the rate From/To. Validation runs in order: presence, allow-list, timestamp.
func (s *Service) Convert(ctx context.Context, req inbound.ConvertRequest) (conv *entity.Conversion, err error) {
	from := entity.NormalizeSymbol(req.From)
	to := entity.NormalizeSymbol(req.To)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "conversion.convert",
		trace.WithAttributes(attribute.String("from", from), attribute.String("to", to)))
	defer func() {
		if err != nil {
			span.SetAttributes(attribute.String("error.kind", entity.KindOf(err).String()))
			if entity.IsKind(err, entity.KindInternal) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "conversion failed")
			}
		}
		span.End()
	}()

	if from == "" || to == "" {
		return nil, entity.ErrMissingParameter()
	}
	if !s.config.Symbols.Contains(from) {
		return nil, entity.ErrUnsupportedCurrency(from)
	}
	if !s.config.Symbols.Contains(to) {
		return nil, entity.ErrUnsupportedCurrency(to)
	}

	at := s.now().UTC()
	cacheKey := from + ":" + to + ":latest"
	if strings.TrimSpace(req.At) != "" {
		parsed, ok := parseTimestamp(req.At)
		if !ok {
			return nil, entity.ErrInvalidTimestamp(req.At)
		}
		at = parsed
		cacheKey = from + ":" + to + ":" + at.Format(time.RFC3339Nano)
	}

	if cached := s.cached(ctx, cacheKey); cached != nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	fromCh := s.lookupAsync(ctx, from, at)
	toCh := s.lookupAsync(ctx, to, at)
	fromResult, toResult := <-fromCh, <-toCh

	for _, r := range []lookup{fromResult, toResult} {
		if r.err != nil {
			s.logger.Error("price lookup failed", "from", from, "to", to, "at", at, "error", r.err)
			return nil, entity.NewInternalError(r.err)
		}
	}
	if fromResult.observation == nil {
		return nil, entity.ErrPriceNotFound(from, at)
	}
	if toResult.observation == nil {
		return nil, entity.ErrPriceNotFound(to, at)
	}

	if !toResult.observation.PriceUSD.IsPositive() {
		return nil, entity.NewInternalError(fmt.Errorf("non-positive stored price for %s", to))
	}

	conversion := &entity.Conversion{
		From:           from,
		To:             to,
		Rate:           fromResult.observation.PriceUSD.DivRound(toResult.observation.PriceUSD, RatePrecision),
		QueryTimestamp: at,
		DataTimestamps: map[string]time.Time{
			from: fromResult.observation.Timestamp,
			to:   toResult.observation.Timestamp,
		},
	}

	s.store(ctx, cacheKey, conversion)
	return conversion, nil
}

func (s *Service) lookupAsync(ctx context.Context, symbol string, at time.Time) <-chan lookup {
	ch := make(chan lookup, 1)
	go func() {
		obs, err := s.repo.LatestAtOrBefore(ctx, symbol, at)
		ch <- lookup{observation: obs, err: err}
	}()
	return ch
}

// cached returns a cache hit or nil. Cache errors are logged and treated as misses.
func (s *Service) cached(ctx context.Context, key string) *entity.Conversion {
	if s.cache == nil {
		return nil
	}
	conv, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("conversion cache read failed", "key", key, "error", err)
		return nil
	}
	return conv
}

func (s *Service) store(ctx context.Context, key string, conv *entity.Conversion) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, conv, s.config.CacheTTL); err != nil {
		s.logger.Warn("conversion cache write failed", "key", key, "error", err)
	}
}
