// Package config loads the spotrate process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/archon-research/spotrate/internal/adapters/outbound/coingecko"
	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/pkg/env"
)

// Config is the full process configuration. Empty credentials and addresses are valid:
// they switch the matching component off or to its in-memory variant.
type Config struct {
	Symbols entity.SymbolSet

	CoinMarketCap ProviderConfig
	CoinGecko     ProviderConfig

	// CoinGeckoIDs maps symbols to CoinGecko coin IDs.
	CoinGeckoIDs map[string]string

	// DatabaseURL selects the Postgres store. Empty means the in-memory store.
	DatabaseURL string

	Redis    RedisConfig
	CacheTTL time.Duration

	HTTPAddr   string
	HealthAddr string

	Fetch FetchConfig

	RateLimitRequests int
	RateLimitWindow   time.Duration

	AWS AWSConfig

	OTLPEndpoint string
	Environment  string

	// TraceStdout prints spans to stdout when no OTLP endpoint is set.
	TraceStdout     bool
	TraceSampleRate float64
}

// ProviderConfig holds the credential and endpoint of one price provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

// RedisConfig selects the Redis conversion cache. Empty Addr means the in-memory cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FetchConfig controls the ingestion cadence and its retry policy.
type FetchConfig struct {
	Cadence         time.Duration
	RetryLimit      int
	RetryDelay      time.Duration
	RetryBackoff    bool
	ProviderTimeout time.Duration
	PersistTimeout  time.Duration
}

// AWSConfig holds settings for the SQS-driven worker.
type AWSConfig struct {
	Region      string
	SQSQueueURL string

	// SQSEndpoint overrides the SQS endpoint, e.g. for LocalStack.
	SQSEndpoint string
}

// LoadDotEnv loads .env and .env.local if present. Variables already set in the
// environment take precedence.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// Load reads the configuration from the environment. All malformed values are reported
// together.
func Load() (Config, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v, err := env.GetInt(key, def)
		errs = append(errs, err)
		return v
	}
	durationVar := func(key string, def time.Duration) time.Duration {
		v, err := env.GetDuration(key, def)
		errs = append(errs, err)
		return v
	}
	boolVar := func(key string, def bool) bool {
		v, err := env.GetBool(key, def)
		errs = append(errs, err)
		return v
	}
	floatVar := func(key string, def float64) float64 {
		v, err := env.GetFloat(key, def)
		errs = append(errs, err)
		return v
	}

	cfg := Config{
		Symbols: entity.ParseSymbolSet(env.Get("CRYPTO_SYMBOLS", entity.DefaultSymbols)),
		CoinMarketCap: ProviderConfig{
			APIKey:  env.Get("COINMARKETCAP_API_KEY", ""),
			BaseURL: env.Get("COINMARKETCAP_BASE_URL", ""),
		},
		CoinGecko: ProviderConfig{
			APIKey:  env.Get("COINGECKO_API_KEY", ""),
			BaseURL: env.Get("COINGECKO_BASE_URL", ""),
		},
		DatabaseURL: env.Get("DATABASE_URL", ""),
		Redis: RedisConfig{
			Addr:     env.Get("REDIS_ADDR", ""),
			Password: env.Get("REDIS_PASSWORD", ""),
			DB:       intVar("REDIS_DB", 0),
		},
		CacheTTL:   durationVar("CACHE_TTL", 60*time.Second),
		HTTPAddr:   ":" + env.Get("PORT", "3000"),
		HealthAddr: env.Get("HEALTH_ADDR", ":8081"),
		Fetch: FetchConfig{
			Cadence:         durationVar("FETCH_CADENCE", time.Minute),
			RetryLimit:      intVar("FETCH_RETRY_LIMIT", 1),
			RetryDelay:      durationVar("FETCH_RETRY_DELAY", 20*time.Second),
			RetryBackoff:    boolVar("FETCH_RETRY_BACKOFF", true),
			ProviderTimeout: durationVar("PROVIDER_TIMEOUT", 30*time.Second),
			PersistTimeout:  durationVar("PERSIST_TIMEOUT", 30*time.Second),
		},
		RateLimitRequests: intVar("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   durationVar("RATE_LIMIT_WINDOW", 15*time.Minute),
		AWS: AWSConfig{
			Region:      env.Get("AWS_REGION", "us-east-1"),
			SQSQueueURL: env.Get("AWS_SQS_QUEUE_URL", ""),
			SQSEndpoint: env.Get("AWS_SQS_ENDPOINT", ""),
		},
		OTLPEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Environment:  env.Get("DEPLOYMENT_ENVIRONMENT", "development"),

		TraceStdout:     boolVar("OTEL_TRACES_STDOUT", false),
		TraceSampleRate: floatVar("OTEL_TRACES_SAMPLE_RATE", 1.0),
	}

	ids, err := coingecko.ParseCoinIDs(env.Get("COINGECKO_IDS", ""))
	errs = append(errs, err)
	cfg.CoinGeckoIDs = ids

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Symbols.Len() == 0 {
		return entity.NewConfigurationError("CRYPTO_SYMBOLS must name at least one symbol")
	}
	if c.Fetch.Cadence <= 0 {
		return entity.NewConfigurationError("FETCH_CADENCE must be positive, got %s", c.Fetch.Cadence)
	}
	if c.Fetch.RetryLimit < 0 {
		return entity.NewConfigurationError("FETCH_RETRY_LIMIT must not be negative, got %d", c.Fetch.RetryLimit)
	}
	if c.RateLimitRequests < 0 {
		return entity.NewConfigurationError("RATE_LIMIT_REQUESTS must not be negative, got %d", c.RateLimitRequests)
	}
	if c.RateLimitWindow <= 0 {
		return entity.NewConfigurationError("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return entity.NewConfigurationError("OTEL_TRACES_SAMPLE_RATE must be between 0 and 1, got %v", c.TraceSampleRate)
	}
	if c.CacheTTL < 0 {
		return entity.NewConfigurationError("CACHE_TTL must not be negative, got %s", c.CacheTTL)
	}
	return nil
}

// StaleAfter is how long ingestion may go without a successful run before it reports
// unhealthy.
func (c Config) StaleAfter() time.Duration {
	return 5 * c.Fetch.Cadence
}

// String summarizes the configuration for startup logs without credentials.
func (c Config) String() string {
	store := "memory"
	if c.DatabaseURL != "" {
		store = "postgres"
	}
	cache := "memory"
	if c.Redis.Addr != "" {
		cache = "redis"
	}
	return fmt.Sprintf("symbols=%s store=%s cache=%s cadence=%s coinmarketcap=%t coingecko=%t",
		c.Symbols, store, cache, c.Fetch.Cadence, c.CoinMarketCap.APIKey != "", c.CoinGecko.APIKey != "")
}
