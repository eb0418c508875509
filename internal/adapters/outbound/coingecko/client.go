// Package coingecko implements the PriceProvider interface using CoinGecko's API.
// Symbols are translated to CoinGecko coin IDs before the request and back afterwards;
// symbols without a known coin ID are skipped.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/pkg/httpclient"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// ProviderName is recorded as the source of every observation from this adapter.
const ProviderName = "CoinGecko"

// maxIDsPerRequest is the /simple/price limit.
const maxIDsPerRequest = 250

// Compile-time check that Client implements outbound.PriceProvider.
var _ outbound.PriceProvider = (*Client)(nil)

// ClientConfig holds configuration for the CoinGecko client.
type ClientConfig struct {
	// APIKey is the CoinGecko Pro API key.
	APIKey string

	// BaseURL is the CoinGecko API base URL.
	// Defaults to https://pro-api.coingecko.com/api/v3
	BaseURL string

	// CoinIDs maps uppercase symbols to CoinGecko coin IDs. Defaults to DefaultCoinIDs.
	CoinIDs map[string]string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// RateLimitPerMin defaults to 450 to stay safely under CoinGecko Pro's 500/min limit.
	RateLimitPerMin int

	// Logger is the structured logger for the client.
	Logger *slog.Logger

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://pro-api.coingecko.com/api/v3",
		CoinIDs:         DefaultCoinIDs,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		RateLimitPerMin: 450,
		Logger:          slog.Default(),
	}
}

// Client implements PriceProvider using CoinGecko's API.
type Client struct {
	config  ClientConfig
	http    *httpclient.Client
	logger  *slog.Logger
	symbols map[string]string // coin ID -> symbol
}

// NewClient creates a new CoinGecko API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, entity.NewConfigurationError("COINGECKO_API_KEY is required")
	}

	applyDefaults(&config, ClientConfigDefaults())
	if err := checkUniqueCoinIDs(config.CoinIDs); err != nil {
		return nil, entity.NewConfigurationError("%v", err)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	logger := config.Logger.With("component", "coingecko-client")

	symbols := make(map[string]string, len(config.CoinIDs))
	for sym, id := range config.CoinIDs {
		symbols[id] = entity.NormalizeSymbol(sym)
	}

	return &Client{
		config: config,
		http: httpclient.NewClient(httpclient.Config{
			Timeout:         config.Timeout,
			MaxRetries:      config.MaxRetries,
			InitialBackoff:  config.InitialBackoff,
			MaxBackoff:      config.MaxBackoff,
			RateLimitPerMin: config.RateLimitPerMin,
			HTTPClient:      config.HTTPClient,
		}, logger, parseAPIError),
		logger:  logger,
		symbols: symbols,
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if len(config.CoinIDs) == 0 {
		config.CoinIDs = defaults.CoinIDs
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// FetchPrices fetches current USD prices via /simple/price. Observations are returned in
// the order the symbols were requested.
func (c *Client) FetchPrices(ctx context.Context, symbols []string) ([]*entity.Observation, error) {
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		id, ok := c.config.CoinIDs[entity.NormalizeSymbol(sym)]
		if !ok {
			c.logger.Debug("no coin id for symbol", "symbol", sym)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	observations := make([]*entity.Observation, 0, len(ids))
	for i := 0; i < len(ids); i += maxIDsPerRequest {
		end := min(i+maxIDsPerRequest, len(ids))

		batch, err := c.fetchBatch(ctx, ids[i:end])
		if err != nil {
			return nil, entity.NewProviderError(ProviderName, fmt.Errorf("fetching batch starting at %d: %w", i, err))
		}
		observations = append(observations, batch...)
	}

	return observations, nil
}

func (c *Client) fetchBatch(ctx context.Context, ids []string) ([]*entity.Observation, error) {
	params := url.Values{
		"ids":                     {strings.Join(ids, ",")},
		"vs_currencies":           {"usd"},
		"include_last_updated_at": {"true"},
		"precision":               {"full"},
	}

	var response simplePriceResponse
	err := c.http.GetJSON(ctx, httpclient.RequestConfig{
		URL:     fmt.Sprintf("%s/simple/price?%s", c.config.BaseURL, params.Encode()),
		Headers: map[string]string{"x-cg-pro-api-key": c.config.APIKey},
	}, &response)
	if err != nil {
		return nil, err
	}

	observations := make([]*entity.Observation, 0, len(ids))
	for _, id := range ids {
		data, ok := response[id]
		if !ok || !data.USD.Valid {
			continue
		}
		obs, err := c.toObservation(id, data.USD.Decimal, data.LastUpdated)
		if err != nil {
			c.logger.Warn("skipping unusable quote", "coinId", id, "error", err)
			continue
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

func (c *Client) toObservation(id string, price decimal.Decimal, lastUpdated int64) (*entity.Observation, error) {
	if lastUpdated <= 0 {
		return nil, fmt.Errorf("missing last_updated_at")
	}
	return entity.NewObservation(c.symbols[id], price, time.Unix(lastUpdated, 0), ProviderName)
}

func parseAPIError(statusCode int, body []byte) error {
	if statusCode < 400 {
		return nil
	}
	var apiErr coinGeckoError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil
	}
	if apiErr.Error != "" {
		return fmt.Errorf("API error (HTTP %d): %s", statusCode, apiErr.Error)
	}
	if apiErr.Status != nil && apiErr.Status.ErrorMessage != "" {
		return fmt.Errorf("API error %d (HTTP %d): %s", apiErr.Status.ErrorCode, statusCode, apiErr.Status.ErrorMessage)
	}
	return nil
}
