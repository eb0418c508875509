// Package coinmarketcap implements the PriceProvider interface using CoinMarketCap's
// quotes/latest endpoint. All requested symbols are fetched in a single request.
package coinmarketcap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/pkg/httpclient"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// ProviderName is recorded as the source of every observation from this adapter.
const ProviderName = "CoinMarketCap"

const apiKeyHeader = "X-CMC_PRO_API_KEY"

// Compile-time check that Client implements outbound.PriceProvider.
var _ outbound.PriceProvider = (*Client)(nil)

// ClientConfig holds configuration for the CoinMarketCap client.
type ClientConfig struct {
	// APIKey is the CoinMarketCap Pro API key. Required.
	APIKey string

	// BaseURL defaults to https://pro-api.coinmarketcap.com
	BaseURL string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the number of retries for 429/5xx responses and transport errors.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RateLimitPerMin defaults to 30, the basic plan's limit.
	RateLimitPerMin int

	Logger     *slog.Logger
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://pro-api.coinmarketcap.com",
		Timeout:         15 * time.Second,
		MaxRetries:      2,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		RateLimitPerMin: 30,
		Logger:          slog.Default(),
	}
}

// Client implements PriceProvider using CoinMarketCap's API.
type Client struct {
	config ClientConfig
	http   *httpclient.Client
	logger *slog.Logger
}

// NewClient creates a new CoinMarketCap client. It fails with a configuration error
// when no API key is supplied.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, entity.NewConfigurationError("COINMARKETCAP_API_KEY is required")
	}

	applyDefaults(&config, ClientConfigDefaults())
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	logger := config.Logger.With("component", "coinmarketcap-client")

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
		logger: logger,
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
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

// FetchPrices returns the latest USD quote for each requested symbol that CoinMarketCap
// knows. Symbols absent from the response, or quoted without a usable price, are skipped.
func (c *Client) FetchPrices(ctx context.Context, symbols []string) ([]*entity.Observation, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	requested := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = entity.NormalizeSymbol(s); s != "" {
			requested = append(requested, s)
		}
	}

	params := url.Values{
		"symbol":  {strings.Join(requested, ",")},
		"convert": {"USD"},
	}
	reqURL := fmt.Sprintf("%s/v1/cryptocurrency/quotes/latest?%s", c.config.BaseURL, params.Encode())

	var response quotesLatestResponse
	err := c.http.GetJSON(ctx, httpclient.RequestConfig{
		URL:     reqURL,
		Headers: map[string]string{apiKeyHeader: c.config.APIKey},
	}, &response)
	if err != nil {
		return nil, entity.NewProviderError(ProviderName, err)
	}

	observations := make([]*entity.Observation, 0, len(requested))
	for _, symbol := range requested {
		coin, ok := response.Data[symbol]
		if !ok {
			c.logger.Debug("symbol missing from response", "symbol", symbol)
			continue
		}
		usd, ok := coin.Quote["USD"]
		if !ok || !usd.Price.Valid {
			c.logger.Debug("symbol has no USD quote", "symbol", symbol)
			continue
		}

		obs, err := entity.NewObservation(symbol, usd.Price.Decimal, usd.LastUpdated, ProviderName)
		if err != nil {
			c.logger.Warn("skipping unusable quote", "symbol", symbol, "error", err)
			continue
		}
		observations = append(observations, obs)
	}

	return observations, nil
}

// parseAPIError surfaces the status block CoinMarketCap embeds in every response,
// including 4xx bodies and 200 responses that nonetheless carry an error code.
func parseAPIError(statusCode int, body []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Status == nil {
		return nil
	}
	if envelope.Status.ErrorCode == 0 {
		return nil
	}
	return fmt.Errorf("CoinMarketCap API error %d (HTTP %d): %s",
		envelope.Status.ErrorCode, statusCode, envelope.Status.ErrorMessage)
}
