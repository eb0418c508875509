// Package httpclient provides a rate-limited, retrying JSON client for provider APIs.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/spotrate/internal/pkg/retry"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Config holds the configuration for the HTTP client.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// RateLimitPerMin is the request budget per minute shared by all calls on this client.
	RateLimitPerMin int

	// HTTPClient overrides the underlying client (tests, custom transports).
	HTTPClient *http.Client
}

// DefaultConfig returns sensible defaults for provider APIs.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      10 * time.Second,
		BackoffFactor:   2.0,
		RateLimitPerMin: 30,
	}
}

// RequestConfig holds per-request configuration.
type RequestConfig struct {
	URL     string
	Headers map[string]string
}

// ErrorParser inspects a response body for an API-specific error. It is called for
// every 2xx and 4xx response and returns nil when the body carries no error.
type ErrorParser func(statusCode int, body []byte) error

// StatusError is returned for non-2xx responses that the ErrorParser did not claim.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.StatusCode == http.StatusTooManyRequests {
		return "rate limited (HTTP 429)"
	}
	if e.StatusCode >= 500 {
		return fmt.Sprintf("server error (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("client error (HTTP %d): %s", e.StatusCode, e.Body)
}

// Client wraps an HTTP client with retry logic and rate limiting.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig retry.Config
	logger      *slog.Logger
	errorParser ErrorParser
}

// NewClient creates a new HTTP client. Zero-valued fields in cfg take DefaultConfig values.
func NewClient(cfg Config, logger *slog.Logger, errorParser ErrorParser) *Client {
	defaults := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = defaults.BackoffFactor
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errorParser == nil {
		errorParser = func(_ int, _ []byte) error { return nil }
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	rps := float64(cfg.RateLimitPerMin) / 60.0

	return &Client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retryConfig: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			BackoffFactor:  cfg.BackoffFactor,
		},
		logger:      logger,
		errorParser: errorParser,
	}
}

// GetJSON performs a GET request and decodes the JSON body into result.
// 429 and 5xx responses and transport failures are retried; everything else is not.
func (c *Client) GetJSON(ctx context.Context, reqCfg RequestConfig, result any) error {
	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", c.retryConfig.MaxRetries,
			"backoff", backoff,
			"error", err,
		)
	}

	return retry.DoVoid(ctx, c.retryConfig, IsRetryable, onRetry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return WrapNonRetryable(fmt.Errorf("rate limiter: %w", err))
		}
		return c.getOnce(ctx, reqCfg, result)
	})
}

func (c *Client) getOnce(ctx context.Context, reqCfg RequestConfig, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqCfg.URL, nil)
	if err != nil {
		return WrapNonRetryable(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range reqCfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if apiErr := c.errorParser(resp.StatusCode, body); apiErr != nil {
		return WrapNonRetryable(apiErr)
	}

	if resp.StatusCode >= 300 {
		return WrapNonRetryable(&StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)})
	}

	if err := json.Unmarshal(body, result); err != nil {
		return WrapNonRetryable(fmt.Errorf("parsing response: %w", err))
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NonRetryableError wraps errors that should not be retried.
type NonRetryableError struct {
	err error
}

func (e *NonRetryableError) Error() string {
	return e.err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.err
}

// WrapNonRetryable wraps an error to indicate it should not be retried.
func WrapNonRetryable(err error) error {
	return &NonRetryableError{err: err}
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}
