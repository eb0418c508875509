// Package retry runs an operation a bounded number of times with optional
// exponential backoff between attempts.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Config holds configuration for retry behavior.
type Config struct {
	// MaxRetries is the number of attempts after the first one (0 means a single attempt).
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after each retry. 1 keeps it constant.
	BackoffFactor float64

	// Jitter adds rand(0, backoff) to each wait.
	Jitter bool
}

// DefaultConfig returns the configuration used for short-lived calls such as HTTP requests.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Constant returns a configuration that waits delay between every attempt.
func Constant(maxRetries int, delay time.Duration) Config {
	return Config{MaxRetries: maxRetries, InitialBackoff: delay, BackoffFactor: 1}
}

// Exponential returns a configuration that starts at delay and doubles each retry.
func Exponential(maxRetries int, delay time.Duration) Config {
	return Config{MaxRetries: maxRetries, InitialBackoff: delay, BackoffFactor: 2}
}

// IsRetryableFunc determines if an error should trigger a retry.
type IsRetryableFunc func(error) bool

// OnRetryFunc is called before each retry. attempt is 1-indexed.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Always retries every error.
func Always(error) bool { return true }

func (c Config) withDefaults() Config {
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = 2.0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Backoff returns the un-jittered wait before retry number attempt (1-indexed).
func (c Config) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	backoff := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffFactor)
		if c.MaxBackoff > 0 && backoff >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && backoff > c.MaxBackoff {
		return c.MaxBackoff
	}
	return backoff
}

// Do calls fn until it succeeds, returns a non-retryable error, or cfg.MaxRetries
// retries have been spent. A nil isRetryable retries every error.
//
//	n, err := retry.Do(ctx, retry.DefaultConfig(), isTransient, nil, func() (int, error) {
//	    return insert(ctx)
//	})
func Do[T any](
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() (T, error),
) (T, error) {
	var zero T
	var lastErr error

	cfg = cfg.withDefaults()
	if isRetryable == nil {
		isRetryable = Always
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := cfg.Backoff(attempt)
			if cfg.Jitter && wait > 0 {
				wait += rand.N(wait)
			}

			if onRetry != nil {
				onRetry(attempt, lastErr, wait)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("context cancelled while retrying: %w", ctx.Err())
			case <-timer.C:
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, err
		}
	}

	if cfg.MaxRetries == 0 {
		return zero, lastErr
	}
	return zero, fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// DoVoid is like Do but for functions that don't return a value.
func DoVoid(
	ctx context.Context,
	cfg Config,
	isRetryable IsRetryableFunc,
	onRetry OnRetryFunc,
	fn func() error,
) error {
	_, err := Do(ctx, cfg, isRetryable, onRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
