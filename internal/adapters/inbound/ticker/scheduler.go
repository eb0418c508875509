// Package ticker is the in-process recurring trigger. It calls a job immediately and
// then on every tick, retrying failed runs within the configured policy.
package ticker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/pkg/retry"
	"github.com/archon-research/spotrate/internal/ports/inbound"
)

// Compile-time check that Scheduler implements inbound.Scheduler.
var _ inbound.Scheduler = (*Scheduler)(nil)

// Scheduler runs one job at a time. Ticks that arrive while a run (including its
// retries) is still in progress collapse into a single pending tick, so runs never overlap.
type Scheduler struct {
	logger *slog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger.With("component", "ticker")}
}

// Schedule blocks until ctx is cancelled. A run that still fails after policy.Limit
// retries is logged and the schedule carries on. Configuration errors are not retried.
func (s *Scheduler) Schedule(ctx context.Context, cadence time.Duration, policy inbound.RetryPolicy, job inbound.Job) error {
	if cadence <= 0 {
		return fmt.Errorf("cadence must be positive, got %v", cadence)
	}
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	cfg := retryConfig(policy)
	s.logger.Info("schedule started",
		"cadence", cadence,
		"retryLimit", cfg.MaxRetries,
		"retryDelay", cfg.InitialBackoff,
		"retryBackoff", policy.Backoff)

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		s.fire(ctx, cfg, job)

		select {
		case <-ctx.Done():
			s.logger.Info("schedule stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, cfg retry.Config, job inbound.Job) {
	if ctx.Err() != nil {
		return
	}

	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("job failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
	}

	err := retry.DoVoid(ctx, cfg, isRetryable, onRetry, func() error {
		return job(ctx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("job failed", "kind", entity.KindOf(err).String(), "error", err)
	}
}

func isRetryable(err error) bool {
	return !entity.IsKind(err, entity.KindConfiguration)
}

func retryConfig(policy inbound.RetryPolicy) retry.Config {
	limit := max(policy.Limit, 0)
	if policy.Backoff {
		return retry.Exponential(limit, policy.Delay)
	}
	return retry.Constant(limit, policy.Delay)
}
