// Command ingest-once performs a single ingestion run and exits, for use from cron or a
// Kubernetes CronJob. It exits non-zero when the run fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/archon-research/spotrate/internal/app"
	"github.com/archon-research/spotrate/internal/config"
	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/pkg/env"
	"github.com/archon-research/spotrate/internal/pkg/retry"
	"github.com/archon-research/spotrate/internal/ports/inbound"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest-once", flag.ContinueOnError)
	retries := fs.Int("retries", -1, "Retries after a failed run (default FETCH_RETRY_LIMIT)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	config.LoadDotEnv()
	logger := env.NewLogger("ingest-once")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *retries >= 0 {
		cfg.Fetch.RetryLimit = *retries
	}

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := app.NewRegistry(cfg, logger)
	if err != nil {
		return err
	}
	ingester, err := app.NewIngestion(cfg, registry, store, logger)
	if err != nil {
		return fmt.Errorf("creating ingestion service: %w", err)
	}

	result, err := runWithRetry(ctx, ingester, cfg.Fetch, logger)
	if err != nil {
		return err
	}

	logger.Info("ingestion complete",
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"failedProviders", result.FailedProviders,
		"duration", result.FinishedAt.Sub(result.StartedAt))
	return nil
}

func runWithRetry(ctx context.Context, ingester inbound.Ingester, fetch config.FetchConfig, logger *slog.Logger) (*inbound.RunResult, error) {
	cfg := retry.Constant(fetch.RetryLimit, fetch.RetryDelay)
	if fetch.RetryBackoff {
		cfg = retry.Exponential(fetch.RetryLimit, fetch.RetryDelay)
	}

	return retry.Do(ctx, cfg,
		func(err error) bool { return !entity.IsKind(err, entity.KindConfiguration) },
		func(attempt int, err error, backoff time.Duration) {
			logger.Warn("ingestion run failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
		func() (*inbound.RunResult, error) {
			return ingester.RunOnce(ctx)
		})
}
