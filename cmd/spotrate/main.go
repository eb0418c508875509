// Command spotrate serves the conversion API and, unless disabled, ingests prices on a
// fixed cadence in the same process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	apihttp "github.com/archon-research/spotrate/internal/adapters/inbound/http"
	"github.com/archon-research/spotrate/internal/adapters/inbound/ticker"
	"github.com/archon-research/spotrate/internal/app"
	"github.com/archon-research/spotrate/internal/config"
	"github.com/archon-research/spotrate/internal/pkg/env"
	"github.com/archon-research/spotrate/internal/ports/inbound"
	"github.com/archon-research/spotrate/internal/services/conversion"
)

const shutdownTimeout = 25 * time.Second

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	noIngest    bool
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("spotrate", flag.ContinueOnError)
	fs.BoolVar(&opts.noIngest, "no-ingest", false, "Serve the API only; ingestion runs elsewhere")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("spotrate\n  Commit:     %s\n  Build Time: %s\n", GitCommit, BuildTime)
		return nil
	}

	config.LoadDotEnv()
	logger := env.NewLogger("spotrate")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info("starting spotrate", "commit", GitCommit, "config", cfg.String())

	shutdownMetrics, err := app.InitTelemetry(ctx, cfg, "spotrate", GitCommit)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := app.OpenCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	converter, err := conversion.NewService(conversion.Config{
		Symbols:  cfg.Symbols,
		CacheTTL: cfg.CacheTTL,
		Logger:   logger,
	}, store, cache)
	if err != nil {
		return fmt.Errorf("creating conversion service: %w", err)
	}

	handler := apihttp.NewHandler(apihttp.HandlerConfig{
		CacheMaxAge:       cfg.CacheTTL,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            logger,
	}, converter, store)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	var (
		wg           sync.WaitGroup
		shuttingDown atomic.Bool
		healthServer *apihttp.HealthServer
	)
	ingestCtx, cancelIngest := context.WithCancel(ctx)
	defer cancelIngest()

	if !opts.noIngest {
		registry, err := app.NewRegistry(cfg, logger)
		if err != nil {
			return err
		}
		ingester, err := app.NewIngestion(cfg, registry, store, logger)
		if err != nil {
			return fmt.Errorf("creating ingestion service: %w", err)
		}

		healthServer, err = apihttp.NewHealthServer(apihttp.HealthServerConfig{
			Addr:   cfg.HealthAddr,
			Logger: logger,
		}, ingester, &shuttingDown)
		if err != nil {
			return fmt.Errorf("creating health server: %w", err)
		}
		healthServer.Start()

		scheduler := ticker.NewScheduler(logger)
		policy := inbound.RetryPolicy{
			Limit:   cfg.Fetch.RetryLimit,
			Delay:   cfg.Fetch.RetryDelay,
			Backoff: cfg.Fetch.RetryBackoff,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := scheduler.Schedule(ingestCtx, cfg.Fetch.Cadence, policy, func(ctx context.Context) error {
				_, err := ingester.RunOnce(ctx)
				return err
			})
			if err != nil {
				logger.Error("ingestion scheduler stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shuttingDown.Store(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	cancelIngest()
	wg.Wait()

	if healthServer != nil {
		if err := healthServer.Shutdown(5 * time.Second); err != nil {
			logger.Warn("health server shutdown failed", "error", err)
		}
	}

	logger.Info("spotrate stopped")
	return nil
}
