// Command ingest-worker runs an ingestion for every trigger message on an SQS queue.
// A scheduled rule publishing to the queue gives a durable, redelivering trigger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	apihttp "github.com/archon-research/spotrate/internal/adapters/inbound/http"
	sqsadapter "github.com/archon-research/spotrate/internal/adapters/outbound/sqs"
	"github.com/archon-research/spotrate/internal/app"
	"github.com/archon-research/spotrate/internal/config"
	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/pkg/env"
	"github.com/archon-research/spotrate/internal/services/ingest_worker"
)

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

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest-worker", flag.ContinueOnError)
	queueURL := fs.String("queue", "", "SQS queue URL (overrides AWS_SQS_QUEUE_URL)")
	showVersion := fs.Bool("version", false, "Show version information and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("ingest-worker\n  Commit:     %s\n  Build Time: %s\n", GitCommit, BuildTime)
		return nil
	}

	config.LoadDotEnv()
	logger := env.NewLogger("ingest-worker")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *queueURL != "" {
		cfg.AWS.SQSQueueURL = *queueURL
	}
	if cfg.AWS.SQSQueueURL == "" {
		return fmt.Errorf("AWS_SQS_QUEUE_URL or -queue is required")
	}
	logger.Info("starting ingest-worker", "commit", GitCommit, "queue", cfg.AWS.SQSQueueURL, "config", cfg.String())

	shutdownMetrics, err := app.InitTelemetry(ctx, cfg, "ingest-worker", GitCommit)
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

	registry, err := app.NewRegistry(cfg, logger)
	if err != nil {
		return err
	}
	if registry.Len() == 0 {
		return entity.NewConfigurationError("no price providers configured")
	}
	ingester, err := app.NewIngestion(cfg, registry, store, logger)
	if err != nil {
		return fmt.Errorf("creating ingestion service: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	consumer, err := sqsadapter.NewConsumer(awsCfg, sqsadapter.Config{QueueURL: cfg.AWS.SQSQueueURL}, logger,
		func(o *sqs.Options) {
			if cfg.AWS.SQSEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.SQSEndpoint)
			}
		})
	if err != nil {
		return fmt.Errorf("creating SQS consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	worker, err := ingest_worker.NewService(ingest_worker.Config{Logger: logger}, consumer, ingester)
	if err != nil {
		return fmt.Errorf("creating worker: %w", err)
	}

	var shuttingDown atomic.Bool
	healthServer, err := apihttp.NewHealthServer(apihttp.HealthServerConfig{
		Addr:   cfg.HealthAddr,
		Logger: logger,
	}, ingester, &shuttingDown)
	if err != nil {
		return fmt.Errorf("creating health server: %w", err)
	}
	healthServer.Start()

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	shuttingDown.Store(true)

	if err := worker.Stop(); err != nil {
		logger.Error("worker stop failed", "error", err)
	}
	if err := healthServer.Shutdown(5 * time.Second); err != nil {
		logger.Warn("health server shutdown failed", "error", err)
	}

	logger.Info("ingest-worker stopped")
	return nil
}
