// Package ingest_worker triggers ingestion runs from an SQS queue. A scheduler such as
// EventBridge sends one message per tick; the queue's redrive policy bounds retries.
package ingest_worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/inbound"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Config holds configuration for the ingest worker.
type Config struct {
	// MaxMessages is the receive batch size (1-10).
	MaxMessages int

	// PollInterval is the pause between receive calls.
	PollInterval time.Duration

	Logger *slog.Logger
}

func configDefaults() Config {
	return Config{
		MaxMessages:  10,
		PollInterval: 100 * time.Millisecond,
		Logger:       slog.Default(),
	}
}

// Service consumes trigger messages and calls the ingester for them.
type Service struct {
	config   Config
	consumer outbound.SQSConsumer
	ingester inbound.Ingester

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewService creates a new ingest worker.
func NewService(config Config, consumer outbound.SQSConsumer, ingester inbound.Ingester) (*Service, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingester cannot be nil")
	}

	defaults := configDefaults()
	if config.MaxMessages <= 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:   config,
		consumer: consumer,
		ingester: ingester,
		logger:   config.Logger.With("component", "ingest-worker"),
	}, nil
}

// Start begins consuming messages in the background.
func (s *Service) Start(ctx context.Context) error {
	if s.cancel != nil {
		return fmt.Errorf("ingest worker already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.processLoop()

	s.logger.Info("ingest worker started", "maxMessages", s.config.MaxMessages)
	return nil
}

// Stop stops consuming and waits for an in-flight run to finish.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("ingest worker stopped")
	return nil
}

func (s *Service) processLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.processMessages(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("error processing messages", "error", err)
			}
		}
	}
}

// processMessages runs ingestion once for everything received in a batch: messages
// that pile up while a run is in flight are all satisfied by the next run. Messages
// are deleted after a successful run or a configuration error; on any other failure
// they become visible again.
func (s *Service) processMessages(ctx context.Context) error {
	messages, err := s.consumer.ReceiveMessages(ctx, s.config.MaxMessages)
	if err != nil {
		return fmt.Errorf("receiving messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	for _, msg := range messages {
		s.logger.Debug("trigger received",
			"messageId", msg.MessageID,
			"sentAt", msg.SentAt,
			"receiveCount", msg.ReceiveCount)
	}

	result, err := s.ingester.RunOnce(ctx)
	if err != nil {
		if entity.IsKind(err, entity.KindConfiguration) {
			// Redelivery cannot fix configuration, so the triggers are dropped.
			s.deleteAll(ctx, messages)
		}
		return fmt.Errorf("ingestion run for %d message(s): %w", len(messages), err)
	}

	s.logger.Info("ingestion run triggered",
		"messages", len(messages),
		"inserted", result.Inserted,
		"failedProviders", result.FailedProviders)

	s.deleteAll(ctx, messages)
	return nil
}

func (s *Service) deleteAll(ctx context.Context, messages []outbound.SQSMessage) {
	for _, msg := range messages {
		if err := s.consumer.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
			s.logger.Error("failed to delete message", "messageId", msg.MessageID, "error", err)
		}
	}
}
