// Package sqs provides an SQS adapter for consuming ingestion trigger messages.
package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// sqsAPI defines the subset of SQS operations needed by the Consumer.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Compile-time check that Consumer implements outbound.SQSConsumer
var _ outbound.SQSConsumer = (*Consumer)(nil)

// maxBatch is the SQS limit on messages per receive.
const maxBatch = 10

// Config holds SQS consumer configuration.
type Config struct {
	// QueueURL is the URL of the SQS queue to consume from.
	QueueURL string

	// WaitTimeSeconds is how long to wait for messages (long polling).
	// Max is 20 seconds.
	WaitTimeSeconds int32
}

// ConfigDefaults returns the default SQS consumer configuration.
func ConfigDefaults() Config {
	return Config{
		WaitTimeSeconds: 20,
	}
}

// Consumer is an SQS implementation of the outbound.SQSConsumer port.
type Consumer struct {
	client   sqsAPI
	queueURL string
	config   Config
	logger   *slog.Logger
}

// NewConsumer creates a new SQS consumer. optFns are passed to the SQS client, e.g. to
// point it at a local endpoint.
func NewConsumer(cfg aws.Config, sqsConfig Config, logger *slog.Logger, optFns ...func(*sqs.Options)) (*Consumer, error) {
	return newConsumer(sqs.NewFromConfig(cfg, optFns...), sqsConfig, logger)
}

func newConsumer(client sqsAPI, sqsConfig Config, logger *slog.Logger) (*Consumer, error) {
	if sqsConfig.QueueURL == "" {
		return nil, fmt.Errorf("queue URL is required")
	}
	if client == nil {
		return nil, fmt.Errorf("sqs client cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if sqsConfig.WaitTimeSeconds <= 0 || sqsConfig.WaitTimeSeconds > 20 {
		sqsConfig.WaitTimeSeconds = ConfigDefaults().WaitTimeSeconds
	}

	return &Consumer{
		client:   client,
		queueURL: sqsConfig.QueueURL,
		config:   sqsConfig,
		logger:   logger.With("component", "sqs-consumer"),
	}, nil
}

// ReceiveMessages long-polls for up to maxMessages, clamped to 1..10.
func (c *Consumer) ReceiveMessages(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error) {
	maxMessages = max(1, min(maxMessages, maxBatch))

	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       c.config.WaitTimeSeconds,
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameSentTimestamp,
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}

	messages := make([]outbound.SQSMessage, 0, len(result.Messages))
	for _, msg := range result.Messages {
		if msg.MessageId == nil || msg.ReceiptHandle == nil || msg.Body == nil {
			continue
		}
		messages = append(messages, outbound.SQSMessage{
			MessageID:     *msg.MessageId,
			ReceiptHandle: *msg.ReceiptHandle,
			Body:          *msg.Body,
			SentAt:        sentAt(msg.Attributes),
			ReceiveCount:  receiveCount(msg.Attributes),
		})
	}

	if len(messages) > 0 {
		c.logger.Debug("received messages", "count", len(messages))
	}

	return messages, nil
}

// DeleteMessage removes a successfully processed message from the queue.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connections of its own.
func (c *Consumer) Close() error {
	return nil
}

// sentAt parses the SentTimestamp attribute (epoch milliseconds).
func sentAt(attrs map[string]string) time.Time {
	ms, err := strconv.ParseInt(attrs[string(types.MessageSystemAttributeNameSentTimestamp)], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func receiveCount(attrs map[string]string) int {
	n, err := strconv.Atoi(attrs[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	if err != nil {
		return 0
	}
	return n
}
