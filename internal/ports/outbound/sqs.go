package outbound

import (
	"context"
	"time"
)

// SQSMessage is a trigger message received from a queue.
type SQSMessage struct {
	MessageID string

	// ReceiptHandle identifies this delivery; it is required to acknowledge the message.
	ReceiptHandle string

	Body string

	// SentAt is when the queue accepted the message. Zero if the queue did not report it.
	SentAt time.Time

	// ReceiveCount is how many times this message has been delivered, including this one.
	ReceiveCount int
}

// SQSConsumer receives and acknowledges trigger messages.
// Messages that are not deleted become visible again after the queue's visibility
// timeout, which is what gives the trigger at-least-once delivery.
type SQSConsumer interface {
	// ReceiveMessages long-polls for up to maxMessages. An empty slice means none arrived.
	ReceiveMessages(ctx context.Context, maxMessages int) ([]SQSMessage, error)

	// DeleteMessage acknowledges a processed message.
	DeleteMessage(ctx context.Context, receiptHandle string) error

	Close() error
}
