package ingest_worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/inbound"
	"github.com/archon-research/spotrate/internal/ports/outbound"
	"github.com/archon-research/spotrate/internal/testutil"
)

// mockConsumer implements outbound.SQSConsumer.
type mockConsumer struct {
	mu                  sync.Mutex
	receiveMessagesFn   func(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error)
	deleteMessageFn     func(ctx context.Context, receiptHandle string) error
	deleted             []string
	receiveMessageCalls int
}

func (m *mockConsumer) ReceiveMessages(ctx context.Context, maxMessages int) ([]outbound.SQSMessage, error) {
	m.mu.Lock()
	m.receiveMessageCalls++
	m.mu.Unlock()
	if m.receiveMessagesFn != nil {
		return m.receiveMessagesFn(ctx, maxMessages)
	}
	return nil, nil
}

func (m *mockConsumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, receiptHandle)
	m.mu.Unlock()
	if m.deleteMessageFn != nil {
		return m.deleteMessageFn(ctx, receiptHandle)
	}
	return nil
}

func (m *mockConsumer) Close() error { return nil }

func (m *mockConsumer) deletedHandles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// mockIngester implements inbound.Ingester.
type mockIngester struct {
	mu        sync.Mutex
	runOnceFn func(ctx context.Context) (*inbound.RunResult, error)
	calls     int
}

func (m *mockIngester) RunOnce(ctx context.Context) (*inbound.RunResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.runOnceFn != nil {
		return m.runOnceFn(ctx)
	}
	return &inbound.RunResult{Inserted: 8}, nil
}

func (m *mockIngester) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func messages(handles ...string) []outbound.SQSMessage {
	out := make([]outbound.SQSMessage, 0, len(handles))
	for _, h := range handles {
		out = append(out, outbound.SQSMessage{MessageID: "id-" + h, ReceiptHandle: h, Body: "{}"})
	}
	return out
}

func TestNewService(t *testing.T) {
	if _, err := NewService(Config{}, nil, &mockIngester{}); err == nil {
		t.Error("expected error for nil consumer")
	}
	if _, err := NewService(Config{}, &mockConsumer{}, nil); err == nil {
		t.Error("expected error for nil ingester")
	}

	svc, err := NewService(Config{}, &mockConsumer{}, &mockIngester{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.config.MaxMessages != 10 || svc.config.PollInterval != 100*time.Millisecond {
		t.Errorf("defaults not applied: %+v", svc.config)
	}
}

func TestProcessMessages(t *testing.T) {
	tests := []struct {
		name        string
		received    []outbound.SQSMessage
		receiveErr  error
		runErr      error
		wantErr     bool
		wantRuns    int
		wantDeleted []string
	}{
		{name: "no messages", wantRuns: 0},
		{name: "one message", received: messages("r1"), wantRuns: 1, wantDeleted: []string{"r1"}},
		{name: "batch coalesces into one run", received: messages("r1", "r2", "r3"), wantRuns: 1, wantDeleted: []string{"r1", "r2", "r3"}},
		{name: "failed run keeps messages", received: messages("r1"), runErr: entity.NewStorageError("insert batch", errors.New("down")), wantErr: true, wantRuns: 1},
		{name: "configuration error drops messages", received: messages("r1", "r2"), runErr: entity.NewConfigurationError("no price providers configured"), wantErr: true, wantRuns: 1, wantDeleted: []string{"r1", "r2"}},
		{name: "receive error", receiveErr: errors.New("throttled"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer := &mockConsumer{receiveMessagesFn: func(context.Context, int) ([]outbound.SQSMessage, error) {
				return tt.received, tt.receiveErr
			}}
			ingester := &mockIngester{runOnceFn: func(context.Context) (*inbound.RunResult, error) {
				if tt.runErr != nil {
					return &inbound.RunResult{}, tt.runErr
				}
				return &inbound.RunResult{Inserted: 1}, nil
			}}
			svc, err := NewService(Config{Logger: testutil.DiscardLogger()}, consumer, ingester)
			if err != nil {
				t.Fatalf("NewService: %v", err)
			}

			err = svc.processMessages(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("processMessages() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := ingester.callCount(); got != tt.wantRuns {
				t.Errorf("expected %d runs, got %d", tt.wantRuns, got)
			}
			deleted := consumer.deletedHandles()
			if len(deleted) != len(tt.wantDeleted) {
				t.Fatalf("expected deleted %v, got %v", tt.wantDeleted, deleted)
			}
			for i := range deleted {
				if deleted[i] != tt.wantDeleted[i] {
					t.Errorf("deleted[%d] = %s, want %s", i, deleted[i], tt.wantDeleted[i])
				}
			}
		})
	}
}

func TestProcessMessages_DeleteFailureIsLogged(t *testing.T) {
	consumer := &mockConsumer{
		receiveMessagesFn: func(context.Context, int) ([]outbound.SQSMessage, error) {
			return messages("r1", "r2"), nil
		},
		deleteMessageFn: func(_ context.Context, h string) error {
			if h == "r1" {
				return errors.New("receipt expired")
			}
			return nil
		},
	}
	svc, _ := NewService(Config{Logger: testutil.DiscardLogger()}, consumer, &mockIngester{})

	if err := svc.processMessages(context.Background()); err != nil {
		t.Fatalf("delete failures must not fail the batch, got %v", err)
	}
	if got := consumer.deletedHandles(); len(got) != 2 {
		t.Errorf("expected both deletes attempted, got %v", got)
	}
}

func TestStartAndStop(t *testing.T) {
	delivered := false
	consumer := &mockConsumer{receiveMessagesFn: func(ctx context.Context, _ int) ([]outbound.SQSMessage, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !delivered {
			delivered = true
			return messages("r1"), nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	ingester := &mockIngester{}
	svc, err := NewService(Config{PollInterval: time.Millisecond, Logger: testutil.DiscardLogger()}, consumer, ingester)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Error("expected error on double start")
	}

	testutil.WaitForCondition(t, 2*time.Second, func() bool {
		return len(consumer.deletedHandles()) == 1
	}, "message to be processed and deleted")

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ingester.callCount() != 1 {
		t.Errorf("expected one run, got %d", ingester.callCount())
	}
}
