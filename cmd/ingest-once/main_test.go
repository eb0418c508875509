package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/archon-research/spotrate/internal/config"
	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/inbound"
	"github.com/archon-research/spotrate/internal/testutil"
)

type mockIngester struct {
	mu        sync.Mutex
	runOnceFn func(ctx context.Context) (*inbound.RunResult, error)
	calls     int
}

func (m *mockIngester) RunOnce(ctx context.Context) (*inbound.RunResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.runOnceFn(ctx)
}

func TestRunWithRetry(t *testing.T) {
	fetch := config.FetchConfig{RetryLimit: 2, RetryDelay: time.Millisecond, RetryBackoff: true}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", errs: []error{nil}, wantCalls: 1},
		{name: "recovers on retry", errs: []error{entity.NewStorageError("insert", errors.New("down")), nil}, wantCalls: 2},
		{name: "gives up after limit", errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}, wantCalls: 3, wantErr: true},
		{name: "configuration error not retried", errs: []error{entity.NewConfigurationError("no price providers configured")}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &mockIngester{}
			ing.runOnceFn = func(context.Context) (*inbound.RunResult, error) {
				err := tt.errs[ing.calls-1]
				if err != nil {
					return nil, err
				}
				return &inbound.RunResult{Inserted: 1}, nil
			}

			result, err := runWithRetry(context.Background(), ing, fetch, testutil.DiscardLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("runWithRetry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && result.Inserted != 1 {
				t.Errorf("expected result from successful run, got %+v", result)
			}
			if ing.calls != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, ing.calls)
			}
		})
	}
}

func TestRun_NoProviders(t *testing.T) {
	t.Setenv("COINMARKETCAP_API_KEY", "")
	t.Setenv("COINGECKO_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	err := run(context.Background(), []string{"-retries", "0"})
	if !entity.IsKind(err, entity.KindConfiguration) {
		t.Errorf("expected configuration error with no providers, got %v", err)
	}
}
