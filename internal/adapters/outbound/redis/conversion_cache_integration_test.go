//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

// setupRedis creates a Redis container and returns a connected ConversionCache.
func setupRedis(t *testing.T) *ConversionCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cache, err := NewConversionCache(Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		KeyPrefix: "test",
	}, nil)
	if err != nil {
		t.Fatalf("failed to create conversion cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	for i := 0; i < 30; i++ {
		if err := cache.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	return cache
}

func TestConversionCache_RoundTrip(t *testing.T) {
	cache := setupRedis(t)
	ctx := context.Background()

	at := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	conv := &entity.Conversion{
		From:           "BTC",
		To:             "ETH",
		Rate:           decimal.RequireFromString("18.271234567890123456"),
		QueryTimestamp: at,
		DataTimestamps: map[string]time.Time{"BTC": at.Add(-time.Minute), "ETH": at},
	}

	got, err := cache.Get(ctx, "BTC:ETH")
	if err != nil || got != nil {
		t.Fatalf("expected miss, got %v, %v", got, err)
	}

	if err := cache.Set(ctx, "BTC:ETH", conv, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err = cache.Get(ctx, "BTC:ETH")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit")
	}
	if !got.Rate.Equal(conv.Rate) {
		t.Errorf("expected rate %s, got %s", conv.Rate, got.Rate)
	}
	if !got.DataTimestamps["BTC"].Equal(at.Add(-time.Minute)) {
		t.Errorf("unexpected BTC timestamp %v", got.DataTimestamps["BTC"])
	}
	if !got.QueryTimestamp.Equal(at) {
		t.Errorf("unexpected query timestamp %v", got.QueryTimestamp)
	}
}

func TestConversionCache_Expires(t *testing.T) {
	cache := setupRedis(t)
	ctx := context.Background()

	conv := &entity.Conversion{From: "BTC", To: "ETH", Rate: decimal.NewFromInt(1)}
	if err := cache.Set(ctx, "short", conv, 100*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	got, err := cache.Get(ctx, "short")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected entry to have expired")
	}
}
