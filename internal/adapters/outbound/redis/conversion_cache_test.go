package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

func TestNewConversionCache_CreatesWithConfig(t *testing.T) {
	cfg := Config{
		Addr:      "localhost:6379",
		Password:  "secret",
		DB:        1,
		KeyPrefix: "test",
	}

	cache, err := NewConversionCache(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if cache.keyPrefix != cfg.KeyPrefix {
		t.Errorf("expected keyPrefix=%s, got %s", cfg.KeyPrefix, cache.keyPrefix)
	}
	if cache.client == nil {
		t.Fatal("expected client, got nil")
	}
	if cache.logger == nil {
		t.Fatal("expected logger, got nil")
	}
}

func TestNewConversionCache_EmptyAddrReturnsError(t *testing.T) {
	_, err := NewConversionCache(Config{}, nil)
	if err == nil {
		t.Fatal("expected error for empty addr, got nil")
	}
	if !strings.Contains(err.Error(), "redis address is required") {
		t.Errorf("expected 'redis address is required' error, got %v", err)
	}
}

func TestNewConversionCache_DefaultsKeyPrefix(t *testing.T) {
	cache, err := NewConversionCache(Config{Addr: "localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if got := cache.key("BTC:ETH:123"); got != "spotrate:conversion:BTC:ETH:123" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestConversionCache_SetRejectsBadInput(t *testing.T) {
	cache, err := NewConversionCache(Config{Addr: "localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "k", nil, time.Minute); err == nil {
		t.Error("expected error for nil conversion")
	}
	if err := cache.Set(ctx, "k", &entity.Conversion{}, 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}
