package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/archon-research/spotrate/internal/domain/entity"
)

func TestConversionCache_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewConversionCache(0)
	now := t0
	cache.now = func() time.Time { return now }

	conv := &entity.Conversion{
		From:           "BTC",
		To:             "ETH",
		Rate:           decimal.NewFromInt(20),
		QueryTimestamp: t0,
		DataTimestamps: map[string]time.Time{"BTC": t0, "ETH": t0},
	}

	if got, err := cache.Get(ctx, "k"); err != nil || got != nil {
		t.Fatalf("expected miss, got %v, %v", got, err)
	}

	if err := cache.Set(ctx, "k", conv, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conv.DataTimestamps["BTC"] = time.Time{}

	got, err := cache.Get(ctx, "k")
	if err != nil || got == nil {
		t.Fatalf("expected hit, got %v, %v", got, err)
	}
	if !got.Rate.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected rate 20, got %s", got.Rate)
	}
	if !got.DataTimestamps["BTC"].Equal(t0) {
		t.Error("cache must hold its own copy of DataTimestamps")
	}

	now = now.Add(time.Minute)
	if got, _ := cache.Get(ctx, "k"); got != nil {
		t.Error("expected entry to expire after ttl")
	}
}

func TestConversionCache_Bounded(t *testing.T) {
	ctx := context.Background()
	cache := NewConversionCache(2)
	conv := &entity.Conversion{From: "BTC", To: "ETH", Rate: decimal.NewFromInt(1)}

	for _, k := range []string{"a", "b", "c"} {
		if err := cache.Set(ctx, k, conv, time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got, _ := cache.Get(ctx, "c"); got != nil {
		t.Error("expected full cache to skip new entries")
	}
	if got, _ := cache.Get(ctx, "a"); got == nil {
		t.Error("expected existing entry to survive")
	}
}
