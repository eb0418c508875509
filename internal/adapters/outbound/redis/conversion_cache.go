// Package redis provides a Redis implementation of the ConversionCache port.
//
// Conversions are stored as JSON under prefix:conversion:key and expire with the TTL
// passed to Set, so every replica behind a load balancer shares one freshness window.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Compile-time check that ConversionCache implements outbound.ConversionCache
var _ outbound.ConversionCache = (*ConversionCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns the default Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		KeyPrefix: "spotrate",
	}
}

// cachedConversion is the JSON form stored in Redis.
type cachedConversion struct {
	From           string               `json:"from"`
	To             string               `json:"to"`
	Rate           decimal.Decimal      `json:"rate"`
	QueryTimestamp time.Time            `json:"query_timestamp"`
	DataTimestamps map[string]time.Time `json:"data_timestamps"`
}

// ConversionCache is a Redis implementation of the outbound.ConversionCache port.
type ConversionCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *slog.Logger
}

// NewConversionCache creates a new Redis conversion cache. It does not connect until
// the first command; call Ping to check reachability.
func NewConversionCache(cfg Config, logger *slog.Logger) (*ConversionCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = ConfigDefaults().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &ConversionCache{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-cache"),
	}, nil
}

// Ping checks the Redis connection.
func (c *ConversionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *ConversionCache) Close() error {
	return c.client.Close()
}

func (c *ConversionCache) key(key string) string {
	return fmt.Sprintf("%s:conversion:%s", c.keyPrefix, key)
}

// Get returns the cached conversion, or nil, nil on a miss.
func (c *ConversionCache) Get(ctx context.Context, key string) (*entity.Conversion, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}

	var cached cachedConversion
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to decode conversion: %w", err)
	}

	return &entity.Conversion{
		From:           cached.From,
		To:             cached.To,
		Rate:           cached.Rate,
		QueryTimestamp: cached.QueryTimestamp.UTC(),
		DataTimestamps: utcTimestamps(cached.DataTimestamps),
	}, nil
}

// Set stores the conversion for ttl. A non-positive ttl is rejected rather than
// storing an entry that never expires.
func (c *ConversionCache) Set(ctx context.Context, key string, conversion *entity.Conversion, ttl time.Duration) error {
	if conversion == nil {
		return fmt.Errorf("conversion cannot be nil")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", ttl)
	}

	data, err := json.Marshal(cachedConversion{
		From:           conversion.From,
		To:             conversion.To,
		Rate:           conversion.Rate,
		QueryTimestamp: conversion.QueryTimestamp,
		DataTimestamps: conversion.DataTimestamps,
	})
	if err != nil {
		return fmt.Errorf("failed to encode conversion: %w", err)
	}

	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache conversion: %w", err)
	}
	return nil
}

func utcTimestamps(in map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(in))
	for k, v := range in {
		out[k] = v.UTC()
	}
	return out
}
