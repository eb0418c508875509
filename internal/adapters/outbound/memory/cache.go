package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/outbound"
)

// Compile-time check that ConversionCache implements outbound.ConversionCache
var _ outbound.ConversionCache = (*ConversionCache)(nil)

type cacheEntry struct {
	conversion entity.Conversion
	expiresAt  time.Time
}

// ConversionCache is a process-local ConversionCache. Expired entries are dropped lazily
// on read and swept on write once the map grows past maxEntries.
type ConversionCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	now        func() time.Time
}

// NewConversionCache creates an in-memory cache. maxEntries <= 0 defaults to 10000.
func NewConversionCache(maxEntries int) *ConversionCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &ConversionCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the cached conversion, or (nil, nil) on a miss.
func (c *ConversionCache) Get(ctx context.Context, key string) (*entity.Conversion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	conv := e.conversion
	conv.DataTimestamps = maps.Clone(e.conversion.DataTimestamps)
	return &conv, nil
}

// Set stores a copy of conversion for ttl.
func (c *ConversionCache) Set(ctx context.Context, key string, conversion *entity.Conversion, ttl time.Duration) error {
	if conversion == nil || ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	if len(c.entries) >= c.maxEntries {
		return nil
	}

	stored := *conversion
	stored.DataTimestamps = maps.Clone(conversion.DataTimestamps)
	c.entries[key] = cacheEntry{conversion: stored, expiresAt: now.Add(ttl)}
	return nil
}

// Close drops all entries.
func (c *ConversionCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	return nil
}
