package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/weather-monitor/internal/models"
)

// Cache defines the interface for forecast caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Forecast, bool, error)
	Set(ctx context.Context, key string, value models.Forecast, ttl time.Duration) error
}

// Key returns the cache key for a location: its coordinates rounded to four
// decimals, the precision the upstream serves.
func Key(loc models.Location) string {
	return fmt.Sprintf("%.4f,%.4f", loc.Latitude, loc.Longitude)
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu    sync.Mutex
	data  map[string]cacheEntry
	clock clockwork.Clock
}

type cacheEntry struct {
	value     models.Forecast
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance. A nil clock uses the real clock.
func NewInMemoryCache(clock clockwork.Clock) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		data:  make(map[string]cacheEntry),
		clock: clock,
	}
}

// Get retrieves the cached forecast for the key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Forecast, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Forecast{}, false, nil
	}

	if c.clock.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Forecast{}, false, nil
	}

	return entry.value, true, nil
}

// Set stores a forecast with the specified TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Forecast, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
