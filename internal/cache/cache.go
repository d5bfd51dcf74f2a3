package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/dwd-warning-service/internal/models"
)

// StatesKey is the cache key of the full Home Assistant state listing.
const StatesKey = "states"

// Cache defines the interface for state listing caches.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Entity, bool, error)
	Set(ctx context.Context, key string, value []models.Entity, ttl time.Duration) error
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	clock clockwork.Clock
	mu    sync.Mutex
	data  map[string]cacheEntry
}

// cacheEntry stores a cached state listing with its expiration timestamp.
type cacheEntry struct {
	value     []models.Entity
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock creates an in-memory cache reading time from clock.
func NewInMemoryCacheWithClock(clock clockwork.Clock) *InMemoryCache {
	return &InMemoryCache{
		clock: clock,
		data:  make(map[string]cacheEntry),
	}
}

// Get retrieves the cached listing for key if present and not expired.
// Returns (data, true, nil) on cache hit, (nil, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]models.Entity, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}

	if !c.clock.Now().Before(entry.expiresAt) {
		delete(c.data, key)
		return nil, false, nil
	}

	return entry.value, true, nil
}

// Set stores the listing with the specified TTL. The slice must not be modified afterwards.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []models.Entity, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}
