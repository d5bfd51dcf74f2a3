package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/dwd-warning-service/internal/models"
)

const keyPrefix = "dwd:"

// MemcachedCache implements Cache using memcached, so several replicas can
// share one state listing. Values are JSON and subject to memcached's item size limit.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
// A payload written by a different listing format version is treated as a miss.
func (c *MemcachedCache) Get(ctx context.Context, key string) ([]models.Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("memcached get %s: %w", key, err)
	}
	entities, ok, err := decodeListing(item.Value)
	if err != nil {
		return nil, false, fmt.Errorf("memcached decode %s: %w", key, err)
	}
	return entities, ok, nil
}

// Set implements Cache.Set. Listings above maxItemSize are rejected with ErrValueTooLarge.
func (c *MemcachedCache) Set(ctx context.Context, key string, value []models.Entity, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeListing(value)
	if err != nil {
		return fmt.Errorf("memcached encode %s: %w", key, err)
	}
	if err := c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	}); err != nil {
		return fmt.Errorf("memcached set %s: %w", key, err)
	}
	return nil
}

// listingVersion changes whenever the cached entity encoding changes.
const listingVersion = 1

// maxItemSize is memcached's default item size limit.
const maxItemSize = 1 << 20

// ErrValueTooLarge is returned when an encoded listing exceeds maxItemSize.
var ErrValueTooLarge = errors.New("cache value too large")

type cachedListing struct {
	Version  int             `json:"v"`
	Entities []models.Entity `json:"entities"`
}

func encodeListing(entities []models.Entity) ([]byte, error) {
	raw, err := json.Marshal(cachedListing{Version: listingVersion, Entities: entities})
	if err != nil {
		return nil, err
	}
	if len(raw) > maxItemSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(raw))
	}
	return raw, nil
}

func decodeListing(raw []byte) ([]models.Entity, bool, error) {
	var listing cachedListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, false, err
	}
	if listing.Version != listingVersion {
		return nil, false, nil
	}
	return listing.Entities, true, nil
}

// expirationSeconds converts ttl to memcached's relative expiration.
// Sub-second TTLs round up to 1s; values beyond 30 days would be read as a unix time.
func expirationSeconds(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60
	sec := int64((ttl + time.Second - 1) / time.Second)
	if sec <= 0 {
		return 60
	}
	if sec > maxRelativeExp {
		return maxRelativeExp
	}
	return int32(sec)
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
