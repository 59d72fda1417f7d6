package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-monitor/internal/models"
)

const (
	keyPrefix = "metno:forecast:"

	// entrySchema is stored in item flags. Entries written with another value
	// are treated as misses so a format change never fails a run.
	entrySchema uint32 = 1

	// memcached reads expirations above 30 days as absolute Unix times.
	maxRelativeExpiration = 30 * 24 * time.Hour
)

// MemcachedCache implements Cache using memcached, so forecasts survive
// between one-shot runs.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// such as "host1:11211,host2:11211". Addresses are resolved up front, so a
// typo fails at startup rather than on the first lookup. Zero timeout or
// maxIdleConns keeps the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		return nil, errors.New("memcached: no server addresses")
	}
	var ss memcache.ServerList
	if err := ss.SetServers(servers...); err != nil {
		return nil, fmt.Errorf("memcached servers %q: %w", addrs, err)
	}
	client := memcache.NewFromSelector(&ss)
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
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// itemKey maps a coordinate key onto memcached's key alphabet.
func itemKey(k string) string {
	return keyPrefix + strings.ReplaceAll(k, ",", "_")
}

// expiration converts a TTL into memcached's expiration field.
func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxRelativeExpiration {
		return int32(now.Add(ttl).Unix())
	}
	return int32((ttl + time.Second - 1) / time.Second)
}

// Get implements Cache.Get. A miss or an entry in an older format returns false, nil.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.Forecast, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Forecast{}, false, err
	}
	item, err := c.client.Get(itemKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return models.Forecast{}, false, nil
	}
	if err != nil {
		return models.Forecast{}, false, fmt.Errorf("memcached get %s: %w", key, err)
	}
	if item.Flags != entrySchema {
		return models.Forecast{}, false, nil
	}
	var fc models.Forecast
	if err := json.Unmarshal(item.Value, &fc); err != nil {
		return models.Forecast{}, false, fmt.Errorf("memcached decode %s: %w", key, err)
	}
	return fc, true, nil
}

// Set implements Cache.Set. A non-positive ttl stores the entry without expiry.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.Forecast, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcached encode %s: %w", key, err)
	}
	err = c.client.Set(&memcache.Item{
		Key:        itemKey(key),
		Value:      raw,
		Flags:      entrySchema,
		Expiration: expiration(ttl, time.Now()),
	})
	if err != nil {
		return fmt.Errorf("memcached set %s: %w", key, err)
	}
	return nil
}

// Ping checks that every server answers. Serve mode reports it on /health.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
