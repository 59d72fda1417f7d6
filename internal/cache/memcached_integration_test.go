//go:build integration
// +build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-monitor/internal/models"
)

func memcachedAddrs() string {
	if v := os.Getenv("MEMCACHED_ADDRS"); v != "" {
		return v
	}
	return "localhost:11211"
}

// TestMemcachedCache_GetSet_Integration verifies that MemcachedCache successfully
// stores and retrieves forecasts when a memcached server is available.
func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	c, err := NewMemcachedCache(memcachedAddrs(), 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	loc := models.Location{Name: "Hurdal", Latitude: 60.4674, Longitude: 11.0514}
	val := forecastFor(loc, 3.5)
	if err := c.Set(ctx, Key(loc), val, time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, Key(loc))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Location != loc || *got.Points[0].AirTemperature != 3.5 {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c, err := NewMemcachedCache(memcachedAddrs(), 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "0.0000,0.0000")
	if err != nil {
		t.Skipf("Get failed (memcached may not be running): %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

func TestMemcachedCache_OtherSchemaIsMiss_Integration(t *testing.T) {
	c, err := NewMemcachedCache(memcachedAddrs(), 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	key := "1.2345,6.7890"
	item := &memcache.Item{Key: itemKey(key), Value: []byte(`{"legacy":true}`), Flags: entrySchema + 1, Expiration: 60}
	if err := c.client.Set(item); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	_, ok, err := c.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true for an entry written with another schema")
	}
}
