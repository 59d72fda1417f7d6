//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-monitor/internal/analysis"
	"github.com/kjstillabower/weather-monitor/internal/cache"
	"github.com/kjstillabower/weather-monitor/internal/client"
	"github.com/kjstillabower/weather-monitor/internal/fetcher"
	"github.com/kjstillabower/weather-monitor/internal/models"
	"github.com/kjstillabower/weather-monitor/internal/monitor"
	"github.com/kjstillabower/weather-monitor/internal/notify"
	"github.com/kjstillabower/weather-monitor/internal/observability"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	Contact       string
	CacheBackend  string // "", "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if USER_EMAIL is not set, since MET Norway rejects anonymous clients.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	contact := os.Getenv("USER_EMAIL")
	if contact == "" {
		t.Skip("USER_EMAIL not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		Contact:       contact,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a MET Norway client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.MetNoClient {
	c, err := client.NewMetNoClient(client.Options{Contact: cfg.Contact, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewMetNoClient() error = %v", err)
	}
	return c
}

// SetupIntegrationCache returns the configured cache (nil for none) and a cleanup function.
// Falls back to the in-memory cache when memcached is unreachable.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) (cache.Cache, func()) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc, func() { _ = mc.Close() }
		}
		t.Logf("Memcached not available, using in-memory cache")
		return cache.NewInMemoryCache(nil), func() {}
	case "in_memory":
		return cache.NewInMemoryCache(nil), func() {}
	default:
		return nil, func() {}
	}
}

// CaptureSink records messages instead of delivering them.
type CaptureSink struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (s *CaptureSink) Name() string { return "capture" }

func (s *CaptureSink) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

// Messages returns a copy of everything sent so far.
func (s *CaptureSink) Messages() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.msgs...)
}

// SetupIntegrationMonitor wires a full pipeline against the live API with a
// capturing sink. The summary message is always on so every run produces output.
func SetupIntegrationMonitor(t *testing.T, cfg IntegrationTestConfig, locations []models.Location) (*monitor.Monitor, *CaptureSink, func()) {
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	c := SetupIntegrationClient(t, cfg)
	ca, cleanup := SetupIntegrationCache(t, cfg)
	f := fetcher.New(c, ca, logger, fetcher.Options{Delay: time.Second, CacheTTL: 5 * time.Minute})
	sink := &CaptureSink{}
	n := notify.NewNotifier(logger, 10*time.Second, sink)

	m := monitor.New(f, c, n, logger, monitor.Options{
		Locations:  locations,
		Thresholds: analysis.DefaultThresholds(),
		Summary:    true,
	})
	return m, sink, func() {
		cleanup()
		_ = logger.Sync()
	}
}
