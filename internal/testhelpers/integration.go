//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/history"
	"github.com/kjstillabower/weather-lookup/internal/service"
	"github.com/kjstillabower/weather-lookup/internal/storage"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey         string
	APIURL         string
	HistoryBackend string // "memory", "file", "sqlite" or "memcached"
	MemcachedAddr  string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultBaseURL
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:         apiKey,
		APIURL:         apiURL,
		HistoryBackend: os.Getenv("INTEGRATION_HISTORY_BACKEND"),
		MemcachedAddr:  memcachedAddr,
	}
}

// SetupIntegrationStorage opens the configured history backend. Memcached
// falls back to memory when unreachable.
func SetupIntegrationStorage(t *testing.T, cfg IntegrationTestConfig) (storage.Storage, func()) {
	switch cfg.HistoryBackend {
	case "file":
		fs, err := storage.NewFileStorage(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileStorage() error = %v", err)
		}
		return fs, func() {}
	case "sqlite":
		db, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStorage() error = %v", err)
		}
		return db, func() { _ = db.Close() }
	case "memcached":
		mc := storage.NewMemcachedStorage(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err := mc.Ping(); err != nil {
			t.Logf("Memcached not available (%v), using in-memory storage", err)
			return storage.NewMemoryStorage(), func() {}
		}
		t.Logf("Using Memcached history storage at %s", cfg.MemcachedAddr)
		return mc, func() { _ = mc.Close() }
	default:
		return storage.NewMemoryStorage(), func() {}
	}
}

// SetupIntegrationOrchestrator wires a real provider client and history store.
func SetupIntegrationOrchestrator(t *testing.T, cfg IntegrationTestConfig) (*service.Orchestrator, *history.Store, func()) {
	st, cleanup := SetupIntegrationStorage(t, cfg)
	store := history.NewStore(context.Background(), st, zap.NewNop())
	weatherClient := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL)
	return service.NewOrchestrator(weatherClient, store, zap.NewNop()), store, cleanup
}
