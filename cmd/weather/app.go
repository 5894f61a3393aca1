package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/config"
	"github.com/kjstillabower/weather-lookup/internal/history"
	"github.com/kjstillabower/weather-lookup/internal/service"
	"github.com/kjstillabower/weather-lookup/internal/storage"
)

// app holds the wired core shared by every command.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	storage      storage.Storage
	client       *client.OpenWeatherClient
	breaker      *gobreaker.CircuitBreaker
	history      *history.Store
	orchestrator *service.Orchestrator
}

// openStorage returns the history backend named by cfg.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.HistoryBackend {
	case config.BackendFile:
		return storage.NewFileStorage(cfg.HistoryPath)
	case config.BackendSQLite:
		return storage.NewSQLiteStorage(cfg.HistoryPath)
	case config.BackendMemcached:
		return storage.NewMemcachedStorage(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns), nil
	case config.BackendMemory:
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	st, err := openStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s history storage: %w", cfg.HistoryBackend, err)
	}

	a := &app{cfg: cfg, logger: logger, storage: st}

	var opts []client.Option
	if cfg.CircuitBreakerEnabled {
		a.breaker = client.NewCircuitBreaker(cfg.CircuitBreaker)
		opts = append(opts, client.WithCircuitBreaker(a.breaker))
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreaker.FailureThreshold),
			zap.Duration("open_timeout", cfg.CircuitBreaker.OpenTimeout))
	}
	a.client = client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, opts...)
	if !a.client.Configured() {
		logger.Warn("WEATHER_API_KEY not set; searches will fail with INVALID_KEY")
	}

	loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	a.history = history.NewStore(loadCtx, st, logger, history.WithDefaultMaxLength(cfg.HistoryDefaultMaxLength))
	a.orchestrator = service.NewOrchestrator(a.client, a.history, logger)
	return a, nil
}

// storagePing returns a health probe for backends that support one.
func (a *app) storagePing() func() error {
	if p, ok := a.storage.(storage.Pinger); ok {
		return p.Ping
	}
	return nil
}

// breakerState returns a breaker state probe, or nil when disabled.
func (a *app) breakerState() func() string {
	if a.breaker == nil {
		return nil
	}
	return func() string { return a.breaker.State().String() }
}

// Close releases the history backend.
func (a *app) Close() error {
	if c, ok := a.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
