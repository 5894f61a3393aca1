package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	httphandler "github.com/kjstillabower/weather-lookup/internal/http"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/traffic"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the lookup and history API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *globalOptions) error {
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = observability.FlushLogger(logger) }()

	cfg, err := opts.loadConfig()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup", zap.Error(err))
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("history storage close", zap.Error(err))
		}
	}()
	logger.Info("history backend", zap.String("backend", cfg.HistoryBackend), zap.String("path", cfg.HistoryPath))

	healthConfig := &httphandler.HealthConfig{
		Version:          Version,
		APIKeyConfigured: a.client.Configured(),
		StoragePing:      a.storagePing(),
		BreakerState:     a.breakerState(),
		Traffic:          traffic.NewTracker(nil, 0),
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
	}
	handler := httphandler.NewHandler(a.orchestrator, healthConfig, logger)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-sigCtx.Done():
	case err, ok := <-serveErr:
		if ok {
			logger.Error("server", zap.Error(err))
			return err
		}
	}
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
