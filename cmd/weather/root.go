package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/config"
	"github.com/kjstillabower/weather-lookup/internal/observability"
)

// globalOptions are persistent flags shared by every subcommand.
type globalOptions struct {
	configDir string
	backend   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "weather",
		Short: "Look up current weather and keep a search history",
		Long: `weather looks up current conditions for a city and remembers recent searches.

Examples:
  weather search London --country GB
  weather history list
  weather history max 5
  weather serve                          # HTTP API on server.port`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "Directory holding .env and config/ (default: working directory)")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "History backend override: file, sqlite, memcached or memory")

	root.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newHistoryCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig applies flag overrides on top of the config files.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configDir != "" {
		cfg, err = config.LoadFrom(o.configDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if o.backend != "" {
		if err := cfg.SetHistoryBackend(o.backend); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withApp runs fn against a fully wired app using the quiet CLI logger.
func (o *globalOptions) withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger, err := observability.NewCLILogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = observability.FlushLogger(logger) }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close history storage", zap.Error(err))
		}
	}()
	return fn(a)
}
