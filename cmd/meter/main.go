package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cachepkg "github.com/pario-ai/meter/pkg/cache/sqlite"
	"github.com/pario-ai/meter/pkg/config"
	"github.com/pario-ai/meter/pkg/metrics"
	"github.com/pario-ai/meter/pkg/upstream"
	"github.com/pario-ai/meter/pkg/usage"
)

var version = "dev"

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "meter",
		Short:         "Per-message credit usage for the current billing period",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "meter.yaml", "path to config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config is expanded")

	root.AddCommand(
		newServeCmd(),
		newUsageCmd(),
		newEstimateCmd(),
		newCacheCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the dotenv file and the YAML config. The config file is
// only required when --config was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return config.LoadOrDefault(configPath, cmd.Flags().Changed("config"))
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// newUsageService wires the upstream client, optional report cache and
// usage builder. The cache is nil when disabled; cleanup closes it.
func newUsageService(cfg *config.Config, logger zerolog.Logger, m *metrics.Collector) (*usage.Service, *cachepkg.Cache, func(), error) {
	client := upstream.NewClient(upstream.ClientConfig{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Metrics: m,
	})

	var (
		reports usage.ReportSource = client
		cache   *cachepkg.Cache
		cleanup = func() {}
	)
	if cfg.Cache.Enabled {
		var err error
		cache, err = cachepkg.New(cfg.Cache.DBPath, cfg.Cache.TTL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init cache: %w", err)
		}
		reports = cachepkg.NewCachedReports(client, cache, logger, m)
		cleanup = func() { _ = cache.Close() }
	}

	builder := usage.NewBuilder(reports, cfg.Usage.Rate,
		usage.WithConcurrency(cfg.Usage.Concurrency),
		usage.WithLogger(logger),
		usage.WithMetrics(m),
	)
	svc := usage.NewService(client, builder, usage.ServiceConfig{
		Deadline: cfg.Usage.Deadline,
		Logger:   logger,
		Metrics:  m,
	})
	return svc, cache, cleanup, nil
}
