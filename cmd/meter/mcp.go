package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/meter/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve usage tools over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)

			svc, cache, cleanup, err := newUsageService(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			var stats mcp.CacheStatter
			if cache != nil {
				stats = cache
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(svc, stats, cfg.Usage.Rate, logger, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
