package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/application"
	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the report server",
		Long:  "Start the report server with the specified configuration and serve until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			metrics.RegisterMetrics()

			logger.Info("Starting torstatus...",
				zap.String("version", GetVersion()),
				zap.String("config_file", cfgFile))
			node, err := application.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize torstatus: %w", err)
			}
			if err := node.Start(ctx); err != nil {
				node.Shutdown()
				return fmt.Errorf("failed to start torstatus: %w", err)
			}
			logger.Info("TorStatus started successfully",
				zap.String("listen_addr", cfg.Web.ListenAddr))

			<-ctx.Done()
			logger.Info("Shutdown signal received, initiating graceful shutdown...")
			node.Shutdown()
			return nil
		},
	}
}
