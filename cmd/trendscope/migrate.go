package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the analysis history schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		container := &app.Container{Config: cfg, Logger: logger}
		defer container.Close()

		repo, err := container.OpenHistoryRepository(ctx)
		if err != nil {
			return err
		}
		if repo == nil {
			logger.Info("History disabled, nothing to migrate", zap.String("driver", cfg.History.Driver))
			return nil
		}

		logger.Info("History schema ready", zap.String("driver", cfg.History.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
