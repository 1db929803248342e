package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Info("trendscope starting...",
			zap.String("addr", cfg.Server.Addr),
			zap.String("mode", cfg.Analysis.Mode),
			zap.String("log_level", cfg.Logging.Level),
		)

		buildCtx, buildCancel := context.WithTimeout(context.Background(), 30*time.Second)
		container, err := app.Build(buildCtx, cfg, logger)
		buildCancel()
		if err != nil {
			logger.Error("Failed to assemble application services", zap.Error(err))
			return err
		}
		defer container.Close()

		srv := container.NewServer()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				logger.Error("Server error", zap.Error(err))
				return err
			}
			return nil
		}

		logger.Info("Shutting down gracefully...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}

		logger.Info("Shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
