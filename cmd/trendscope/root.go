package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/config"
	"github.com/kapu/trendscope-go/internal/util"
)

var (
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trendscope",
	Short: "Product trend and sentiment analysis",
	Long: `trendscope combines search-interest trends, comment sentiment and a
model-written stocking recommendation for a product keyword.

Commands:
  trendscope serve     Run the HTTP API
  trendscope analyze   Run one analysis and print or export it
  trendscope parse     Segment recommendation text into sections
  trendscope migrate   Create the analysis history schema`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}

		l, err := util.NewLogger(loaded.Logging.Level, loaded.Logging.File)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, logger = loaded, l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}
