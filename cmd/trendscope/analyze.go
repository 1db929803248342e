package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/app"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/export"
)

var (
	analyzeStart    string
	analyzeEnd      string
	analyzeVideos   int
	analyzeComments int
	analyzeCSV      string
	analyzeHTML     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <keyword>",
	Short: "Run one analysis and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		container, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		outcome, err := container.Analysis.FetchAnalysis(ctx, domain.AnalysisRequest{
			Keyword:           args[0],
			StartDate:         analyzeStart,
			EndDate:           analyzeEnd,
			VideoSampleSize:   analyzeVideos,
			CommentSampleSize: analyzeComments,
		})
		if err != nil {
			return err
		}
		if outcome.IsFallback() {
			logger.Warn("Showing fallback data", zap.String("reason", outcome.FallbackReason))
		}

		for path, format := range map[string]export.Format{analyzeCSV: export.FormatCSV, analyzeHTML: export.FormatHTML} {
			if path == "" {
				continue
			}
			if err := writeReport(path, format, outcome.Result); err != nil {
				return err
			}
			logger.Info("Report written", zap.String("path", path), zap.String("format", string(format)))
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

func writeReport(path string, format export.Format, result *domain.AnalysisResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.Write(f, format, result, time.Now()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	today := time.Now()
	analyzeCmd.Flags().StringVar(&analyzeStart, "start", today.AddDate(0, -3, 0).Format(domain.DateLayout), "Start date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&analyzeEnd, "end", today.Format(domain.DateLayout), "End date (YYYY-MM-DD)")
	analyzeCmd.Flags().IntVar(&analyzeVideos, "videos", 0, "Video sample size (0 uses VIDEO_SAMPLE_DEFAULT)")
	analyzeCmd.Flags().IntVar(&analyzeComments, "comments", 0, "Comment sample size (0 uses COMMENT_SAMPLE_DEFAULT)")
	analyzeCmd.Flags().StringVar(&analyzeCSV, "csv", "", "Also write a CSV report to this path")
	analyzeCmd.Flags().StringVar(&analyzeHTML, "html", "", "Also write an HTML report to this path")
	rootCmd.AddCommand(analyzeCmd)
}
