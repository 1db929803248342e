package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kapu/trendscope-go/internal/service/parser"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Segment recommendation text into sections (reads stdin without a file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		if len(args) == 1 && args[0] != "-" {
			raw, err = os.ReadFile(args[0])
		} else {
			raw, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		interp := parser.New().Interpret(string(raw))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(interp)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
