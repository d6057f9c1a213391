package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/imageeditor/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the transform history log",
		Long: `Tools for the JSONL transform history written by serve --history-file.

Export converts the log to Parquet for analysis; report prints per-workflow
success rates and latencies.`,
	}

	cmd.AddCommand(newHistoryExportCmd())
	cmd.AddCommand(newHistoryReportCmd())

	return cmd
}

func newHistoryExportCmd() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Convert the JSONL history to a Parquet file",
		Example: `  imageeditor history export --input history.jsonl --output history.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := history.Export(input, output)
			if err != nil {
				return err
			}
			slog.Info("Exported transform history", "rows", n, "output", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "history.jsonl", "Path to the JSONL history file")
	cmd.Flags().StringVar(&output, "output", "history.parquet", "Path to the Parquet file to write")

	return cmd
}

func newHistoryReportCmd() *cobra.Command {
	var input, format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize the history per workflow",
		Example: `  # Text report
  imageeditor history report --input history.jsonl

  # CSV for a spreadsheet
  imageeditor history report --input history.jsonl --format csv > report.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := history.Load(input)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			return history.WriteReport(cmd.OutOrStdout(), history.Summarize(entries), format)
		},
	}

	cmd.Flags().StringVar(&input, "input", "history.jsonl", "Path to the JSONL history file")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, csv)")

	return cmd
}
