package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/balkashynov/dtr/internal/report"
)

var goalCmd = &cobra.Command{
	Use:   "goal [hours]",
	Short: "Show or set the required internship hours",
	Args:  cobra.MaximumNArgs(1),
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		if len(args) == 0 {
			d, err := e.core.DashboardSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd, "Goal: %.0f hours\n", d.GoalHours)
			return nil
		}

		hours, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid hours '%s'", args[0])
		}
		if err := e.core.SetGoal(cmd.Context(), hours); err != nil {
			return err
		}
		printf(cmd, "🎯 Goal set to %.0f hours\n", hours)
		return nil
	}),
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the raw database image to a file",
	Long:  "Export the local database as a standalone SQLite file, e.g. for backup or inspection.",
	Args:  cobra.ExactArgs(1),
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		data, err := e.core.ExportImage(cmd.Context())
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		printf(cmd, "💾 Exported %d bytes to %s\n", len(data), args[0])
		return nil
	}),
}

var reportCmd = &cobra.Command{
	Use:   "report [file]",
	Short: "Render completed sessions as csv, xlsx or pdf",
	Long: `Render completed sessions. The format follows the file extension unless --format is given.

Examples:
  dtr report dtr.pdf
  dtr report january.xlsx --month 2024-01`,
	Args: cobra.ExactArgs(1),
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		path := args[0]
		month, _ := cmd.Flags().GetString("month")
		format, _ := cmd.Flags().GetString("format")
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		}

		ctx := cmd.Context()
		sessions, err := e.core.ListSessions(ctx, month, true)
		if err != nil {
			return err
		}
		completed := sessions[:0]
		for _, s := range sessions {
			if !s.Status.InFlight() {
				completed = append(completed, s)
			}
		}

		d, err := e.core.DashboardSnapshot(ctx)
		if err != nil {
			return err
		}
		sum := report.Summary{
			Title:         e.cfg.User.Name,
			Period:        month,
			RenderedHours: report.Total(completed),
			GoalHours:     d.GoalHours,
		}

		var data []byte
		switch format {
		case "csv":
			var buf bytes.Buffer
			if err := report.WriteCSV(&buf, completed); err != nil {
				return err
			}
			data = buf.Bytes()
		case "xlsx":
			data, err = report.XLSX(sum, completed)
		case "pdf":
			data, err = report.PDF(sum, completed)
		default:
			return fmt.Errorf("unsupported report format %q (csv, xlsx or pdf)", format)
		}
		if err != nil {
			return err
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		printf(cmd, "📄 Wrote %d session(s) to %s\n", len(completed), path)
		return nil
	}),
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all local data and start over",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("reset deletes every local session; pass --yes to confirm")
		}
		if err := e.core.Reset(cmd.Context()); err != nil {
			return err
		}
		printf(cmd, "🧹 Local data reset\n")
		return nil
	}),
}

func init() {
	reportCmd.Flags().String("month", "", "Only sessions of a month (YYYY-MM)")
	reportCmd.Flags().String("format", "", "csv, xlsx or pdf (default: from the file extension)")
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")
}
