package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/parser"
	"github.com/balkashynov/dtr/internal/tui"
)

var inCmd = &cobra.Command{
	Use:   "in",
	Short: "Time in: start a new work session",
	Long: `Start a new work session. Opens the interactive timer by default, use --no-ui for a plain start.

Examples:
  dtr in          # start and show the timer
  dtr in --no-ui  # start without UI`,
	Args: cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		s, err := e.core.TimeIn(cmd.Context())
		if err != nil {
			return err
		}

		if noUI, _ := cmd.Flags().GetBool("no-ui"); noUI {
			printf(cmd, "⏱️  Timed in on %s at %s\n", s.Date, s.TimeIn)
			if loc := models.StringValue(s.LocationIn); loc != "" {
				printf(cmd, "Location: %s\n", loc)
			}
			return nil
		}
		return tui.RunTimer(cmd.Context(), e.core)
	}),
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active session",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		s, err := e.core.Pause(cmd.Context())
		if err != nil {
			return err
		}
		printf(cmd, "⏸️  Paused session from %s\n", s.TimeIn)
		return nil
	}),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the paused session",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		s, err := e.core.Resume(cmd.Context())
		if err != nil {
			return err
		}
		printf(cmd, "▶️  Resumed session from %s\n", s.TimeIn)
		return nil
	}),
}

var outCmd = &cobra.Command{
	Use:   "out",
	Short: "Time out: complete the session in progress",
	Long: `Complete the active or paused session. An open pause is counted as paused time.

Examples:
  dtr out
  dtr out --notes "inventory audit" --photo ~/proof.jpg`,
	Args: cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		notes, _ := cmd.Flags().GetString("notes")
		photoPath, _ := cmd.Flags().GetString("photo")

		var photo []byte
		if photoPath != "" {
			data, err := os.ReadFile(photoPath)
			if err != nil {
				return fmt.Errorf("read photo: %w", err)
			}
			photo = data
		}

		s, err := e.core.TimeOut(cmd.Context(), notes, photo)
		if err != nil {
			return err
		}
		if s == nil {
			printf(cmd, "No session in progress\n")
			return nil
		}

		printf(cmd, "⏹️  Timed out at %s\n", models.StringValue(s.TimeOut))
		printf(cmd, "Session duration: %s\n", parser.FormatHours(s.Hours()))
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the dashboard: rendered hours, goal and the live session",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		d, err := e.core.DashboardSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}

		printf(cmd, "Rendered: %s / %s (%.1f%%)\n", parser.FormatHours(d.RenderedHours), parser.FormatHours(d.GoalHours), d.Progress)
		printf(cmd, "Remaining: %s\n", parser.FormatHours(d.RemainingHours))

		if d.Active == nil {
			printf(cmd, "No session in progress\n")
		} else {
			state := "⏱️  On the clock"
			if d.Active.Paused {
				state = "⏸️  Paused"
			}
			printf(cmd, "%s since %s · %s\n", state, d.Active.Session.TimeIn, d.Active.ElapsedText)
		}

		if len(d.Recent) > 0 {
			printf(cmd, "\nRecent:\n")
			writeSessionTable(cmd.OutOrStdout(), d.Recent)
		}
		return nil
	}),
}

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Show the interactive timer for the session in progress",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		return tui.RunTimer(cmd.Context(), e.core)
	}),
}

func init() {
	inCmd.Flags().Bool("no-ui", false, "Time in without the interactive timer")
	outCmd.Flags().String("notes", "", "Notes for the session")
	outCmd.Flags().String("photo", "", "Path to a photo (png, jpeg or webp) as proof of work")
	statusCmd.Flags().Bool("json", false, "JSON output")
}
