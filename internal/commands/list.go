package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/tui"
)

var listCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List sessions",
	Long: `List sessions, newest first. Shows the most recent sessions unless --all is given.

Examples:
  dtr ls
  dtr ls --month 2024-01
  dtr ls --all --no-ui`,
	Args: cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		month, _ := cmd.Flags().GetString("month")
		all, _ := cmd.Flags().GetBool("all")

		sessions, err := e.core.ListSessions(cmd.Context(), month, all)
		if err != nil {
			return err
		}

		if noUI, _ := cmd.Flags().GetBool("no-ui"); noUI {
			if len(sessions) == 0 {
				printf(cmd, "No sessions found. Use 'dtr in' to start one.\n")
				return nil
			}
			writeSessionTable(cmd.OutOrStdout(), sessions)
			return nil
		}
		return tui.RunList(cmd.Context(), tui.NewListModel(cmd.Context(), sessions, e.core.Archive))
	}),
}

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "List archived sessions",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		sessions, err := e.core.ListArchived(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			printf(cmd, "Archive is empty\n")
			return nil
		}
		writeSessionTable(cmd.OutOrStdout(), sessions)
		return nil
	}),
}

func writeSessionTable(w io.Writer, sessions []models.Session) {
	fmt.Fprintf(w, "%-5s %-10s %-8s %-9s %6s  %-9s %s\n", "ID", "DATE", "IN", "OUT", "HOURS", "APPROVAL", "NOTES")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for i := range sessions {
		s := &sessions[i]
		out := models.StringValue(s.TimeOut)
		if out == "" {
			out = string(s.Status)
		}
		notes := models.StringValue(s.Notes)
		if len(notes) > 30 {
			notes = notes[:27] + "..."
		}
		fmt.Fprintf(w, "%-5d %-10s %-8s %-9s %6.2f  %-9s %s\n", s.ID, s.Date, s.TimeIn, out, s.Hours(), s.Approval(), notes)
	}
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid session ID '%s'", arg)
	}
	return uint(id), nil
}

func init() {
	listCmd.Flags().String("month", "", "Only sessions of a month (YYYY-MM)")
	listCmd.Flags().Bool("all", false, "Show every session instead of the most recent")
	listCmd.Flags().Bool("no-ui", false, "Simple text output")
}
