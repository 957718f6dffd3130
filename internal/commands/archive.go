package commands

import (
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:     "archive [session-id]",
	Aliases: []string{"rm"},
	Short:   "Move a session to the archive",
	Long:    "Archive a session. Archived sessions are kept for the retention period and can be recovered until then.",
	Args:    cobra.ExactArgs(1),
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := e.core.Archive(cmd.Context(), id); err != nil {
			return err
		}
		printf(cmd, "🗃️  Archived session #%d\n", id)
		return nil
	}),
}

var recoverCmd = &cobra.Command{
	Use:   "recover [session-id]",
	Short: "Restore an archived session",
	Args:  cobra.ExactArgs(1),
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := e.core.Recover(cmd.Context(), id); err != nil {
			return err
		}
		printf(cmd, "📤 Recovered session #%d\n", id)
		return nil
	}),
}

var purgeCmd = &cobra.Command{
	Use:   "purge [session-id]",
	Short: "Permanently delete an archived session",
	Args:  cobra.ExactArgs(1),
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := e.core.Purge(cmd.Context(), id); err != nil {
			return err
		}
		printf(cmd, "🗑️  Purged session #%d\n", id)
		return nil
	}),
}
