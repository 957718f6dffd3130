package commands

import (
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push completed sessions to the shared backend and pull approvals",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		res, err := e.core.Sync(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		printf(cmd, "🔄 Synced %d session(s)\n", res.Pushed)
		if n := len(res.StatusUpdates); n > 0 {
			printf(cmd, "Approval updates: %d\n", n)
		}
		if n := len(res.Deferred); n > 0 {
			printf(cmd, "Photos waiting for upload: %d\n", n)
		}
		if n := len(res.Failed); n > 0 {
			printf(cmd, "Not pushed, will retry: %d\n", n)
		}
		return nil
	}),
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run autosave and background sync until interrupted",
	Args:  cobra.NoArgs,
	Run: withCore(func(cmd *cobra.Command, args []string, e *env) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e.log.Info("daemon started",
			zap.Duration("autosave", e.cfg.Store.AutosaveInterval),
			zap.Duration("sync_interval", e.cfg.Sync.Interval),
			zap.Bool("remote", e.cfg.Remote.Enabled()),
		)
		return e.core.Run(ctx)
	}),
}

func init() {
	syncCmd.Flags().Bool("json", false, "JSON output")
}
