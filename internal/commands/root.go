package commands

import (
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "dtr",
	Short: "An offline-first daily time record",
	Long: `dtr records work sessions (time in, pauses, time out) for an internship
daily time record. Everything is stored locally first and synced to a shared
backend for supervisor approval when one is configured.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printf(cmd, "dtr %s (commit %s, built %s)\n", version, commit, date)
	},
}

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./dtr.yaml or ~/.dtr/dtr.yaml)")

	rootCmd.AddCommand(inCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(outCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(timerCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(archivedCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(classCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.SetHelpCommand(helpCmd)
}
