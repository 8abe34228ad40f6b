package main

import (
	"github.com/spf13/cobra"

	"sysfail-go/synclog"
)

var (
	globalLogFormat string
	globalDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "sysfail-ctl",
	Short: "Author and diagnose sysfail-go failure-injection plans",
	Long: `sysfail-ctl validates and explains JSON plan descriptions, and checks
whether the running kernel supports syscall user dispatch, without ever
starting an injection session.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	level := synclog.ParseLevel("info")
	if globalDebug {
		level = synclog.ParseLevel("debug")
	}
	synclog.SetDefault(synclog.NewLogger(synclog.Config{
		Level:  level,
		Format: globalLogFormat,
	}))
}
