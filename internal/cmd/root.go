package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "task-roster",
	Short: "Recurring task scheduler and assignment engine",
	Long: `task-roster keeps the occurrences of recurring tasks generated one month
ahead, binds them to each task's roster of assignees, and records every
horizon extension run.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx available to subcommands
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
}
