package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/t77yq/task-roster/internal/scheduler"
	"github.com/t77yq/task-roster/internal/storage"
)

var extendCmd = &cobra.Command{
	Use:   "extend",
	Short: "Run the horizon extender once",
	Long: `Extend the horizon of every stale recurring task once and exit.

Use this as the entry point for an external scheduler instead of running
"serve". Failures of individual tasks are logged and reported as a partial
run; the command only fails when the run itself could not complete.`,
	RunE: runExtend,
}

func init() {
	rootCmd.AddCommand(extendCmd)
}

func runExtend(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.close(ctx)
	}()

	events, err := a.events()
	if err != nil {
		return err
	}
	engine := scheduler.NewEngine(a.store, a.logger, scheduler.WithPublisher(events))
	extender, err := a.extender(engine)
	if err != nil {
		return err
	}

	run, err := extender.Run(cmd.Context())
	if run != nil {
		printRun(cmd, run)
	}
	if err != nil {
		return fmt.Errorf("extender run failed: %w", err)
	}
	return nil
}

func printRun(cmd *cobra.Command, run *storage.ExtenderRun) {
	fmt.Fprintf(cmd.OutOrStdout(), "run %s %s: %d selected, %d extended, %d failed in %s\n",
		run.ID, run.Status, run.TasksSelected, run.TasksExtended, run.TasksFailed,
		run.Duration.Round(time.Millisecond))
}
