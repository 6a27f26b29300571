package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/t77yq/task-roster/internal/storage"
)

var (
	runsLimit  int
	runsStatus string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent horizon extender runs",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to show")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Only show runs with this status (RUNNING, COMPLETED, PARTIAL, FAILED)")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	if runsLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", runsLimit)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	status := storage.RunStatus(strings.ToUpper(runsStatus))
	history := a.store.History()
	runs, err := history.List(cmd.Context(), status, 0, runsLimit)
	if err != nil {
		return err
	}
	total, err := history.Count(cmd.Context(), status)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tSELECTED\tEXTENDED\tFAILED\tDURATION\tERROR")
	for _, run := range runs {
		errText := run.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Status,
			run.TasksSelected,
			run.TasksExtended,
			run.TasksFailed,
			run.Duration.Round(time.Millisecond),
			errText)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d runs\n", len(runs), total)
	return nil
}
