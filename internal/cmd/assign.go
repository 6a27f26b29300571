package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/t77yq/task-roster/internal/model"
)

var (
	assignTask  string
	assignUsers []string
	assignBy    string

	completeAssignment string
	completeValue      string
	completeComment    string

	assignmentsUser   string
	assignmentsStatus string
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Add users to a task's roster and bind them to its pending occurrences",
	RunE:  runAssign,
}

var reassignCmd = &cobra.Command{
	Use:   "reassign",
	Short: "Replace a recurring task's roster from the next extension on",
	RunE:  runReassign,
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Complete an assignment with its parameter value",
	RunE:  runComplete,
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments",
	Short: "List a user's assignments, newest first",
	RunE:  runAssignments,
}

func init() {
	for _, c := range []*cobra.Command{assignCmd, reassignCmd} {
		c.Flags().StringVar(&assignTask, "task", "", "Task id")
		c.Flags().StringSliceVar(&assignUsers, "user", nil, "User id (repeatable or comma separated)")
		c.Flags().StringVar(&assignBy, "by", "cli", "Id recorded as the assigner")
		_ = c.MarkFlagRequired("task")
		rootCmd.AddCommand(c)
	}
	_ = assignCmd.MarkFlagRequired("user")

	completeCmd.Flags().StringVar(&completeAssignment, "assignment", "", "Assignment id")
	completeCmd.Flags().StringVar(&completeValue, "value", "", "Parameter value")
	completeCmd.Flags().StringVar(&completeComment, "comment", "", "Optional comment")
	_ = completeCmd.MarkFlagRequired("assignment")
	rootCmd.AddCommand(completeCmd)

	assignmentsCmd.Flags().StringVar(&assignmentsUser, "user", "", "User id")
	assignmentsCmd.Flags().StringVar(&assignmentsStatus, "status", "", "Only show assignments with this status (PENDING, COMPLETED)")
	_ = assignmentsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(assignmentsCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	engine, _, err := a.services()
	if err != nil {
		return err
	}
	added, err := engine.AssignToUsers(cmd.Context(), assignTask, assignUsers, assignBy)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "assigned %s to task %s\n", strings.Join(added, ", "), assignTask)
	return nil
}

func runReassign(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	engine, _, err := a.services()
	if err != nil {
		return err
	}
	if err := engine.ReassignTask(cmd.Context(), assignTask, assignUsers, assignBy); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "task %s roster: [%s]\n", assignTask, strings.Join(assignUsers, ", "))
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	engine, _, err := a.services()
	if err != nil {
		return err
	}
	var comment *string
	if completeComment != "" {
		comment = &completeComment
	}
	done, err := engine.CompleteAssignment(cmd.Context(), completeAssignment, completeValue, comment)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "assignment %s %s at %s\n",
		done.ID, done.Status, done.CompletedAt.UTC().Format(time.RFC3339))
	return nil
}

func runAssignments(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	engine, _, err := a.services()
	if err != nil {
		return err
	}
	status := model.AssignmentStatus(strings.ToUpper(assignmentsStatus))
	assignments, err := engine.AssignmentsByUser(cmd.Context(), assignmentsUser, status)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tOCCURRENCE\tSTATUS\tVALUE")
	for _, as := range assignments {
		occurrence, value := "-", "-"
		if as.OccurrenceID != nil {
			occurrence = *as.OccurrenceID
		}
		if as.ParameterValue != nil {
			value = *as.ParameterValue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", as.ID, as.TaskID, occurrence, as.Status, value)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d assignments\n", len(assignments))
	return nil
}

// closeApp gives pending event acknowledgements a bounded wait
func closeApp(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.close(ctx)
}
