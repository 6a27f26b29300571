package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/t77yq/task-roster/internal/model"
)

var (
	userID        string
	userFirstName string
	userLastName  string
	userEmail     string
	userRole      string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the users tasks can be assigned to",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a user",
	RunE:  runUserAdd,
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and remove tasks",
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its upcoming occurrences and roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task with its occurrences, assignments and roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

func init() {
	userAddCmd.Flags().StringVar(&userID, "id", "", "User id (generated when empty)")
	userAddCmd.Flags().StringVar(&userFirstName, "first-name", "", "First name")
	userAddCmd.Flags().StringVar(&userLastName, "last-name", "", "Last name")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userAddCmd.Flags().StringVar(&userRole, "role", string(model.UserRoleMember), "Role (ADMIN, MEMBER)")
	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)

	taskCmd.AddCommand(taskShowCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	role := model.UserRole(strings.ToUpper(userRole))
	if role != model.UserRoleAdmin && role != model.UserRoleMember {
		return fmt.Errorf("--role must be ADMIN or MEMBER, got %q", userRole)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	_, tasks, err := a.services()
	if err != nil {
		return err
	}
	u := &model.User{
		ID:        userID,
		FirstName: userFirstName,
		LastName:  userLastName,
		Email:     userEmail,
		Role:      role,
	}
	if err := tasks.CreateUser(cmd.Context(), u); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "user %s %s\n", u.ID, u.Role)
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	_, tasks, err := a.services()
	if err != nil {
		return err
	}
	details, err := tasks.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	task := details.Task
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s %q\n", task.ID, task.Type, task.Title)
	if task.NextDueDate != nil {
		fmt.Fprintf(out, "next due: %s\n", task.NextDueDate.UTC().Format(time.RFC3339))
	}
	if task.GeneratedUntil != nil {
		fmt.Fprintf(out, "generated until: %s\n", task.GeneratedUntil.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "assignees: [%s]\n", strings.Join(details.Assignees, ", "))

	if len(details.Upcoming) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "OCCURRENCE\tSCHEDULED\tSTATUS")
	for _, occ := range details.Upcoming {
		fmt.Fprintf(w, "%s\t%s\t%s\n", occ.ID, occ.ScheduledDate.UTC().Format(time.RFC3339), occ.Status)
	}
	return w.Flush()
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp(a)

	_, tasks, err := a.services()
	if err != nil {
		return err
	}
	if err := tasks.DeleteTask(cmd.Context(), args[0]); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "deleted task %s\n", args[0])
	return nil
}
