package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/balkashynov/dtr/internal/models"
	"github.com/balkashynov/dtr/internal/remote"
)

var classCmd = &cobra.Command{
	Use:   "class",
	Short: "Classes, rosters and approvals on the shared backend",
}

var classCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a class owned by the configured teacher",
	Args:  cobra.ExactArgs(1),
	Run: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		r, err := e.openRemote()
		if err != nil {
			return err
		}
		if e.cfg.User.Role != remote.RoleTeacher {
			return fmt.Errorf("only teachers can create classes (user.role is %q)", e.cfg.User.Role)
		}
		class, err := r.CreateClass(cmd.Context(), e.cfg.User.UID, args[0])
		if err != nil {
			return err
		}
		printf(cmd, "🏫 Created class %q · code %s\n", class.Name, class.Code)
		return nil
	}),
}

var classListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured teacher's classes",
	Args:  cobra.NoArgs,
	Run: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		r, err := e.openRemote()
		if err != nil {
			return err
		}
		classes, err := r.ClassesByTeacher(cmd.Context(), e.cfg.User.UID)
		if err != nil {
			return err
		}
		if len(classes) == 0 {
			printf(cmd, "No classes yet. Use 'dtr class create <name>'.\n")
			return nil
		}
		for _, c := range classes {
			printf(cmd, "%-8s %s\n", c.Code, c.Name)
		}
		return nil
	}),
}

var classJoinCmd = &cobra.Command{
	Use:   "join [code]",
	Short: "Register the configured student under a class code",
	Args:  cobra.ExactArgs(1),
	Run: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		r, err := e.openRemote()
		if err != nil {
			return err
		}
		if e.cfg.User.UID == "" {
			return fmt.Errorf("user.uid is not configured")
		}
		user := &remote.User{
			ID:        e.cfg.User.UID,
			Role:      remote.RoleStudent,
			Name:      e.cfg.User.Name,
			ClassCode: args[0],
		}
		if err := r.UpsertProfile(cmd.Context(), user); err != nil {
			return err
		}
		printf(cmd, "✅ Joined class %s\n", user.ClassCode)
		return nil
	}),
}

var classStudentsCmd = &cobra.Command{
	Use:   "students [code]",
	Short: "Show a class roster with rendered hours",
	Args:  cobra.ExactArgs(1),
	Run: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		r, err := e.openRemote()
		if err != nil {
			return err
		}
		students, err := r.StudentsByClass(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(students) == 0 {
			printf(cmd, "No students in %s\n", strings.ToUpper(args[0]))
			return nil
		}
		printf(cmd, "%-24s %-20s %9s %9s %8s\n", "ID", "NAME", "RENDERED", "GOAL", "SESSIONS")
		for _, s := range students {
			printf(cmd, "%-24s %-20s %9.2f %9.0f %8d\n", s.ID, s.Name, s.Rendered, s.GoalHours, s.Sessions)
		}
		return nil
	}),
}

var classLogsCmd = &cobra.Command{
	Use:   "logs [student-id]",
	Short: "Show a student's synced sessions",
	Args:  cobra.ExactArgs(1),
	Run: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		r, err := e.openRemote()
		if err != nil {
			return err
		}
		logs, err := r.StudentLogs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printf(cmd, "%-28s %-10s %-8s %-8s %6s  %s\n", "KEY", "DATE", "IN", "OUT", "HOURS", "APPROVAL")
		for _, l := range logs {
			printf(cmd, "%-28s %-10s %-8s %-8s %6.2f  %s\n", l.Key, l.Date, l.TimeIn, l.TimeOut, l.Duration, l.Approval())
		}
		return nil
	}),
}

var classApproveCmd = &cobra.Command{
	Use:   "approve [student-id] [key...]",
	Short: "Approve (or with --reject, reject) synced sessions",
	Args:  cobra.MinimumNArgs(2),
	Run: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		r, err := e.openRemote()
		if err != nil {
			return err
		}
		status := models.ApprovalApproved
		if reject, _ := cmd.Flags().GetBool("reject"); reject {
			status = models.ApprovalRejected
		}

		decisions := make(map[string]models.ApprovalStatus, len(args)-1)
		for _, key := range args[1:] {
			decisions[key] = status
		}
		changed, err := r.SetApprovals(cmd.Context(), args[0], decisions)
		if err != nil {
			return err
		}
		printf(cmd, "✅ Marked %d session(s) %s\n", changed, status)
		return nil
	}),
}

func init() {
	classApproveCmd.Flags().Bool("reject", false, "Reject instead of approve")

	classCmd.AddCommand(classCreateCmd)
	classCmd.AddCommand(classListCmd)
	classCmd.AddCommand(classJoinCmd)
	classCmd.AddCommand(classStudentsCmd)
	classCmd.AddCommand(classLogsCmd)
	classCmd.AddCommand(classApproveCmd)
}
