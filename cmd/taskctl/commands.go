package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/domain/query"
	"taskmanager/internal/domain/status"
	"taskmanager/internal/reminder"

	"github.com/spf13/cobra"
)

func registerCmd(a *app) *cobra.Command {
	var req models.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.api.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered %s %s <%s> as %s\n", resp.FirstName, resp.LastName, resp.Email, resp.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.api.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%s)\n", resp.Email, resp.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.api.Logout(cmd.Context()); err != nil {
				fmt.Fprintln(a.out, "Server logout failed, local session cleared:", err)
				return nil
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		},
	}
}

func meCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.api.Restore(cmd.Context())
			if err != nil {
				return err
			}
			if user == nil {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			fmt.Fprintf(a.out, "%s %s <%s>\nrole: %s\nid:   %s\n", user.FirstName, user.LastName, user.Email, user.Role, user.ID)
			return nil
		},
	}
}

func addFilterFlags(cmd *cobra.Command, f *query.Filters) {
	cmd.Flags().StringSliceVar(&f.Status, "status", nil, "statuses: TODO, IN_PROGRESS, COMPLETED, PENDING")
	cmd.Flags().StringSliceVar(&f.Priority, "priority", nil, "priorities: LOW, MEDIUM, HIGH")
	cmd.Flags().StringSliceVar(&f.Users, "users", nil, "user ids (admins only)")
	cmd.Flags().StringVar(&f.Search, "search", "", "text in title or description")
}

func listCmd(a *app) *cobra.Command {
	var f query.Filters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List visible tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.cache.Fetch(cmd.Context()); err != nil {
				return err
			}
			a.cache.SetFilters(f)
			printTasks(a.out, a.cache.Filtered())
			return nil
		},
	}
	addFilterFlags(cmd, &f)
	return cmd
}

func createCmd(a *app) *cobra.Command {
	var req models.CreateTaskRequest
	var due, remind string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			var err error
			if req.DueDate, err = parseWhen(due, now); err != nil {
				return err
			}
			if req.ReminderDate, err = parseWhen(remind, now); err != nil {
				return err
			}
			req.Priority = strings.ToUpper(req.Priority)
			req.Status = strings.ToUpper(req.Status)
			view, err := a.cache.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, view.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "title")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "description")
	cmd.Flags().StringVar(&req.Priority, "priority", "", "LOW, MEDIUM or HIGH (default MEDIUM)")
	cmd.Flags().StringVar(&req.Status, "status", "", "initial status (default TODO)")
	cmd.Flags().StringVar(&due, "due", "", "due date: RFC3339, YYYY-MM-DD or offset like 48h (default in 7 days)")
	cmd.Flags().StringVar(&remind, "remind", "", "reminder date: RFC3339, YYYY-MM-DD or offset like 2h")
	cmd.Flags().StringVar(&req.AssignedTo, "assign", "", "assignee user id")
	cmd.Flags().StringVar(&req.UserID, "creator", "", "creator user id (admins only)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("remind")
	return cmd
}

func updateCmd(a *app) *cobra.Command {
	var title, description, newStatus, priority, due, remind, assign string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change fields of a task; omitted flags are left untouched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req models.UpdateTaskRequest
			flags := cmd.Flags()
			if flags.Changed("title") {
				req.Title = &title
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("status") {
				s := strings.ToUpper(newStatus)
				req.Status = &s
			}
			if flags.Changed("priority") {
				p := strings.ToUpper(priority)
				req.Priority = &p
			}
			if flags.Changed("assign") {
				req.AssignedTo = &assign
			}
			now := time.Now()
			var err error
			if flags.Changed("due") {
				if req.DueDate, err = parseWhen(due, now); err != nil {
					return err
				}
			}
			if flags.Changed("remind") {
				if req.ReminderDate, err = parseWhen(remind, now); err != nil {
					return err
				}
			}
			view, err := a.cache.Update(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			printTasks(a.out, []models.TaskView{*view})
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description")
	cmd.Flags().StringVar(&newStatus, "status", "", "TODO, IN_PROGRESS, COMPLETED or PENDING")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM or HIGH")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	cmd.Flags().StringVar(&remind, "remind", "", "reminder date")
	cmd.Flags().StringVar(&assign, "assign", "", "assignee user id")
	return cmd
}

func deleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.cache.Fetch(cmd.Context()); err != nil {
				return err
			}
			m, err := a.cache.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "delete %s: %s\n", m.TaskID, m.State)
			return nil
		},
	}
}

func watchCmd(a *app) *cobra.Command {
	var f query.Filters
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the task list fresh and print reminders as they come due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.cache.SetFilters(f)
			runner := reminder.NewRunner(reminder.NewScheduler(a.notifier(), time.Now), a.cache, interval)
			if _, err := a.cache.Fetch(ctx); err != nil {
				return err
			}
			if err := runner.Start(); err != nil {
				return err
			}
			defer runner.Stop()
			refresh := a.cfg.Refresh
			if refresh <= 0 {
				refresh = 30 * time.Second
			}
			fmt.Fprintf(a.out, "Watching %d tasks, refreshing every %s\n", len(a.cache.Filtered()), refresh)

			ticker := time.NewTicker(refresh)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := a.cache.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
						fmt.Fprintln(a.out, "Refresh failed:", err)
					}
				}
			}
		},
	}
	addFilterFlags(cmd, &f)
	cmd.Flags().DurationVar(&interval, "interval", reminder.DefaultInterval, "reminder check interval")
	return cmd
}

func adminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative views",
	}

	var withTasks bool
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			if withTasks {
				users, err := a.api.AdminUsersWithTasks(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tCREATED\tASSIGNED")
				for _, u := range users {
					fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%d\t%d\n", u.ID, u.FirstName, u.LastName, u.Email, u.Role, u.TasksCount, u.AssignedCount)
				}
				return w.Flush()
			}
			users, err := a.api.AdminUsers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", u.ID, u.FirstName, u.LastName, u.Email, u.Role)
			}
			return w.Flush()
		},
	}
	usersCmd.Flags().BoolVar(&withTasks, "with-tasks", false, "include task counts")

	var f query.Filters
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "List every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.api.AdminTasks(cmd.Context(), f)
			if err != nil {
				return err
			}
			printTasks(a.out, tasks)
			return nil
		},
	}
	addFilterFlags(tasksCmd, &f)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show task statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.api.AdminStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "users:   %d\ntasks:   %d\noverdue: %d\n", stats.TotalUsers, stats.TotalTasks, stats.Overdue)
			for _, s := range []status.Client{status.Todo, status.InProgress, status.Pending, status.Completed} {
				fmt.Fprintf(a.out, "  %-12s %d\n", s, stats.ByStatus[s])
			}
			for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
				fmt.Fprintf(a.out, "  %-12s %d\n", p, stats.ByPriority[p])
			}
			return nil
		},
	}

	cmd.AddCommand(usersCmd, tasksCmd, statsCmd)
	return cmd
}

func printTasks(out io.Writer, tasks []models.TaskView) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPRIORITY\tDUE\tREMINDER\tASSIGNEE")
	for _, t := range tasks {
		assignee := t.AssignedTo
		if t.AssignedUser != nil {
			assignee = t.AssignedUser.Email
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, t.Priority,
			t.DueDate.Local().Format("2006-01-02 15:04"), t.ReminderDate.Local().Format("2006-01-02 15:04"), assignee)
	}
	_ = w.Flush()
}

// parseWhen accepts an absolute time or an offset from now.
func parseWhen(value string, now time.Time) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, value, now.Location()); err == nil {
		return &t, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		t := now.Add(d)
		return &t, nil
	}
	return nil, fmt.Errorf("%w: cannot parse time %q", errors.ErrValidationFailed, value)
}
