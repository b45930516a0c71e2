package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"smartsched/internal/app"
	"smartsched/internal/calendar"
	"smartsched/internal/scheduler"
)

// engineLocation is the zone used for flag values without an offset.
func engineLocation(a *app.App) *time.Location {
	loc, _ := calendar.LoadLocation(a.Engine().Config().DefaultTimeZone, "UTC")
	return loc
}

// scheduleCmd implements 'smartsched schedule'.
func scheduleCmd() *cobra.Command {
	var (
		after     string
		days      int
		ignoreDue bool
	)
	cmd := &cobra.Command{
		Use:   "schedule <task-id>",
		Short: "Place a task into the earliest free slot",
		Args:  cobra.ExactArgs(1),
		Run: withApp(func(ctx context.Context, a *app.App, args []string) error {
			preferred, err := parseTimeFlag("after", after, engineLocation(a))
			if err != nil {
				return err
			}
			res := a.Engine().ScheduleTask(ctx, args[0], scheduler.Constraints{
				PreferredStart: preferred,
				MaxSearchDays:  days,
				IgnoreDueDate:  ignoreDue,
			})
			printOutput(formatter.FormatResult(res))
			return reported(res.Err)
		}),
	}
	cmd.Flags().StringVar(&after, "after", "", "Earliest allowed start (default now)")
	cmd.Flags().IntVar(&days, "days", 0, "Days to search (default from config)")
	cmd.Flags().BoolVar(&ignoreDue, "ignore-due", false, "Allow placement past the due date")
	return cmd
}

// batchCmd implements 'smartsched batch'.
func batchCmd() *cobra.Command {
	var (
		start       string
		days        int
		stopOnError bool
	)
	cmd := &cobra.Command{
		Use:   "batch <task-id>...",
		Short: "Schedule several tasks, most urgent first",
		Args:  cobra.MinimumNArgs(1),
		Run: withApp(func(ctx context.Context, a *app.App, args []string) error {
			from, err := parseTimeFlag("start", start, engineLocation(a))
			if err != nil {
				return err
			}
			res := a.Engine().BatchScheduleTasks(ctx, args, scheduler.BatchOptions{
				StartDate:     from,
				MaxSearchDays: days,
				StopOnError:   stopOnError,
			})
			printOutput(formatter.FormatBatch(res))
			return reported(res.Err)
		}),
	}
	cmd.Flags().StringVar(&start, "start", "", "Earliest allowed start (default now)")
	cmd.Flags().IntVar(&days, "days", 0, "Days to search per task (default from config)")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "Stop at the first task that cannot be placed")
	return cmd
}

// overdueCmd implements 'smartsched overdue'.
func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Reschedule every overdue task",
		Args:  cobra.NoArgs,
		Run: withApp(func(ctx context.Context, a *app.App, _ []string) error {
			res := a.Engine().RescheduleOverdueTasks(ctx)
			printOutput(formatter.FormatBatch(res))
			return reported(res.Err)
		}),
	}
}

// suggestCmd implements 'smartsched suggest'.
func suggestCmd() *cobra.Command {
	var (
		start string
		end   string
		after string
		days  int
	)
	cmd := &cobra.Command{
		Use:   "suggest <task-id>",
		Short: "Analyze a requested move and list alternatives",
		Args:  cobra.ExactArgs(1),
		Run: withApp(func(ctx context.Context, a *app.App, args []string) error {
			loc := engineLocation(a)
			req := scheduler.Requirements{MaxSearchDays: days}
			var err error
			if req.Start, err = parseTimeFlag("start", start, loc); err != nil {
				return err
			}
			if req.End, err = parseTimeFlag("end", end, loc); err != nil {
				return err
			}
			if req.PreferredStart, err = parseTimeFlag("after", after, loc); err != nil {
				return err
			}
			s := a.Engine().SuggestRescheduling(ctx, args[0], req)
			printOutput(formatter.FormatSuggestion(s))
			return reported(s.Err)
		}),
	}
	cmd.Flags().StringVar(&start, "start", "", "Requested start")
	cmd.Flags().StringVar(&end, "end", "", "Requested end")
	cmd.Flags().StringVar(&after, "after", "", "Where the alternative search begins (default now)")
	cmd.Flags().IntVar(&days, "days", 0, "Days to search for alternatives (default from config)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// conflictsCmd implements 'smartsched conflicts'.
func conflictsCmd() *cobra.Command {
	var (
		start   string
		end     string
		exclude string
	)
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Grade how crowded an interval is",
		Args:  cobra.NoArgs,
		Run: withApp(func(ctx context.Context, a *app.App, _ []string) error {
			loc := engineLocation(a)
			var (
				iv  calendar.Interval
				err error
			)
			if iv.Start, err = parseTimeFlag("start", start, loc); err != nil {
				return err
			}
			if iv.End, err = parseTimeFlag("end", end, loc); err != nil {
				return err
			}
			c, err := a.Engine().FindConflicts(ctx, iv, exclude)
			if err != nil {
				return err
			}
			printOutput(formatter.FormatConflicts(scheduler.ClassifyConflicts(c.Count()), c))
			return nil
		}),
	}
	cmd.Flags().StringVar(&start, "start", "", "Interval start")
	cmd.Flags().StringVar(&end, "end", "", "Interval end")
	cmd.Flags().StringVar(&exclude, "exclude", "", "Task id to ignore")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
