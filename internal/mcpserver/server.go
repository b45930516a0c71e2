// Package mcpserver exposes the scheduling engine as Model Context Protocol
// tools so an assistant can place and inspect tasks over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
	"smartsched/internal/output"
	"smartsched/internal/scheduler"
	logx "smartsched/pkg/logx"
)

// Engine is the part of *scheduler.Engine the tools call.
type Engine interface {
	ScheduleTask(ctx context.Context, taskID string, c scheduler.Constraints) scheduler.Result
	BatchScheduleTasks(ctx context.Context, ids []string, opts scheduler.BatchOptions) scheduler.BatchResult
	RescheduleOverdueTasks(ctx context.Context) scheduler.BatchResult
	SuggestRescheduling(ctx context.Context, taskID string, req scheduler.Requirements) scheduler.Suggestion
	FindConflicts(ctx context.Context, iv calendar.Interval, excludeTaskID string) (scheduler.Conflicts, error)
}

type TaskLister interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
}

type ScheduleInput struct {
	TaskID        string `json:"task_id" jsonschema:"id of the task to place"`
	After         string `json:"after,omitempty" jsonschema:"earliest allowed start, RFC3339; default now"`
	MaxSearchDays int    `json:"max_search_days,omitempty" jsonschema:"days to search; default from config"`
	IgnoreDueDate bool   `json:"ignore_due_date,omitempty" jsonschema:"allow placement past the due date"`
}

type BatchInput struct {
	TaskIDs       []string `json:"task_ids" jsonschema:"ids of the tasks to place, scheduled most urgent first"`
	StartDate     string   `json:"start_date,omitempty" jsonschema:"earliest allowed start, RFC3339; default now"`
	MaxSearchDays int      `json:"max_search_days,omitempty" jsonschema:"days to search per task"`
	StopOnError   bool     `json:"stop_on_error,omitempty" jsonschema:"stop at the first task that cannot be placed"`
}

type SuggestInput struct {
	TaskID        string `json:"task_id" jsonschema:"id of the task to move"`
	Start         string `json:"start" jsonschema:"requested start, RFC3339"`
	End           string `json:"end" jsonschema:"requested end, RFC3339"`
	After         string `json:"after,omitempty" jsonschema:"where the alternative search begins, RFC3339; default now"`
	MaxSearchDays int    `json:"max_search_days,omitempty" jsonschema:"days to search for alternatives"`
}

type ConflictsInput struct {
	Start         string `json:"start" jsonschema:"interval start, RFC3339"`
	End           string `json:"end" jsonschema:"interval end, RFC3339"`
	ExcludeTaskID string `json:"exclude_task_id,omitempty" jsonschema:"task id to ignore"`
}

type EmptyInput struct{}

type tools struct {
	eng   Engine
	tasks TaskLister
	log   logx.Logger
	out   *output.JSONFormatter
}

// New builds a server with one tool per engine operation plus list_tasks.
func New(eng Engine, tasks TaskLister, log logx.Logger, version string) *mcp.Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &tools{eng: eng, tasks: tasks, log: log.With(logx.String("comp", "mcp")), out: output.NewJSONFormatter()}

	s := mcp.NewServer(&mcp.Implementation{Name: "smartsched", Version: version}, nil)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "schedule_task",
		Description: "Place a task into the earliest free working-time slot before its due date.",
	}, t.schedule)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "batch_schedule",
		Description: "Schedule several tasks in priority order. Each placed task blocks time for the next.",
	}, t.batch)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "reschedule_overdue",
		Description: "Move every overdue, unfinished task into the next free slots.",
	}, t.overdue)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "suggest_rescheduling",
		Description: "Report conflicts for a requested interval and rank alternative slots. Read-only.",
	}, t.suggest)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "check_conflicts",
		Description: "List tasks and events overlapping an interval and grade the conflict level.",
	}, t.conflicts)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List active tasks ordered by due date.",
	}, t.list)
	return s
}

// Serve runs s over stdin/stdout until ctx is canceled or the client hangs up.
func Serve(ctx context.Context, s *mcp.Server) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string, failed bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: failed,
	}
}

func (t *tools) fail(tool string, err error) (*mcp.CallToolResult, any, error) {
	t.log.Debug("tool failed", logx.String("tool", tool), logx.Err(err))
	return textResult(t.out.FormatError(err), true), nil, nil
}

func (t *tools) schedule(ctx context.Context, _ *mcp.CallToolRequest, in ScheduleInput) (*mcp.CallToolResult, any, error) {
	after, err := parseTime("after", in.After)
	if err != nil {
		return t.fail("schedule_task", err)
	}
	res := t.eng.ScheduleTask(ctx, in.TaskID, scheduler.Constraints{
		PreferredStart: after,
		MaxSearchDays:  in.MaxSearchDays,
		IgnoreDueDate:  in.IgnoreDueDate,
	})
	return textResult(t.out.FormatResult(res), res.Err != nil), nil, nil
}

func (t *tools) batch(ctx context.Context, _ *mcp.CallToolRequest, in BatchInput) (*mcp.CallToolResult, any, error) {
	start, err := parseTime("start_date", in.StartDate)
	if err != nil {
		return t.fail("batch_schedule", err)
	}
	res := t.eng.BatchScheduleTasks(ctx, in.TaskIDs, scheduler.BatchOptions{
		StartDate:     start,
		MaxSearchDays: in.MaxSearchDays,
		StopOnError:   in.StopOnError,
	})
	return textResult(t.out.FormatBatch(res), res.Err != nil), nil, nil
}

func (t *tools) overdue(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	res := t.eng.RescheduleOverdueTasks(ctx)
	return textResult(t.out.FormatBatch(res), res.Err != nil), nil, nil
}

func (t *tools) suggest(ctx context.Context, _ *mcp.CallToolRequest, in SuggestInput) (*mcp.CallToolResult, any, error) {
	req := scheduler.Requirements{MaxSearchDays: in.MaxSearchDays}
	var err error
	if req.Start, err = parseTime("start", in.Start); err != nil {
		return t.fail("suggest_rescheduling", err)
	}
	if req.End, err = parseTime("end", in.End); err != nil {
		return t.fail("suggest_rescheduling", err)
	}
	if req.PreferredStart, err = parseTime("after", in.After); err != nil {
		return t.fail("suggest_rescheduling", err)
	}
	s := t.eng.SuggestRescheduling(ctx, in.TaskID, req)
	return textResult(t.out.FormatSuggestion(s), s.Err != nil), nil, nil
}

func (t *tools) conflicts(ctx context.Context, _ *mcp.CallToolRequest, in ConflictsInput) (*mcp.CallToolResult, any, error) {
	var (
		iv  calendar.Interval
		err error
	)
	if iv.Start, err = parseTime("start", in.Start); err != nil {
		return t.fail("check_conflicts", err)
	}
	if iv.End, err = parseTime("end", in.End); err != nil {
		return t.fail("check_conflicts", err)
	}
	c, err := t.eng.FindConflicts(ctx, iv, in.ExcludeTaskID)
	if err != nil {
		return t.fail("check_conflicts", err)
	}
	return textResult(t.out.FormatConflicts(scheduler.ClassifyConflicts(c.Count()), c), false), nil, nil
}

func (t *tools) list(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, any, error) {
	if t.tasks == nil {
		return t.fail("list_tasks", fmt.Errorf("task listing unavailable"))
	}
	tasks, err := t.tasks.ListTasks(ctx)
	if err != nil {
		return t.fail("list_tasks", err)
	}
	return textResult(t.out.FormatTasks(tasks), false), nil, nil
}

func parseTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, model.ValidationError{Field: field, Reason: "must be an RFC3339 timestamp"}
	}
	return ts, nil
}
