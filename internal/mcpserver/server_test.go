package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
	"smartsched/internal/scheduler"
	logx "smartsched/pkg/logx"
)

var nine = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeEngine struct {
	gotConstraints scheduler.Constraints
	gotBatchIDs    []string
}

func (f *fakeEngine) ScheduleTask(_ context.Context, id string, c scheduler.Constraints) scheduler.Result {
	f.gotConstraints = c
	if id == "missing" {
		return scheduler.Result{Err: model.NotFoundError{Kind: "task", ID: id}}
	}
	return scheduler.Result{
		Success: true,
		Task:    model.Task{ID: id, Name: "Report"},
		Slot:    scheduler.Slot{Start: nine, End: nine.Add(time.Hour), Duration: 1},
	}
}

func (f *fakeEngine) BatchScheduleTasks(_ context.Context, ids []string, _ scheduler.BatchOptions) scheduler.BatchResult {
	f.gotBatchIDs = ids
	return scheduler.BatchResult{Total: len(ids), Scheduled: len(ids)}
}

func (f *fakeEngine) RescheduleOverdueTasks(context.Context) scheduler.BatchResult {
	return scheduler.BatchResult{}
}

func (f *fakeEngine) SuggestRescheduling(_ context.Context, id string, req scheduler.Requirements) scheduler.Suggestion {
	return scheduler.Suggestion{Success: true, TaskID: id, Requested: calendar.Interval{Start: req.Start, End: req.End}, Level: scheduler.ConflictNone}
}

func (f *fakeEngine) FindConflicts(_ context.Context, iv calendar.Interval, _ string) (scheduler.Conflicts, error) {
	if !iv.Valid() {
		return scheduler.Conflicts{}, scheduler.ErrInvalidRange
	}
	return scheduler.Conflicts{Events: []scheduler.EventConflict{{ID: "e1", Name: "Standup", Type: model.EventMeeting, Start: iv.Start, End: iv.End}}}, nil
}

type fakeTasks []model.Task

func (f fakeTasks) ListTasks(context.Context) ([]model.Task, error) { return f, nil }

func connect(t *testing.T, eng Engine) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	srv := New(eng, fakeTasks{{ID: "a", Name: "Alpha"}}, logx.Nop(), "test")
	st, ct := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, st, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("CallTool(%s) content = %d items", name, len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s) content type %T", name, res.Content[0])
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(text.Text), &body); err != nil {
		// list_tasks returns an array
		var arr []any
		if err2 := json.Unmarshal([]byte(text.Text), &arr); err2 != nil {
			t.Fatalf("CallTool(%s) text %q: %v", name, text.Text, err)
		}
		body = map[string]any{"items": arr}
	}
	return body, res.IsError
}

func TestListsTools(t *testing.T) {
	t.Parallel()
	cs := connect(t, &fakeEngine{})
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	want := map[string]bool{"schedule_task": true, "batch_schedule": true, "reschedule_overdue": true, "suggest_rescheduling": true, "check_conflicts": true, "list_tasks": true}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing tools: %v", want)
	}
}

func TestScheduleTaskTool(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	cs := connect(t, eng)

	body, isErr := call(t, cs, "schedule_task", map[string]any{"task_id": "t1", "after": "2026-03-02T09:00:00Z", "ignore_due_date": true})
	if isErr || body["success"] != true {
		t.Fatalf("schedule_task = %v (isError %v)", body, isErr)
	}
	if !eng.gotConstraints.PreferredStart.Equal(nine) || !eng.gotConstraints.IgnoreDueDate {
		t.Fatalf("constraints = %+v", eng.gotConstraints)
	}

	body, isErr = call(t, cs, "schedule_task", map[string]any{"task_id": "missing"})
	if !isErr || body["error_kind"] != "not_found" {
		t.Fatalf("missing task = %v (isError %v)", body, isErr)
	}

	body, isErr = call(t, cs, "schedule_task", map[string]any{"task_id": "t1", "after": "tomorrow"})
	if !isErr || body["kind"] != "validation" {
		t.Fatalf("bad time = %v (isError %v)", body, isErr)
	}
}

func TestOtherTools(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	cs := connect(t, eng)

	body, isErr := call(t, cs, "batch_schedule", map[string]any{"task_ids": []string{"a", "b"}})
	if isErr || body["scheduled"] != float64(2) || len(eng.gotBatchIDs) != 2 {
		t.Fatalf("batch_schedule = %v", body)
	}

	body, isErr = call(t, cs, "check_conflicts", map[string]any{"start": "2026-03-02T09:00:00Z", "end": "2026-03-02T10:00:00Z"})
	if isErr || body["level"] != "low" {
		t.Fatalf("check_conflicts = %v", body)
	}

	body, isErr = call(t, cs, "check_conflicts", map[string]any{"start": "2026-03-02T10:00:00Z", "end": "2026-03-02T09:00:00Z"})
	if !isErr || body["kind"] != "invalid_range" {
		t.Fatalf("inverted range = %v", body)
	}

	body, isErr = call(t, cs, "list_tasks", map[string]any{})
	if isErr || len(body["items"].([]any)) != 1 {
		t.Fatalf("list_tasks = %v", body)
	}
}
