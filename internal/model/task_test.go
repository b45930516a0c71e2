package model

import (
	"errors"
	"testing"
	"time"
)

func baseTask(now time.Time) Task {
	return Task{
		ID:       "t1",
		Name:     "Write report",
		Duration: 1.5,
		DueDate:  now.Add(48 * time.Hour),
		Priority: 3,
		Status:   StatusPending,
		Active:   true,
	}
}

func TestTaskDerivedState(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tk := baseTask(now)
	if tk.IsOverdue(now) {
		t.Fatalf("task due in 2 days reported overdue")
	}
	if got := tk.DaysUntilDue(now); got != 2 {
		t.Fatalf("DaysUntilDue = %d, want 2", got)
	}
	if got := tk.Length(); got != 90*time.Minute {
		t.Fatalf("Length = %v, want 1h30m", got)
	}

	tk.DueDate = now.Add(-time.Hour)
	if !tk.IsOverdue(now) {
		t.Fatalf("expected overdue")
	}
	if tk.IsLocked(now) {
		t.Fatalf("pending task must not lock itself")
	}

	tk.Status = StatusCompleted
	if tk.IsOverdue(now) {
		t.Fatalf("completed task is never overdue")
	}
	if !tk.IsLocked(now) {
		t.Fatalf("completed task past due should be locked")
	}
}

func TestTaskTimeZone(t *testing.T) {
	t.Parallel()
	tk := Task{}
	if tk.TimeZone() != "" {
		t.Fatalf("expected empty zone without project")
	}
	tk.Project = &Project{ID: "p", Client: &Client{ID: "c", CompanyName: "Acme", TimeZone: " Europe/Berlin "}}
	if got := tk.TimeZone(); got != "Europe/Berlin" {
		t.Fatalf("TimeZone = %q", got)
	}
	if got := tk.ClientName(); got != "Acme" {
		t.Fatalf("ClientName = %q", got)
	}
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)
	end := now

	tests := []struct {
		name  string
		mut   func(*Task)
		field string
	}{
		{name: "ok", mut: func(*Task) {}},
		{name: "duration quantum", mut: func(t *Task) { t.Duration = 1.1 }, field: "duration"},
		{name: "duration too long", mut: func(t *Task) { t.Duration = 25 }, field: "duration"},
		{name: "priority", mut: func(t *Task) { t.Priority = 6 }, field: "priority"},
		{name: "status", mut: func(t *Task) { t.Status = "done" }, field: "status"},
		{name: "half interval", mut: func(t *Task) { t.ScheduledStart = &start }, field: "scheduled_end"},
		{name: "inverted interval", mut: func(t *Task) { t.ScheduledStart, t.ScheduledEnd = &start, &end }, field: "scheduled_end"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tk := baseTask(now)
			tt.mut(&tk)
			err := tk.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("Field = %s, want %s", ve.Field, tt.field)
			}
		})
	}
}

func TestNotFoundErrorMatchesSentinel(t *testing.T) {
	t.Parallel()
	err := error(NotFoundError{Kind: "task", ID: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is(err, ErrNotFound)")
	}
	if NewID() == NewID() {
		t.Fatalf("expected unique ids")
	}
}
