package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"smartsched/internal/model"
	"smartsched/internal/storage"
)

func TestParseTimeFlag(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"", time.Time{}},
		{"2026-03-02T09:30:00Z", time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)},
		{"2026-03-02T09:30", time.Date(2026, 3, 2, 9, 30, 0, 0, ny)},
		{"2026-03-02 09:30", time.Date(2026, 3, 2, 9, 30, 0, 0, ny)},
		{"2026-03-02", time.Date(2026, 3, 2, 0, 0, 0, 0, ny)},
	}
	for _, tt := range tests {
		got, err := parseTimeFlag("start", tt.raw, ny)
		if err != nil {
			t.Fatalf("parseTimeFlag(%q): %v", tt.raw, err)
		}
		if !got.Equal(tt.want) {
			t.Fatalf("parseTimeFlag(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	if _, err := parseTimeFlag("start", "next tuesday", ny); err == nil || !strings.Contains(err.Error(), "--start") {
		t.Fatalf("bad value err = %v", err)
	}
}

const seedYAML = `
clients:
  - id: acme
    company_name: Acme
    time_zone: Europe/Berlin
projects:
  - id: site
    name: Website
    client_id: acme
tasks:
  - id: t1
    name: Draft copy
    project_id: site
    duration: 1.5
    due_date: "2026-03-06T17:00:00Z"
    priority: 4
  - id: t2
    name: Old task
    duration: 1
    due_date: "2026-03-06T17:00:00Z"
    priority: 2
    active: false
events:
  - name: Standup
    type: meeting
    start: "2026-03-02T09:00:00Z"
    end: "2026-03-02T09:15:00Z"
`

func TestImportSeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory()
	defer store.Close()

	sum, err := importSeed(ctx, store, "seed.yaml", []byte(seedYAML))
	if err != nil {
		t.Fatalf("importSeed: %v", err)
	}
	if sum.Clients != 1 || sum.Projects != 1 || sum.Tasks != 2 || sum.Events != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	task, err := store.FindTask(ctx, "t1")
	if err != nil {
		t.Fatalf("FindTask: %v", err)
	}
	if task.Status != model.StatusPending || !task.Active || task.ClientName() != "Acme" {
		t.Fatalf("task = %+v", task)
	}
	if _, err := store.FindTask(ctx, "t2"); err == nil {
		t.Fatal("inactive task should be hidden")
	}

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events, err := store.FindBusyEventsInRange(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FindBusyEventsInRange: %v", err)
	}
	if len(events) != 1 || events[0].ID == "" || events[0].Source != model.SourceLocal {
		t.Fatalf("events = %+v", events)
	}
}

func TestImportSeedRejectsInvalidTask(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	defer store.Close()

	bad := `{"tasks":[{"id":"x","name":"Bad","duration":0.1,"due_date":"2026-03-06T17:00:00Z","priority":3}]}`
	if _, err := importSeed(context.Background(), store, "seed.json", []byte(bad)); err == nil {
		t.Fatal("expected validation error")
	}
	tasks, _ := store.ListTasks(context.Background())
	if len(tasks) != 0 {
		t.Fatalf("partial import wrote %d tasks", len(tasks))
	}
}
