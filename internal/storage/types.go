package storage

import (
	"context"
	"errors"
	"time"

	"smartsched/internal/model"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "memory": process-local maps (default)
//   - "file": JSON snapshot + append-only journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the scheduler and the CLI.
//
// Every query hides inactive (soft deleted) records. Tasks come back with
// Project and Client resolved.
type Store interface {
	FindTask(ctx context.Context, id string) (model.Task, error)
	FindBusyTasksInRange(ctx context.Context, start, end time.Time) ([]model.Task, error)
	FindOverdueTasks(ctx context.Context, now time.Time) ([]model.Task, error)
	FindTasksByIDs(ctx context.Context, ids []string) ([]model.Task, error)
	UpdateTaskSchedule(ctx context.Context, id string, start, end time.Time) (model.Task, error)
	// UpdateTaskScheduleIfFree writes only when no other active task or event
	// overlaps [start, end); otherwise it returns model.ErrSlotTaken.
	UpdateTaskScheduleIfFree(ctx context.Context, id string, start, end time.Time) (model.Task, error)

	FindBusyEventsInRange(ctx context.Context, start, end time.Time) ([]model.Event, error)

	PutClient(ctx context.Context, c model.Client) error
	PutProject(ctx context.Context, p model.Project) error
	PutTask(ctx context.Context, t model.Task) error
	PutEvent(ctx context.Context, e model.Event) error

	// ListTasks returns active tasks ordered by due date.
	ListTasks(ctx context.Context) ([]model.Task, error)

	Close() error
}
