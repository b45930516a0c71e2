package scheduler

import (
	"context"
	"fmt"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
)

// Config controls slot search. The zero value of any field falls back to
// the matching DefaultConfig value.
type Config struct {
	WorkdayStart calendar.Clock
	WorkdayEnd   calendar.Clock
	WorkingDays  []time.Weekday

	// Buffer is the smallest free gap worth considering.
	Buffer time.Duration

	MaxSearchDays        int
	OverdueSearchDays    int
	SuggestionSearchDays int

	// AlternativesCap bounds how many alternatives are collected;
	// AlternativesReturned bounds how many are handed back.
	AlternativesCap      int
	AlternativesReturned int

	// DefaultTimeZone applies to tasks whose client has no zone.
	DefaultTimeZone string
}

func DefaultConfig() Config {
	ww := calendar.DefaultWorkWeek()
	return Config{
		WorkdayStart:         ww.Start,
		WorkdayEnd:           ww.End,
		WorkingDays:          ww.Days,
		Buffer:               15 * time.Minute,
		MaxSearchDays:        30,
		OverdueSearchDays:    14,
		SuggestionSearchDays: 14,
		AlternativesCap:      10,
		AlternativesReturned: 5,
		DefaultTimeZone:      "UTC",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkdayStart == (calendar.Clock{}) && c.WorkdayEnd == (calendar.Clock{}) {
		c.WorkdayStart, c.WorkdayEnd = d.WorkdayStart, d.WorkdayEnd
	}
	if len(c.WorkingDays) == 0 {
		c.WorkingDays = d.WorkingDays
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	if c.MaxSearchDays <= 0 {
		c.MaxSearchDays = d.MaxSearchDays
	}
	if c.OverdueSearchDays <= 0 {
		c.OverdueSearchDays = d.OverdueSearchDays
	}
	if c.SuggestionSearchDays <= 0 {
		c.SuggestionSearchDays = d.SuggestionSearchDays
	}
	if c.AlternativesCap <= 0 {
		c.AlternativesCap = d.AlternativesCap
	}
	if c.AlternativesReturned <= 0 {
		c.AlternativesReturned = d.AlternativesReturned
	}
	if c.AlternativesReturned > c.AlternativesCap {
		c.AlternativesReturned = c.AlternativesCap
	}
	if c.DefaultTimeZone == "" {
		c.DefaultTimeZone = d.DefaultTimeZone
	}
	return c
}

// WorkWeek returns the working-time calendar described by c.
func (c Config) WorkWeek() calendar.WorkWeek {
	return calendar.WorkWeek{Start: c.WorkdayStart, End: c.WorkdayEnd, Days: c.WorkingDays}
}

// Validate reports configuration that can never produce a slot.
func (c Config) Validate() error {
	c = c.withDefaults()
	if err := c.WorkWeek().Validate(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.DefaultTimeZone); err != nil {
		return fmt.Errorf("default timezone %q: %w", c.DefaultTimeZone, err)
	}
	return nil
}

// Constraints narrow a single placement.
type Constraints struct {
	// PreferredStart is the earliest allowed start; zero means now.
	PreferredStart time.Time
	// MaxSearchDays bounds the day walk; zero uses Config.MaxSearchDays.
	MaxSearchDays int
	// IgnoreDueDate lets placement run past the due date. Overdue
	// rescheduling sets it since the due date already lies behind now.
	IgnoreDueDate bool
}

// Slot is a placed interval. Duration is in hours.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration"`
}

func slotOf(iv calendar.Interval) Slot {
	return Slot{Start: iv.Start, End: iv.End, Duration: iv.Hours()}
}

// Interval returns the slot as a calendar interval.
func (s Slot) Interval() calendar.Interval {
	return calendar.Interval{Start: s.Start, End: s.End}
}

// Result is the outcome of a single-task operation. Err is nil exactly when
// Success is true.
type Result struct {
	Success bool       `json:"success"`
	Task    model.Task `json:"task"`
	Slot    Slot       `json:"slot"`
	// Unchanged is set when the task already held the chosen slot.
	Unchanged bool  `json:"unchanged,omitempty"`
	Err       error `json:"-"`
}

// BatchOptions tune BatchScheduleTasks.
type BatchOptions struct {
	StartDate     time.Time
	MaxSearchDays int
	StopOnError   bool
}

// BatchItem is the outcome for one task of a batch.
type BatchItem struct {
	TaskID   string  `json:"task_id"`
	TaskName string  `json:"task_name,omitempty"`
	Priority int     `json:"priority,omitempty"`
	Score    float64 `json:"score,omitempty"`
	Success  bool    `json:"success"`
	Slot     *Slot   `json:"slot,omitempty"`
	Error    string  `json:"error,omitempty"`
	Err      error   `json:"-"`
}

// BatchResult summarizes a batch. Err is set only when the batch could not
// start at all (for example the repository query failed).
type BatchResult struct {
	Total     int         `json:"total"`
	Scheduled int         `json:"scheduled"`
	Failed    int         `json:"failed"`
	Items     []BatchItem `json:"items"`
	Err       error       `json:"-"`
}

func (b *BatchResult) add(it BatchItem) {
	if it.Success {
		b.Scheduled++
	} else {
		b.Failed++
		if it.Err != nil && it.Error == "" {
			it.Error = it.Err.Error()
		}
	}
	b.Items = append(b.Items, it)
}

// Requirements describe a desired new interval for SuggestRescheduling.
type Requirements struct {
	Start time.Time
	End   time.Time

	// PreferredStart is where the alternative search begins; zero means now.
	PreferredStart time.Time
	// MaxSearchDays bounds the alternative search; zero uses
	// Config.SuggestionSearchDays.
	MaxSearchDays int
}

// ConflictLevel grades how crowded an interval is.
type ConflictLevel string

const (
	ConflictNone   ConflictLevel = "none"
	ConflictLow    ConflictLevel = "low"
	ConflictMedium ConflictLevel = "medium"
	ConflictHigh   ConflictLevel = "high"
)

// ClassifyConflicts maps a count of overlapping items to a level.
func ClassifyConflicts(n int) ConflictLevel {
	switch {
	case n <= 0:
		return ConflictNone
	case n == 1:
		return ConflictLow
	case n <= 3:
		return ConflictMedium
	default:
		return ConflictHigh
	}
}

type TaskConflict struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Priority       int       `json:"priority"`
	Client         string    `json:"client,omitempty"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

type EventConflict struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Type  model.EventType `json:"type"`
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`
}

// Conflicts lists everything overlapping a requested interval.
type Conflicts struct {
	Tasks  []TaskConflict  `json:"tasks"`
	Events []EventConflict `json:"events"`
}

func (c Conflicts) Count() int { return len(c.Tasks) + len(c.Events) }

// Alternative is a scored candidate slot.
type Alternative struct {
	Slot
	Score     int    `json:"score"`
	DayOfWeek string `json:"day_of_week"`
	TimeOfDay string `json:"time_of_day"`
}

// Suggestion is the read-only analysis returned by SuggestRescheduling.
type Suggestion struct {
	Success         bool               `json:"success"`
	TaskID          string             `json:"task_id"`
	CurrentSchedule *calendar.Interval `json:"current_schedule,omitempty"`
	Requested       calendar.Interval  `json:"requested"`
	Conflicts       Conflicts          `json:"conflicts"`
	Level           ConflictLevel      `json:"level"`
	Alternatives    []Alternative      `json:"alternatives"`
	Recommendation  string             `json:"recommendation"`
	Err             error              `json:"-"`
}

// TaskRepository is the task side of persistence. Returned tasks carry their
// resolved Project and Client; inactive tasks are never returned.
type TaskRepository interface {
	FindTask(ctx context.Context, id string) (model.Task, error)
	// FindBusyTasksInRange returns scheduled tasks whose interval overlaps [start, end).
	FindBusyTasksInRange(ctx context.Context, start, end time.Time) ([]model.Task, error)
	// FindOverdueTasks returns unfinished tasks due before now.
	FindOverdueTasks(ctx context.Context, now time.Time) ([]model.Task, error)
	FindTasksByIDs(ctx context.Context, ids []string) ([]model.Task, error)
	UpdateTaskSchedule(ctx context.Context, id string, start, end time.Time) (model.Task, error)
}

// EventRepository is the read-only calendar side of persistence.
type EventRepository interface {
	// FindBusyEventsInRange returns active events overlapping [start, end).
	FindBusyEventsInRange(ctx context.Context, start, end time.Time) ([]model.Event, error)
}

// ConditionalScheduler is implemented by task repositories that can check
// for overlap and write the interval atomically. A lost race is reported as
// model.ErrSlotTaken.
type ConditionalScheduler interface {
	UpdateTaskScheduleIfFree(ctx context.Context, id string, start, end time.Time) (model.Task, error)
}

// MergeEvents combines several event sources into one repository.
// Results are concatenated in source order.
func MergeEvents(sources ...EventRepository) EventRepository {
	out := make(mergedEvents, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type mergedEvents []EventRepository

func (m mergedEvents) FindBusyEventsInRange(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	var out []model.Event
	for _, src := range m {
		evs, err := src.FindBusyEventsInRange(ctx, start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, evs...)
	}
	return out, nil
}
