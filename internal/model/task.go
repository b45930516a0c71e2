package model

import (
	"math"
	"strings"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// IsValidStatus checks if a status string is valid.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusArchived:
		return true
	default:
		return false
	}
}

const (
	// DurationQuantum is the smallest unit a task duration may be expressed in.
	DurationQuantum = 15 * time.Minute

	MinPriority = 1
	MaxPriority = 5

	maxDurationHours = 24
)

// Task is a unit of work the scheduler places on the calendar.
//
// Duration is expressed in hours (0.25 steps). Project is resolved by the
// repository on read and carries the owning client (and its timezone).
type Task struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	ProjectID      string     `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	Duration       float64    `json:"duration" yaml:"duration"`
	DueDate        time.Time  `json:"due_date" yaml:"due_date"`
	Priority       int        `json:"priority" yaml:"priority"`
	Status         Status     `json:"status" yaml:"status"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty" yaml:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty" yaml:"scheduled_end,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Locked         bool       `json:"locked,omitempty" yaml:"locked,omitempty"`
	Active         bool       `json:"active" yaml:"active"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at,omitempty"`

	Project *Project `json:"project,omitempty" yaml:"-"`
}

// Length returns the task duration quantized to DurationQuantum.
func (t Task) Length() time.Duration {
	d := time.Duration(t.Duration * float64(time.Hour))
	return d.Round(DurationQuantum)
}

// IsScheduled reports whether both ends of the scheduled interval are set.
func (t Task) IsScheduled() bool {
	return t.ScheduledStart != nil && t.ScheduledEnd != nil &&
		!t.ScheduledStart.IsZero() && !t.ScheduledEnd.IsZero()
}

// IsOverdue reports whether the task is unfinished and past its due date.
func (t Task) IsOverdue(now time.Time) bool {
	return t.Status != StatusCompleted && now.After(t.DueDate)
}

// IsLocked reports whether the scheduler must leave the task alone.
// A task locks itself once it is completed and past its due date.
func (t Task) IsLocked(now time.Time) bool {
	if t.Locked {
		return true
	}
	return t.Status == StatusCompleted && t.DueDate.Before(now)
}

// DaysUntilDue returns the number of started days left until the due date.
// Negative values mean the task is overdue.
func (t Task) DaysUntilDue(now time.Time) int {
	days := t.DueDate.Sub(now).Hours() / 24
	return int(math.Ceil(days))
}

// TimeZone returns the IANA zone of the owning client, or "" when unknown.
func (t Task) TimeZone() string {
	if t.Project == nil || t.Project.Client == nil {
		return ""
	}
	return strings.TrimSpace(t.Project.Client.TimeZone)
}

// ClientName returns the owning client's company name, or "".
func (t Task) ClientName() string {
	if t.Project == nil || t.Project.Client == nil {
		return ""
	}
	return t.Project.Client.CompanyName
}

// Validate checks the field constraints enforced for stored tasks.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ValidationError{Field: "id", Reason: "is required"}
	}
	if strings.TrimSpace(t.Name) == "" {
		return ValidationError{Field: "name", Reason: "is required"}
	}
	if len(t.Name) > 100 {
		return ValidationError{Field: "name", Reason: "cannot exceed 100 characters"}
	}
	if t.Duration < 0.25 || t.Duration > maxDurationHours {
		return ValidationError{Field: "duration", Reason: "must be between 0.25 and 24 hours"}
	}
	if math.Mod(t.Duration, 0.25) != 0 {
		return ValidationError{Field: "duration", Reason: "must be in 15-minute increments"}
	}
	if t.Priority < MinPriority || t.Priority > MaxPriority {
		return ValidationError{Field: "priority", Reason: "must be between 1 and 5"}
	}
	if !IsValidStatus(t.Status) {
		return ValidationError{Field: "status", Reason: "must be pending, in-progress, completed, or archived"}
	}
	if t.DueDate.IsZero() {
		return ValidationError{Field: "due_date", Reason: "is required"}
	}
	if (t.ScheduledStart == nil) != (t.ScheduledEnd == nil) {
		return ValidationError{Field: "scheduled_end", Reason: "scheduled start and end must be set together"}
	}
	if t.IsScheduled() && !t.ScheduledEnd.After(*t.ScheduledStart) {
		return ValidationError{Field: "scheduled_end", Reason: "must be after scheduled start"}
	}
	if t.CompletedAt != nil && t.Status != StatusCompleted {
		return ValidationError{Field: "completed_at", Reason: "can only be set when status is completed"}
	}
	return nil
}
