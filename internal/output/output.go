// Package output renders engine results for the CLI, as JSON or as
// human-readable text.
package output

import (
	"errors"
	"time"

	"smartsched/internal/model"
	"smartsched/internal/scheduler"
)

// Formatter renders command results. Every method returns text ending in
// a newline.
type Formatter interface {
	FormatResult(r scheduler.Result) string
	FormatBatch(r scheduler.BatchResult) string
	FormatSuggestion(s scheduler.Suggestion) string
	FormatConflicts(level scheduler.ConflictLevel, c scheduler.Conflicts) string
	FormatTasks(tasks []model.Task) string
	FormatImport(s ImportSummary) string
	FormatMessage(msg string) string
	FormatError(err error) string
}

// ImportSummary counts records loaded by the import command.
type ImportSummary struct {
	Clients  int `json:"clients"`
	Projects int `json:"projects"`
	Tasks    int `json:"tasks"`
	Events   int `json:"events"`
}

const timeLayout = "2006-01-02 15:04"

func New(jsonOutput bool) Formatter {
	if jsonOutput {
		return NewJSONFormatter()
	}
	return NewHumanFormatter()
}

// ErrorKind classifies err into a stable machine-readable code.
func ErrorKind(err error) string {
	var ve model.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, scheduler.ErrNoSlotAvailable):
		return "no_slot_available"
	case errors.Is(err, scheduler.ErrNotSchedulable):
		return "not_schedulable"
	case errors.Is(err, scheduler.ErrInvalidRange):
		return "invalid_range"
	case errors.As(err, &ve):
		return "validation"
	default:
		return "internal"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}
