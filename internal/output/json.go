package output

import (
	"encoding/json"

	"smartsched/internal/model"
	"smartsched/internal/scheduler"
)

// JSONFormatter renders indented JSON.
type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter { return &JSONFormatter{} }

func marshalJSON(v any) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data) + "\n"
}

type resultJSON struct {
	scheduler.Result
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (f *JSONFormatter) FormatResult(r scheduler.Result) string {
	return marshalJSON(resultJSON{Result: r, Error: errString(r.Err), ErrorKind: ErrorKind(r.Err)})
}

type batchJSON struct {
	scheduler.BatchResult
	Error string `json:"error,omitempty"`
}

func (f *JSONFormatter) FormatBatch(r scheduler.BatchResult) string {
	if r.Items == nil {
		r.Items = []scheduler.BatchItem{}
	}
	return marshalJSON(batchJSON{BatchResult: r, Error: errString(r.Err)})
}

type suggestionJSON struct {
	scheduler.Suggestion
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (f *JSONFormatter) FormatSuggestion(s scheduler.Suggestion) string {
	if s.Alternatives == nil {
		s.Alternatives = []scheduler.Alternative{}
	}
	return marshalJSON(suggestionJSON{Suggestion: s, Error: errString(s.Err), ErrorKind: ErrorKind(s.Err)})
}

func (f *JSONFormatter) FormatConflicts(level scheduler.ConflictLevel, c scheduler.Conflicts) string {
	if c.Tasks == nil {
		c.Tasks = []scheduler.TaskConflict{}
	}
	if c.Events == nil {
		c.Events = []scheduler.EventConflict{}
	}
	return marshalJSON(struct {
		Level     scheduler.ConflictLevel `json:"level"`
		Count     int                     `json:"count"`
		Conflicts scheduler.Conflicts     `json:"conflicts"`
	}{level, c.Count(), c})
}

func (f *JSONFormatter) FormatTasks(tasks []model.Task) string {
	if tasks == nil {
		tasks = []model.Task{}
	}
	return marshalJSON(tasks)
}

func (f *JSONFormatter) FormatImport(s ImportSummary) string { return marshalJSON(s) }

func (f *JSONFormatter) FormatMessage(msg string) string {
	return marshalJSON(map[string]string{"message": msg})
}

func (f *JSONFormatter) FormatError(err error) string {
	return marshalJSON(map[string]string{"error": errString(err), "kind": ErrorKind(err)})
}
