package output

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"smartsched/internal/model"
	"smartsched/internal/scheduler"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	levelStyles = map[scheduler.ConflictLevel]lipgloss.Style{
		scheduler.ConflictNone:   okStyle,
		scheduler.ConflictLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922")),
		scheduler.ConflictMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("#DB6D28")).Bold(true),
		scheduler.ConflictHigh:   failStyle,
	}
)

// HumanFormatter renders terminal text. Styling degrades to plain text
// when stdout is not a terminal.
type HumanFormatter struct{}

func NewHumanFormatter() *HumanFormatter { return &HumanFormatter{} }

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func slotText(s scheduler.Slot) string {
	return fmt.Sprintf("%s - %s (%gh)", formatTime(s.Start), s.End.Format("15:04"), s.Duration)
}

func (f *HumanFormatter) FormatResult(r scheduler.Result) string {
	if !r.Success {
		return failStyle.Render("✗ not scheduled") + " " + errString(r.Err) + "\n"
	}
	var sb strings.Builder
	status := "scheduled"
	if r.Unchanged {
		status = "already scheduled"
	}
	sb.WriteString(okStyle.Render("✓ "+status) + fmt.Sprintf(" [%s] %s\n", r.Task.ID, r.Task.Name))
	sb.WriteString(fmt.Sprintf("  Slot:     %s\n", slotText(r.Slot)))
	sb.WriteString(fmt.Sprintf("  Due:      %s\n", formatTime(r.Task.DueDate)))
	sb.WriteString(fmt.Sprintf("  Priority: %d\n", r.Task.Priority))
	if c := r.Task.ClientName(); c != "" {
		sb.WriteString(fmt.Sprintf("  Client:   %s\n", c))
	}
	return sb.String()
}

func (f *HumanFormatter) FormatBatch(r scheduler.BatchResult) string {
	if r.Err != nil {
		return failStyle.Render("✗ batch failed") + " " + r.Err.Error() + "\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d tasks: %s, %s\n",
		r.Total,
		okStyle.Render(fmt.Sprintf("%d scheduled", r.Scheduled)),
		failStyle.Render(fmt.Sprintf("%d failed", r.Failed)),
	))
	if len(r.Items) == 0 {
		return sb.String()
	}
	t := newTable("Task", "Priority", "Score", "Result")
	for _, it := range r.Items {
		res := it.Error
		if it.Success && it.Slot != nil {
			res = slotText(*it.Slot)
		}
		name := it.TaskID
		if it.TaskName != "" {
			name = fmt.Sprintf("%s (%s)", it.TaskName, it.TaskID)
		}
		t.Row(name, strconv.Itoa(it.Priority), strconv.FormatFloat(it.Score, 'f', -1, 64), res)
	}
	sb.WriteString(t.String())
	sb.WriteString("\n")
	return sb.String()
}

func (f *HumanFormatter) FormatSuggestion(s scheduler.Suggestion) string {
	if !s.Success {
		return failStyle.Render("✗ no suggestion") + " " + errString(s.Err) + "\n"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Task %s: requested %s - %s\n", s.TaskID, formatTime(s.Requested.Start), s.Requested.End.Format("15:04")))
	if s.CurrentSchedule != nil {
		sb.WriteString(fmt.Sprintf("  Current:   %s - %s\n", formatTime(s.CurrentSchedule.Start), s.CurrentSchedule.End.Format("15:04")))
	}
	sb.WriteString(f.FormatConflicts(s.Level, s.Conflicts))
	if len(s.Alternatives) > 0 {
		t := newTable("Start", "End", "Day", "Score")
		for _, a := range s.Alternatives {
			t.Row(formatTime(a.Start), a.End.Format("15:04"), a.DayOfWeek, strconv.Itoa(a.Score))
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	sb.WriteString(lipgloss.NewStyle().Italic(true).Render(s.Recommendation))
	sb.WriteString("\n")
	return sb.String()
}

func (f *HumanFormatter) FormatConflicts(level scheduler.ConflictLevel, c scheduler.Conflicts) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  Conflicts: %d (%s)\n", c.Count(), levelStyles[level].Render(string(level))))
	for _, t := range c.Tasks {
		client := ""
		if t.Client != "" {
			client = " " + dimStyle.Render("["+t.Client+"]")
		}
		sb.WriteString(fmt.Sprintf("    task  %s - %s  %s (p%d)%s\n", formatTime(t.ScheduledStart), t.ScheduledEnd.Format("15:04"), t.Name, t.Priority, client))
	}
	for _, e := range c.Events {
		sb.WriteString(fmt.Sprintf("    event %s - %s  %s %s\n", formatTime(e.Start), e.End.Format("15:04"), e.Name, dimStyle.Render(string(e.Type))))
	}
	return sb.String()
}

func (f *HumanFormatter) FormatTasks(tasks []model.Task) string {
	if len(tasks) == 0 {
		return "No tasks found.\n"
	}
	t := newTable("ID", "Name", "Hours", "Due", "Priority", "Status", "Scheduled")
	for _, task := range tasks {
		sched := "-"
		if task.IsScheduled() {
			sched = fmt.Sprintf("%s - %s", formatTime(*task.ScheduledStart), task.ScheduledEnd.Format("15:04"))
		}
		t.Row(task.ID, task.Name, strconv.FormatFloat(task.Duration, 'f', -1, 64), formatTime(task.DueDate),
			strconv.Itoa(task.Priority), string(task.Status), sched)
	}
	return t.String() + "\n"
}

func (f *HumanFormatter) FormatImport(s ImportSummary) string {
	return fmt.Sprintf("Imported %d clients, %d projects, %d tasks, %d events.\n", s.Clients, s.Projects, s.Tasks, s.Events)
}

func (f *HumanFormatter) FormatMessage(msg string) string { return msg + "\n" }

func (f *HumanFormatter) FormatError(err error) string {
	return failStyle.Render("error:") + " " + errString(err) + "\n"
}
