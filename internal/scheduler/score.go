package scheduler

import (
	"fmt"
	"math"
	"sort"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
)

const recommendTimeLayout = "2006-01-02 15:04"

// wholeDays counts complete 24h periods from a to b, truncated toward zero.
func wholeDays(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// PriorityScore ranks a task for batch ordering. Higher goes first.
func PriorityScore(t model.Task, now time.Time) float64 {
	score := float64(t.Priority * 10)

	switch days := wholeDays(now, t.DueDate); {
	case days <= 1:
		score += 50
	case days <= 3:
		score += 30
	case days <= 7:
		score += 20
	case days <= 14:
		score += 10
	}

	if t.IsOverdue(now) {
		score += 100
	}

	score += math.Min(t.Duration*2, 20)
	return score
}

// RankedTask pairs a task with its priority score.
type RankedTask struct {
	Task  model.Task
	Score float64
}

// OrderForScheduling sorts tasks by descending priority score, earlier due
// date first on ties. Equal keys keep their input order.
func OrderForScheduling(tasks []model.Task, now time.Time) []RankedTask {
	out := make([]RankedTask, len(tasks))
	for i, t := range tasks {
		out[i] = RankedTask{Task: t, Score: PriorityScore(t, now)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Task.DueDate.Before(out[j].Task.DueDate)
	})
	return out
}

// SlotScore rates a free interval as a home for t. The start hour is read in
// loc. Only alternatives are scored; primary placement is first fit.
func SlotScore(t model.Task, free calendar.Interval, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	score := 0

	switch h := free.Start.In(loc).Hour(); {
	case h >= 9 && h <= 11:
		score += 10
	case h >= 14 && h <= 16:
		score += 8
	case h >= 11 && h <= 14:
		score += 5
	}

	if days := wholeDays(free.Start, t.DueDate); days > 1 {
		score += min(days, 10)
	}

	score += t.Priority * 2

	if free.Duration()*2 >= t.Length()*3 {
		score += 5
	}
	return score
}

// Recommend picks the advice text for a suggestion. alternatives must be
// sorted best first.
func Recommend(conflicts int, alternatives []Alternative) string {
	if conflicts == 0 {
		return "No conflicts detected. Current schedule is optimal."
	}
	if len(alternatives) == 0 {
		return "No alternative slots available. Consider extending search period or adjusting task requirements."
	}
	best := alternatives[0]
	at := best.Start.Format(recommendTimeLayout)
	switch {
	case conflicts == 1:
		return "Minor conflict detected. Suggested alternative: " + at
	case conflicts <= 3:
		return fmt.Sprintf("Multiple conflicts detected. Best alternative: %s (Score: %d)", at, best.Score)
	default:
		return "Significant scheduling conflicts. Immediate rescheduling recommended to " + at
	}
}
