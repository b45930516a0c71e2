package scheduler

import (
	"testing"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
)

func TestPriorityScore(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		priority int
		hours    float64
		due      time.Time
		want     float64
	}{
		{"due in two days", 3, 1, monday.AddDate(0, 0, 2), 30 + 30 + 2},
		{"due tomorrow, long task", 5, 12, monday.AddDate(0, 0, 1), 50 + 50 + 20},
		{"due in five days", 2, 2, monday.AddDate(0, 0, 5), 20 + 20 + 4},
		{"due in ten days", 4, 2, monday.AddDate(0, 0, 10), 40 + 10 + 4},
		{"far out, tiny task", 1, 0.25, monday.AddDate(0, 0, 20), 10 + 0.5},
		{"overdue", 2, 1, monday.AddDate(0, 0, -3), 20 + 50 + 100 + 2},
		{"just under four days", 3, 1, monday.Add(95 * time.Hour), 30 + 30 + 2},
	}
	for _, tc := range cases {
		task := newTask("t", tc.hours, tc.due, tc.priority)
		if got := PriorityScore(task, monday); got != tc.want {
			t.Fatalf("%s: PriorityScore = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestOrderForScheduling(t *testing.T) {
	t.Parallel()
	a := newTask("a", 1, monday.AddDate(0, 0, 5), 3)
	b := newTask("b", 1, monday.AddDate(0, 0, 4), 3) // same score, earlier due
	c := newTask("c", 1, monday.AddDate(0, 0, 5), 5)
	d := newTask("d", 1, monday.AddDate(0, 0, 5), 3) // identical to a

	got := OrderForScheduling([]model.Task{a, b, c, d}, monday)
	want := []string{"c", "b", "a", "d"}
	for i, id := range want {
		if got[i].Task.ID != id {
			t.Fatalf("order[%d] = %s, want %s", i, got[i].Task.ID, id)
		}
	}
	if got[0].Score != 50+20+2 {
		t.Fatalf("top score = %v", got[0].Score)
	}
}

func TestSlotScore(t *testing.T) {
	t.Parallel()
	task := newTask("t", 1, monday.AddDate(0, 0, 14), 3)
	cases := []struct {
		name string
		free calendar.Interval
		want int
	}{
		{"morning, roomy", calendar.Interval{Start: at(0, 9, 0), End: at(0, 17, 0)}, 10 + 10 + 6 + 5},
		{"hour 11 counts as morning", calendar.Interval{Start: at(0, 11, 30), End: at(0, 12, 30)}, 10 + 10 + 6},
		{"midday, exact fit", calendar.Interval{Start: at(0, 12, 0), End: at(0, 13, 0)}, 5 + 10 + 6},
		{"hour 14 counts as afternoon", calendar.Interval{Start: at(0, 14, 45), End: at(0, 15, 45)}, 8 + 10 + 6},
		{"afternoon, margin at 1.5x", calendar.Interval{Start: at(0, 14, 0), End: at(0, 15, 30)}, 8 + 10 + 6 + 5},
		{"afternoon, margin under 1.5x", calendar.Interval{Start: at(0, 14, 0), End: at(0, 15, 15)}, 8 + 10 + 6},
		{"hour 16 counts as afternoon", calendar.Interval{Start: at(0, 16, 30), End: at(0, 17, 30)}, 8 + 10 + 6},
		{"evening", calendar.Interval{Start: at(0, 17, 0), End: at(0, 18, 0)}, 10 + 6},
		{"slack counts whole days", calendar.Interval{Start: at(8, 17, 0), End: at(8, 18, 0)}, 5 + 6},
	}
	for _, tc := range cases {
		if got := SlotScore(task, tc.free, time.UTC); got != tc.want {
			t.Fatalf("%s: SlotScore = %d, want %d", tc.name, got, tc.want)
		}
	}

	// The hour bucket is read in the client's zone.
	if loc, err := time.LoadLocation("America/New_York"); err == nil {
		free := calendar.Interval{Start: at(0, 14, 0), End: at(0, 15, 0)} // 09:00 EST
		if got := SlotScore(task, free, loc); got != 10+10+6 {
			t.Fatalf("SlotScore in New York = %d, want %d", got, 10+10+6)
		}
	}
}

func TestRecommend(t *testing.T) {
	t.Parallel()
	alts := []Alternative{{Slot: slotOf(calendar.Span(at(1, 9, 0), time.Hour)), Score: 31}}
	cases := []struct {
		conflicts int
		alts      []Alternative
		want      string
	}{
		{0, alts, "No conflicts detected. Current schedule is optimal."},
		{2, nil, "No alternative slots available. Consider extending search period or adjusting task requirements."},
		{1, alts, "Minor conflict detected. Suggested alternative: 2026-03-03 09:00"},
		{3, alts, "Multiple conflicts detected. Best alternative: 2026-03-03 09:00 (Score: 31)"},
		{4, alts, "Significant scheduling conflicts. Immediate rescheduling recommended to 2026-03-03 09:00"},
	}
	for _, tc := range cases {
		if got := Recommend(tc.conflicts, tc.alts); got != tc.want {
			t.Fatalf("Recommend(%d) = %q, want %q", tc.conflicts, got, tc.want)
		}
	}
}

func TestClassifyConflicts(t *testing.T) {
	t.Parallel()
	want := map[int]ConflictLevel{0: ConflictNone, 1: ConflictLow, 2: ConflictMedium, 3: ConflictMedium, 4: ConflictHigh, 9: ConflictHigh}
	for n, lvl := range want {
		if got := ClassifyConflicts(n); got != lvl {
			t.Fatalf("ClassifyConflicts(%d) = %s, want %s", n, got, lvl)
		}
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	t.Parallel()
	cfg := Config{AlternativesCap: 3}.withDefaults()
	if cfg.Buffer != 15*time.Minute || cfg.MaxSearchDays != 30 || cfg.OverdueSearchDays != 14 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.AlternativesReturned != 3 {
		t.Fatalf("AlternativesReturned = %d, want capped to 3", cfg.AlternativesReturned)
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.WorkdayStart, bad.WorkdayEnd = calendar.Clock{Hour: 17}, calendar.Clock{Hour: 9}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for inverted working hours")
	}
	bad = DefaultConfig()
	bad.DefaultTimeZone = "Mars/Olympus"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
