package calendar

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	t.Parallel()
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock error: %v", err)
	}
	if c.Hour != 9 || c.Minute != 30 || c.String() != "09:30" {
		t.Fatalf("unexpected clock %+v", c)
	}
	for _, bad := range []string{"", "9", "25:00", "10:60", "24:30", "aa:bb"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	d, err := ParseWeekday(" Sat ")
	if err != nil || d != time.Saturday {
		t.Fatalf("ParseWeekday = %v, %v", d, err)
	}
	if _, err := ParseWeekday("funday"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWorkWeekWindowInZone(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ww := DefaultWorkWeek()

	// 2026-03-08 is the US spring-forward date (a Sunday); Monday 03-09 is EDT.
	mon := time.Date(2026, 3, 9, 3, 0, 0, 0, time.UTC) // still Sunday evening in New York
	w := ww.Window(mon, loc)
	if w.Start.Day() != 8 || w.Start.Hour() != 9 {
		t.Fatalf("window start = %v, want 2026-03-08 09:00 local", w.Start)
	}
	if ww.IsWorkingDay(mon.In(loc)) {
		t.Fatalf("Sunday in New York must not be a working day")
	}

	next := NextDay(StartOfDay(mon, loc), loc)
	if next.Day() != 9 || next.Hour() != 0 {
		t.Fatalf("NextDay = %v", next)
	}
	w2 := ww.Window(next, loc)
	if got := w2.Duration(); got != 8*time.Hour {
		t.Fatalf("window duration = %v, want 8h", got)
	}
	if !ww.Contains(Span(w2.Start, 2*time.Hour), loc) {
		t.Fatalf("expected 09:00-11:00 Monday to be inside working time")
	}
}

func TestDays(t *testing.T) {
	t.Parallel()
	from := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	days := Days(from, until, time.UTC)
	if len(days) != 3 {
		t.Fatalf("len(Days) = %d, want 3", len(days))
	}
	if !days[0].Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first day = %v", days[0])
	}
}

func TestWorkWeekValidate(t *testing.T) {
	t.Parallel()
	if err := DefaultWorkWeek().Validate(); err != nil {
		t.Fatalf("default work week invalid: %v", err)
	}
	bad := WorkWeek{Start: Clock{Hour: 17}, End: Clock{Hour: 9}, Days: []time.Weekday{time.Monday}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for inverted window")
	}
	if err := (WorkWeek{Start: Clock{Hour: 9}, End: Clock{Hour: 17}}).Validate(); err == nil {
		t.Fatal("expected error without days")
	}
	if _, err := LoadLocation("Nowhere/Nope", ""); err == nil {
		t.Fatal("expected error for unknown zone")
	}
	loc, err := LoadLocation("", "")
	if err != nil || loc != time.UTC {
		t.Fatalf("LoadLocation default = %v, %v", loc, err)
	}
}
