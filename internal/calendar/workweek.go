package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts short or long English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid weekday %q", s)
	}
	return d, nil
}

// WorkWeek describes the daily working window and which days are worked.
type WorkWeek struct {
	Start Clock
	End   Clock
	Days  []time.Weekday
}

// DefaultWorkWeek is 09:00–17:00, Monday to Friday.
func DefaultWorkWeek() WorkWeek {
	return WorkWeek{
		Start: Clock{Hour: 9},
		End:   Clock{Hour: 17},
		Days:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

// Validate checks that the window is non-empty and at least one day is worked.
func (w WorkWeek) Validate() error {
	if w.End.Minutes() <= w.Start.Minutes() {
		return fmt.Errorf("working hours end %s must be after start %s", w.End, w.Start)
	}
	if len(w.Days) == 0 {
		return fmt.Errorf("at least one working day is required")
	}
	return nil
}

// IsWorkingDay reports whether t's weekday (in t's location) is worked.
func (w WorkWeek) IsWorkingDay(t time.Time) bool {
	wd := t.Weekday()
	for _, d := range w.Days {
		if d == wd {
			return true
		}
	}
	return false
}

// Window returns the working interval on the calendar day of day, in loc.
// Wall clock arithmetic goes through time.Date so DST shifts are honored.
func (w WorkWeek) Window(day time.Time, loc *time.Location) Interval {
	d := day.In(loc)
	y, m, dd := d.Date()
	return Interval{
		Start: time.Date(y, m, dd, w.Start.Hour, w.Start.Minute, 0, 0, loc),
		End:   time.Date(y, m, dd, w.End.Hour, w.End.Minute, 0, 0, loc),
	}
}

// Contains reports whether iv lies within the working window of its start day
// on a working day.
func (w WorkWeek) Contains(iv Interval, loc *time.Location) bool {
	start := iv.Start.In(loc)
	if !w.IsWorkingDay(start) {
		return false
	}
	return w.Window(start, loc).Contains(iv)
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	y, m, dd := d.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, loc)
}

// NextDay returns local midnight of the calendar day after day.
func NextDay(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	y, m, dd := d.Date()
	return time.Date(y, m, dd+1, 0, 0, 0, 0, loc)
}

// Days returns local midnights from the day containing from up to (but not
// including) until.
func Days(from, until time.Time, loc *time.Location) []time.Time {
	var out []time.Time
	for d := StartOfDay(from, loc); d.Before(until); d = NextDay(d, loc) {
		out = append(out, d)
	}
	return out
}

// LoadLocation resolves an IANA zone name, falling back to def and then UTC.
func LoadLocation(name, def string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(def)
	}
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
