// Package calendar holds the side-effect-free time arithmetic used by the
// scheduler: intervals, overlap and subtraction, and working-time windows
// resolved in a client's timezone.
package calendar

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Span builds an interval from a start and a length.
func Span(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

func (i Interval) Valid() bool { return i.End.After(i.Start) }

func (i Interval) Duration() time.Duration {
	if !i.Valid() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Hours returns the length in fractional hours.
func (i Interval) Hours() float64 { return i.Duration().Hours() }

// Overlaps uses strict overlap: intervals that merely touch do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return o.Start.Before(i.End) && o.End.After(i.Start)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// Clip returns the part of i that lies within bound.
func (i Interval) Clip(bound Interval) (Interval, bool) {
	out := i
	if out.Start.Before(bound.Start) {
		out.Start = bound.Start
	}
	if out.End.After(bound.End) {
		out.End = bound.End
	}
	return out, out.Valid()
}

// Equal compares both ends by instant, ignoring location.
func (i Interval) Equal(o Interval) bool {
	return i.Start.Equal(o.Start) && i.End.Equal(o.End)
}

// In converts both ends to loc.
func (i Interval) In(loc *time.Location) Interval {
	return Interval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

// SortByStart sorts in place by start, then end.
func SortByStart(ivs []Interval) {
	sort.Slice(ivs, func(a, b int) bool {
		if !ivs[a].Start.Equal(ivs[b].Start) {
			return ivs[a].Start.Before(ivs[b].Start)
		}
		return ivs[a].End.Before(ivs[b].End)
	})
}

// FreeIntervals subtracts busy from window and returns the gaps, in start
// order, that are at least minSize long. busy need not be sorted, clipped
// or disjoint.
func FreeIntervals(window Interval, busy []Interval, minSize time.Duration) []Interval {
	if !window.Valid() {
		return nil
	}
	occupied := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if c, ok := b.Clip(window); ok {
			occupied = append(occupied, c)
		}
	}
	SortByStart(occupied)

	var free []Interval
	cursor := window.Start
	for _, o := range occupied {
		if cursor.Before(o.Start) {
			gap := Interval{Start: cursor, End: o.Start}
			if gap.Duration() >= minSize {
				free = append(free, gap)
			}
		}
		if o.End.After(cursor) {
			cursor = o.End
		}
	}
	if cursor.Before(window.End) {
		gap := Interval{Start: cursor, End: window.End}
		if gap.Duration() >= minSize {
			free = append(free, gap)
		}
	}
	return free
}

// HoursToDuration converts fractional hours to a duration rounded to the minute.
func HoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour)).Round(time.Minute)
}
