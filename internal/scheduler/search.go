package scheduler

import (
	"context"
	"time"

	"smartsched/internal/calendar"
)

// search describes one day-by-day walk over working time.
type search struct {
	loc    *time.Location
	week   calendar.WorkWeek
	buffer time.Duration

	// Slots start in [from, until).
	from  time.Time
	until time.Time
	// notAfter caps slot ends; zero leaves them bounded by the working day only.
	notAfter time.Time

	exclude string
}

// walk visits free intervals in day order and, within a day, start order.
// visit returns true to stop.
func (e *Engine) walk(ctx context.Context, s search, visit func(free calendar.Interval) (bool, error)) error {
	for day := calendar.StartOfDay(s.from, s.loc); day.Before(s.until); day = calendar.NextDay(day, s.loc) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.week.IsWorkingDay(day) {
			continue
		}

		window := s.week.Window(day, s.loc)
		if window.Start.Before(s.from) {
			window.Start = s.from
		}
		if !s.notAfter.IsZero() && window.End.After(s.notAfter) {
			window.End = s.notAfter
		}
		if !window.Valid() || !window.Start.Before(s.until) {
			continue
		}

		busy, err := e.busy(ctx, window, s.exclude)
		if err != nil {
			return err
		}
		for _, free := range calendar.FreeIntervals(window, busy, s.buffer) {
			if !free.Start.Before(s.until) {
				break
			}
			stop, err := visit(free)
			if err != nil || stop {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) busy(ctx context.Context, window calendar.Interval, excludeTaskID string) ([]calendar.Interval, error) {
	c, err := e.conflicts(ctx, window, excludeTaskID)
	if err != nil {
		return nil, err
	}
	out := make([]calendar.Interval, 0, c.Count())
	for _, t := range c.Tasks {
		out = append(out, calendar.Interval{Start: t.ScheduledStart, End: t.ScheduledEnd})
	}
	for _, ev := range c.Events {
		out = append(out, calendar.Interval{Start: ev.Start, End: ev.End})
	}
	return out, nil
}
