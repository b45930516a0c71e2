package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/eventbus"
	"smartsched/internal/model"
	logx "smartsched/pkg/logx"
)

// Engine places tasks into free working time.
//
// Placement is best-effort race safe: a candidate is re-checked right before
// it is written, and repositories implementing ConditionalScheduler make the
// check and the write atomic. Batches run strictly one task at a time so
// every placement is visible to the next search.
type Engine struct {
	mu  sync.RWMutex
	cfg Config

	tasks  TaskRepository
	events EventRepository
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithBus publishes placement outcomes on bus.
func WithBus(bus eventbus.Bus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

func New(cfg Config, tasks TaskRepository, events EventRepository, log logx.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		tasks:  tasks,
		events: events,
		log:    log.With(logx.String("comp", "scheduler")),
		bus:    eventbus.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Apply swaps the search configuration. Operations already running keep
// the config they started with.
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// ScheduleTask finds the first free working-time slot for the task and
// writes it back. The task's status is never changed.
func (e *Engine) ScheduleTask(ctx context.Context, taskID string, c Constraints) Result {
	task, err := e.tasks.FindTask(ctx, taskID)
	if err != nil {
		return e.failed("schedule", model.Task{ID: taskID}, err)
	}
	return e.schedule(ctx, e.Config(), task, c)
}

func (e *Engine) schedule(ctx context.Context, cfg Config, task model.Task, c Constraints) Result {
	now := e.now()
	if err := schedulable(task, now); err != nil {
		return e.failed("schedule", task, err)
	}
	length := task.Length()
	loc := e.location(cfg, task)

	from := c.PreferredStart
	if from.IsZero() {
		from = now
	}
	days := c.MaxSearchDays
	if days <= 0 {
		days = cfg.MaxSearchDays
	}
	s := search{
		loc:     loc,
		week:    cfg.WorkWeek(),
		buffer:  cfg.Buffer,
		from:    from,
		until:   from.In(loc).AddDate(0, 0, days),
		exclude: task.ID,
	}
	if !c.IgnoreDueDate {
		s.notAfter = task.DueDate
		if task.DueDate.Before(s.until) {
			s.until = task.DueDate
		}
	}

	var (
		res      Result
		accepted bool
	)
	err := e.walk(ctx, s, func(free calendar.Interval) (bool, error) {
		if free.Duration() < length {
			return false, nil
		}
		cand := calendar.Span(free.Start, length)
		level, err := e.CheckConflictLevel(ctx, cand, task.ID)
		if err != nil {
			return true, err
		}
		if level != ConflictNone {
			e.log.Debug("candidate rejected", logx.String("task_id", task.ID), logx.Window("slot", cand.Start, cand.End), logx.String("level", string(level)))
			return false, nil
		}

		if task.IsScheduled() && cand.Equal(calendar.Interval{Start: *task.ScheduledStart, End: *task.ScheduledEnd}) {
			res = Result{Success: true, Task: task, Slot: slotOf(cand), Unchanged: true}
			accepted = true
			return true, nil
		}

		updated, err := e.commit(ctx, task.ID, cand)
		if errors.Is(err, model.ErrSlotTaken) {
			e.log.Debug("slot taken concurrently", logx.String("task_id", task.ID), logx.Window("slot", cand.Start, cand.End))
			return false, nil
		}
		if err != nil {
			return true, err
		}
		res = Result{Success: true, Task: updated, Slot: slotOf(cand)}
		accepted = true
		return true, nil
	})
	if err != nil {
		return e.failed("schedule", task, err)
	}
	if !accepted {
		return e.failed("schedule", task, fmt.Errorf("%w (%d days from %s)", ErrNoSlotAvailable, days, from.In(loc).Format(time.RFC3339)))
	}

	e.log.Debug("task scheduled",
		logx.String("task_id", task.ID),
		logx.Window("slot", res.Slot.Start, res.Slot.End),
		logx.Bool("unchanged", res.Unchanged),
	)
	e.bus.Publish(eventbus.Event{Type: eventbus.TaskScheduled, Data: res})
	return res
}

func schedulable(t model.Task, now time.Time) error {
	switch {
	case !t.Active:
		return fmt.Errorf("%w: task is inactive", ErrNotSchedulable)
	case t.Status == model.StatusCompleted:
		return fmt.Errorf("%w: task is completed", ErrNotSchedulable)
	case t.IsLocked(now):
		return fmt.Errorf("%w: task is locked", ErrNotSchedulable)
	case t.Length() <= 0:
		return fmt.Errorf("%w: task has no duration", ErrNotSchedulable)
	}
	return nil
}

func (e *Engine) commit(ctx context.Context, id string, iv calendar.Interval) (model.Task, error) {
	if cs, ok := e.tasks.(ConditionalScheduler); ok {
		return cs.UpdateTaskScheduleIfFree(ctx, id, iv.Start, iv.End)
	}
	return e.tasks.UpdateTaskSchedule(ctx, id, iv.Start, iv.End)
}

func (e *Engine) failed(op string, task model.Task, err error) Result {
	err = opError(op, task.ID, err)
	e.log.Warn("task not scheduled", logx.String("task_id", task.ID), logx.Err(err))
	e.bus.Publish(eventbus.Event{Type: eventbus.TaskScheduleFailed, Data: err})
	return Result{Task: task, Err: err}
}

// location resolves the client's timezone, falling back to the configured
// default and then UTC.
func (e *Engine) location(cfg Config, t model.Task) *time.Location {
	loc, err := calendar.LoadLocation(t.TimeZone(), cfg.DefaultTimeZone)
	if err == nil {
		return loc
	}
	e.log.Warn("unknown client timezone", logx.String("task_id", t.ID), logx.String("tz", t.TimeZone()), logx.Err(err))
	if loc, err = calendar.LoadLocation(cfg.DefaultTimeZone, ""); err == nil {
		return loc
	}
	return time.UTC
}

// RescheduleOverdueTasks re-places every unfinished task whose due date has
// passed, each within the overdue horizon starting now. One failure never
// stops the rest.
func (e *Engine) RescheduleOverdueTasks(ctx context.Context) BatchResult {
	cfg := e.Config()
	now := e.now()
	tasks, err := e.tasks.FindOverdueTasks(ctx, now)
	if err != nil {
		e.log.Error("overdue lookup failed", logx.Err(err))
		return BatchResult{Err: opError("reschedule overdue", "", err)}
	}

	out := BatchResult{Total: len(tasks)}
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			out.add(BatchItem{TaskID: t.ID, TaskName: t.Name, Priority: t.Priority, Err: err})
			continue
		}
		res := e.schedule(ctx, cfg, t, Constraints{
			PreferredStart: now,
			MaxSearchDays:  cfg.OverdueSearchDays,
			IgnoreDueDate:  true,
		})
		out.add(itemOf(t, 0, res))
	}

	e.log.Info("overdue tasks rescheduled",
		logx.Int("processed", out.Total),
		logx.Int("scheduled", out.Scheduled),
		logx.Int("failed", out.Failed),
	)
	e.bus.Publish(eventbus.Event{Type: eventbus.BatchCompleted, Data: out})
	return out
}

// BatchScheduleTasks schedules ids highest priority score first, so urgent
// work claims contended slots before the rest.
func (e *Engine) BatchScheduleTasks(ctx context.Context, ids []string, opts BatchOptions) BatchResult {
	cfg := e.Config()
	now := e.now()
	out := BatchResult{Total: len(ids)}

	found, err := e.tasks.FindTasksByIDs(ctx, ids)
	if err != nil {
		e.log.Error("batch lookup failed", logx.Err(err))
		out.Err = opError("batch schedule", "", err)
		return out
	}

	byID := make(map[string]model.Task, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	var (
		candidates []model.Task
		seen       = make(map[string]struct{}, len(ids))
	)
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		t, ok := byID[id]
		switch {
		case !ok:
			out.add(BatchItem{TaskID: id, Err: opError("batch schedule", id, model.NotFoundError{Kind: "task", ID: id})})
		case !t.Active || t.Status == model.StatusCompleted:
			// Finished and deleted work is not part of the batch.
			e.log.Debug("batch skips task", logx.String("task", id), logx.String("status", string(t.Status)), logx.Bool("active", t.Active))
		default:
			candidates = append(candidates, t)
		}
	}

	c := Constraints{PreferredStart: opts.StartDate, MaxSearchDays: opts.MaxSearchDays}
	for _, rt := range OrderForScheduling(candidates, now) {
		if err := ctx.Err(); err != nil {
			out.add(BatchItem{TaskID: rt.Task.ID, TaskName: rt.Task.Name, Priority: rt.Task.Priority, Score: rt.Score, Err: err})
			break
		}
		// Re-read so earlier placements in this batch are not lost on a stale copy.
		t, err := e.tasks.FindTask(ctx, rt.Task.ID)
		var res Result
		if err != nil {
			res = e.failed("batch schedule", rt.Task, err)
		} else {
			res = e.schedule(ctx, cfg, t, c)
		}
		out.add(itemOf(rt.Task, rt.Score, res))
		if !res.Success && opts.StopOnError {
			break
		}
	}

	e.finishBatch(out)
	return out
}

func (e *Engine) finishBatch(out BatchResult) {
	e.log.Info("batch scheduled",
		logx.Int("total", out.Total),
		logx.Int("scheduled", out.Scheduled),
		logx.Int("failed", out.Failed),
	)
	e.bus.Publish(eventbus.Event{Type: eventbus.BatchCompleted, Data: out})
}

func itemOf(t model.Task, score float64, res Result) BatchItem {
	it := BatchItem{
		TaskID:   t.ID,
		TaskName: t.Name,
		Priority: t.Priority,
		Score:    score,
		Success:  res.Success,
		Err:      res.Err,
	}
	if res.Success {
		slot := res.Slot
		it.Slot = &slot
	}
	return it
}

// SuggestRescheduling reports what a move to req would collide with and
// ranks alternative slots. Nothing is written.
func (e *Engine) SuggestRescheduling(ctx context.Context, taskID string, req Requirements) Suggestion {
	const op = "suggest rescheduling"
	cfg := e.Config()
	out := Suggestion{TaskID: taskID, Requested: calendar.Interval{Start: req.Start, End: req.End}}

	task, err := e.tasks.FindTask(ctx, taskID)
	if err != nil {
		out.Err = opError(op, taskID, err)
		return out
	}
	if !req.End.After(req.Start) {
		out.Err = opError(op, taskID, ErrInvalidRange)
		return out
	}
	if task.IsScheduled() {
		out.CurrentSchedule = &calendar.Interval{Start: *task.ScheduledStart, End: *task.ScheduledEnd}
	}

	conflicts, err := e.conflicts(ctx, out.Requested, task.ID)
	if err != nil {
		out.Err = opError(op, taskID, err)
		return out
	}
	alts, err := e.alternatives(ctx, cfg, task, req)
	if err != nil {
		out.Err = opError(op, taskID, err)
		return out
	}

	out.Success = true
	out.Conflicts = conflicts
	out.Level = ClassifyConflicts(conflicts.Count())
	out.Recommendation = Recommend(conflicts.Count(), alts)
	if len(alts) > cfg.AlternativesReturned {
		alts = alts[:cfg.AlternativesReturned]
	}
	out.Alternatives = alts
	return out
}

// alternatives collects every fitting free interval in day order, up to the
// cap, then sorts them by score. Ties keep the earlier slot first.
func (e *Engine) alternatives(ctx context.Context, cfg Config, task model.Task, req Requirements) ([]Alternative, error) {
	length := task.Length()
	if length <= 0 {
		return nil, nil
	}
	loc := e.location(cfg, task)
	from := req.PreferredStart
	if from.IsZero() {
		from = e.now()
	}
	days := req.MaxSearchDays
	if days <= 0 {
		days = cfg.SuggestionSearchDays
	}
	s := search{
		loc:     loc,
		week:    cfg.WorkWeek(),
		buffer:  cfg.Buffer,
		from:    from,
		until:   from.In(loc).AddDate(0, 0, days),
		exclude: task.ID,
	}

	var alts []Alternative
	err := e.walk(ctx, s, func(free calendar.Interval) (bool, error) {
		if free.Duration() < length {
			return false, nil
		}
		start := free.Start.In(loc)
		alts = append(alts, Alternative{
			Slot:      slotOf(calendar.Span(start, length)),
			Score:     SlotScore(task, free, loc),
			DayOfWeek: start.Weekday().String(),
			TimeOfDay: start.Format("15:04"),
		})
		return len(alts) >= cfg.AlternativesCap, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(alts, func(i, j int) bool { return alts[i].Score > alts[j].Score })
	return alts, nil
}

// CheckConflictLevel counts the tasks (other than excludeTaskID) and events
// strictly overlapping iv.
func (e *Engine) CheckConflictLevel(ctx context.Context, iv calendar.Interval, excludeTaskID string) (ConflictLevel, error) {
	c, err := e.conflicts(ctx, iv, excludeTaskID)
	if err != nil {
		return "", err
	}
	return ClassifyConflicts(c.Count()), nil
}

// FindConflicts lists the tasks and events behind CheckConflictLevel.
func (e *Engine) FindConflicts(ctx context.Context, iv calendar.Interval, excludeTaskID string) (Conflicts, error) {
	if !iv.End.After(iv.Start) {
		return Conflicts{}, ErrInvalidRange
	}
	return e.conflicts(ctx, iv, excludeTaskID)
}

func (e *Engine) conflicts(ctx context.Context, iv calendar.Interval, excludeTaskID string) (Conflicts, error) {
	var out Conflicts
	tasks, err := e.tasks.FindBusyTasksInRange(ctx, iv.Start, iv.End)
	if err != nil {
		return out, fmt.Errorf("find busy tasks: %w", err)
	}
	for _, t := range tasks {
		if t.ID == excludeTaskID || !t.IsScheduled() {
			continue
		}
		busy := calendar.Interval{Start: *t.ScheduledStart, End: *t.ScheduledEnd}
		if !busy.Overlaps(iv) {
			continue
		}
		out.Tasks = append(out.Tasks, TaskConflict{
			ID:             t.ID,
			Name:           t.Name,
			Priority:       t.Priority,
			Client:         t.ClientName(),
			ScheduledStart: busy.Start,
			ScheduledEnd:   busy.End,
		})
	}

	if e.events == nil {
		return out, nil
	}
	events, err := e.events.FindBusyEventsInRange(ctx, iv.Start, iv.End)
	if err != nil {
		return out, fmt.Errorf("find busy events: %w", err)
	}
	for _, ev := range events {
		if !(calendar.Interval{Start: ev.Start, End: ev.End}).Overlaps(iv) {
			continue
		}
		out.Events = append(out.Events, EventConflict{ID: ev.ID, Name: ev.Name, Type: ev.Type, Start: ev.Start, End: ev.End})
	}
	return out, nil
}
