package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
	logx "smartsched/pkg/logx"
)

// Monday 2026-03-02 09:00 UTC.
var monday = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, 2+day, hour, minute, 0, 0, time.UTC)
}

type memRepo struct {
	mu     sync.Mutex
	tasks  map[string]model.Task
	order  []string
	events []model.Event
	writes int
}

func newMemRepo() *memRepo {
	return &memRepo{tasks: map[string]model.Task{}}
}

func (r *memRepo) addTask(t model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; !ok {
		r.order = append(r.order, t.ID)
	}
	r.tasks[t.ID] = t
}

func (r *memRepo) addEvent(id string, start, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, model.Event{ID: id, Name: id, Type: model.EventMeeting, Start: start, End: end, Active: true})
}

func (r *memRepo) task(id string) model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[id]
}

func (r *memRepo) FindTask(_ context.Context, id string) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || !t.Active {
		return model.Task{}, model.NotFoundError{Kind: "task", ID: id}
	}
	return t, nil
}

func (r *memRepo) FindBusyTasksInRange(_ context.Context, start, end time.Time) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := calendar.Interval{Start: start, End: end}
	var out []model.Task
	for _, id := range r.order {
		t := r.tasks[id]
		if !t.Active || !t.IsScheduled() {
			continue
		}
		if (calendar.Interval{Start: *t.ScheduledStart, End: *t.ScheduledEnd}).Overlaps(want) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) FindOverdueTasks(_ context.Context, now time.Time) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, id := range r.order {
		t := r.tasks[id]
		if t.Active && t.IsOverdue(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) FindTasksByIDs(_ context.Context, ids []string) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, id := range ids {
		if t, ok := r.tasks[id]; ok && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateTaskSchedule(_ context.Context, id string, start, end time.Time) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, model.NotFoundError{Kind: "task", ID: id}
	}
	s, e := start, end
	t.ScheduledStart, t.ScheduledEnd = &s, &e
	r.tasks[id] = t
	r.writes++
	return t, nil
}

func (r *memRepo) FindBusyEventsInRange(_ context.Context, start, end time.Time) ([]model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := calendar.Interval{Start: start, End: end}
	var out []model.Event
	for _, ev := range r.events {
		if ev.Active && (calendar.Interval{Start: ev.Start, End: ev.End}).Overlaps(want) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// racingRepo loses the first n conditional writes.
type racingRepo struct {
	*memRepo
	lose int
}

func (r *racingRepo) UpdateTaskScheduleIfFree(ctx context.Context, id string, start, end time.Time) (model.Task, error) {
	r.mu.Lock()
	if r.lose > 0 {
		r.lose--
		r.mu.Unlock()
		return model.Task{}, model.ErrSlotTaken
	}
	r.mu.Unlock()
	return r.UpdateTaskSchedule(ctx, id, start, end)
}

func newTask(id string, hours float64, due time.Time, priority int) model.Task {
	return model.Task{
		ID:       id,
		Name:     "task " + id,
		Duration: hours,
		DueDate:  due,
		Priority: priority,
		Status:   model.StatusPending,
		Active:   true,
	}
}

func newEngine(repo *memRepo, now time.Time) *Engine {
	return New(DefaultConfig(), repo, repo, logx.Nop(), WithClock(func() time.Time { return now }))
}
