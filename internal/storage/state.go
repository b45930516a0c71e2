package storage

import (
	"fmt"
	"sort"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
)

// state is the in-memory index shared by the memory and file drivers.
// Callers hold the owning store's lock.
type state struct {
	clients  map[string]model.Client
	projects map[string]model.Project
	tasks    map[string]model.Task
	events   map[string]model.Event
}

func newState() *state {
	return &state{
		clients:  map[string]model.Client{},
		projects: map[string]model.Project{},
		tasks:    map[string]model.Task{},
		events:   map[string]model.Event{},
	}
}

func checkClient(c model.Client) error {
	if c.ID == "" {
		return model.ValidationError{Field: "id", Reason: "is required"}
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return model.ValidationError{Field: "time_zone", Reason: err.Error()}
		}
	}
	return nil
}

func (s *state) putClient(c model.Client) error {
	if err := checkClient(c); err != nil {
		return err
	}
	s.clients[c.ID] = c
	return nil
}

func (s *state) putProject(p model.Project) error {
	if p.ID == "" {
		return model.ValidationError{Field: "id", Reason: "is required"}
	}
	if p.ClientID != "" {
		if _, ok := s.clients[p.ClientID]; !ok {
			return model.NotFoundError{Kind: "client", ID: p.ClientID}
		}
	}
	p.Client = nil
	s.projects[p.ID] = p
	return nil
}

func (s *state) putTask(t model.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ProjectID != "" {
		if _, ok := s.projects[t.ProjectID]; !ok {
			return model.NotFoundError{Kind: "project", ID: t.ProjectID}
		}
	}
	t.Project = nil
	s.tasks[t.ID] = t
	return nil
}

func (s *state) putEvent(e model.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.events[e.ID] = e
	return nil
}

// resolve attaches the project and client to a copy of t.
func (s *state) resolve(t model.Task) model.Task {
	p, ok := s.projects[t.ProjectID]
	if !ok {
		return t
	}
	if c, ok := s.clients[p.ClientID]; ok {
		p.Client = &c
	}
	t.Project = &p
	return t
}

func (s *state) findTask(id string) (model.Task, error) {
	t, ok := s.tasks[id]
	if !ok || !t.Active {
		return model.Task{}, model.NotFoundError{Kind: "task", ID: id}
	}
	return s.resolve(t), nil
}

func (s *state) selectTasks(keep func(model.Task) bool, less func(a, b model.Task) bool) []model.Task {
	var out []model.Task
	for _, t := range s.tasks {
		if t.Active && keep(t) {
			out = append(out, s.resolve(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func byDue(a, b model.Task) bool { return a.DueDate.Before(b.DueDate) }

func byScheduledStart(a, b model.Task) bool { return a.ScheduledStart.Before(*b.ScheduledStart) }

func scheduledInterval(t model.Task) (calendar.Interval, bool) {
	if !t.IsScheduled() {
		return calendar.Interval{}, false
	}
	return calendar.Interval{Start: *t.ScheduledStart, End: *t.ScheduledEnd}, true
}

func (s *state) busyTasks(iv calendar.Interval, exclude string) []model.Task {
	return s.selectTasks(func(t model.Task) bool {
		busy, ok := scheduledInterval(t)
		return ok && t.ID != exclude && busy.Overlaps(iv)
	}, byScheduledStart)
}

func (s *state) overdueTasks(now time.Time) []model.Task {
	return s.selectTasks(func(t model.Task) bool { return t.IsOverdue(now) }, byDue)
}

func (s *state) tasksByIDs(ids []string) []model.Task {
	var out []model.Task
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if t, ok := s.tasks[id]; ok && t.Active {
			out = append(out, s.resolve(t))
		}
	}
	return out
}

func (s *state) busyEvents(iv calendar.Interval) []model.Event {
	var out []model.Event
	for _, e := range s.events {
		if e.Active && (calendar.Interval{Start: e.Start, End: e.End}).Overlaps(iv) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// occupied reports whether anything other than task id overlaps iv.
func (s *state) occupied(id string, iv calendar.Interval) bool {
	return len(s.busyTasks(iv, id)) > 0 || len(s.busyEvents(iv)) > 0
}

func (s *state) setSchedule(id string, start, end, at time.Time) (model.Task, error) {
	t, ok := s.tasks[id]
	if !ok || !t.Active {
		return model.Task{}, model.NotFoundError{Kind: "task", ID: id}
	}
	if !end.After(start) {
		return model.Task{}, fmt.Errorf("schedule for %s: end %s not after start %s", id, end, start)
	}
	t.ScheduledStart, t.ScheduledEnd = &start, &end
	t.UpdatedAt = at
	s.tasks[id] = t
	return s.resolve(t), nil
}

// checkpoint saves the record op touches and returns a func that puts it
// back, removing it when it did not exist before.
func (s *state) checkpoint(op journalOp, id string) func() {
	switch op {
	case opClient:
		return keep(s.clients, id)
	case opProject:
		return keep(s.projects, id)
	case opTask, opSchedule:
		return keep(s.tasks, id)
	case opEvent:
		return keep(s.events, id)
	}
	return func() {}
}

func keep[V any](m map[string]V, id string) func() {
	prev, had := m[id]
	return func() {
		if had {
			m[id] = prev
		} else {
			delete(m, id)
		}
	}
}
