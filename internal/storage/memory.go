package storage

import (
	"context"
	"sync"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
)

type memoryStore struct {
	mu     sync.RWMutex
	st     *state
	closed bool
}

// NewMemory returns an empty process-local store.
func NewMemory() Store {
	return &memoryStore{st: newState()}
}

func (m *memoryStore) read(fn func(*state) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(m.st)
}

func (m *memoryStore) write(fn func(*state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return fn(m.st)
}

func (m *memoryStore) FindTask(_ context.Context, id string) (t model.Task, err error) {
	err = m.read(func(s *state) error {
		t, err = s.findTask(id)
		return err
	})
	return t, err
}

func (m *memoryStore) FindBusyTasksInRange(_ context.Context, start, end time.Time) (out []model.Task, err error) {
	err = m.read(func(s *state) error {
		out = s.busyTasks(calendar.Interval{Start: start, End: end}, "")
		return nil
	})
	return out, err
}

func (m *memoryStore) FindOverdueTasks(_ context.Context, now time.Time) (out []model.Task, err error) {
	err = m.read(func(s *state) error {
		out = s.overdueTasks(now)
		return nil
	})
	return out, err
}

func (m *memoryStore) FindTasksByIDs(_ context.Context, ids []string) (out []model.Task, err error) {
	err = m.read(func(s *state) error {
		out = s.tasksByIDs(ids)
		return nil
	})
	return out, err
}

func (m *memoryStore) UpdateTaskSchedule(_ context.Context, id string, start, end time.Time) (t model.Task, err error) {
	err = m.write(func(s *state) error {
		t, err = s.setSchedule(id, start, end, time.Now())
		return err
	})
	return t, err
}

func (m *memoryStore) UpdateTaskScheduleIfFree(_ context.Context, id string, start, end time.Time) (t model.Task, err error) {
	err = m.write(func(s *state) error {
		if s.occupied(id, calendar.Interval{Start: start, End: end}) {
			return model.ErrSlotTaken
		}
		t, err = s.setSchedule(id, start, end, time.Now())
		return err
	})
	return t, err
}

func (m *memoryStore) FindBusyEventsInRange(_ context.Context, start, end time.Time) (out []model.Event, err error) {
	err = m.read(func(s *state) error {
		out = s.busyEvents(calendar.Interval{Start: start, End: end})
		return nil
	})
	return out, err
}

func (m *memoryStore) PutClient(_ context.Context, c model.Client) error {
	return m.write(func(s *state) error { return s.putClient(c) })
}

func (m *memoryStore) PutProject(_ context.Context, p model.Project) error {
	return m.write(func(s *state) error { return s.putProject(p) })
}

func (m *memoryStore) PutTask(_ context.Context, t model.Task) error {
	return m.write(func(s *state) error { return s.putTask(t) })
}

func (m *memoryStore) PutEvent(_ context.Context, e model.Event) error {
	return m.write(func(s *state) error { return s.putEvent(e) })
}

func (m *memoryStore) ListTasks(_ context.Context) (out []model.Task, err error) {
	err = m.read(func(s *state) error {
		out = s.selectTasks(func(model.Task) bool { return true }, byDue)
		return nil
	})
	return out, err
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
