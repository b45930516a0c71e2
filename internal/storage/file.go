package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/model"
	logx "smartsched/pkg/logx"
)

const compactEvery = 1000

// fileStore keeps the memory index and persists every mutation.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex
	st *state

	snapshotPath string
	journal      *os.File
	writes       int
}

type journalOp string

const (
	opClient   journalOp = "client"
	opProject  journalOp = "project"
	opTask     journalOp = "task"
	opEvent    journalOp = "event"
	opSchedule journalOp = "schedule"
)

type journalRecord struct {
	Op       journalOp      `json:"op"`
	Client   *model.Client  `json:"client,omitempty"`
	Project  *model.Project `json:"project,omitempty"`
	Task     *model.Task    `json:"task,omitempty"`
	Event    *model.Event   `json:"event,omitempty"`
	Schedule *scheduleEntry `json:"schedule,omitempty"`
}

type scheduleEntry struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	At    time.Time `json:"at"`
}

type snapshot struct {
	Clients  []model.Client  `json:"clients"`
	Projects []model.Project `json:"projects"`
	Tasks    []model.Task    `json:"tasks"`
	Events   []model.Event   `json:"events"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	st := newState()
	if err := loadSnapshot(snapPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	replayed, err := replayJournal(journalPath, st)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened",
		logx.String("path", prefix),
		logx.Int("tasks", len(st.tasks)),
		logx.Int("journal_records", replayed),
	)

	return &fileStore{
		log:          log,
		st:           st,
		snapshotPath: snapPath,
		journal:      jf,
		writes:       replayed,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("compact on close failed", logx.Err(err))
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) read(fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return fn(s.st)
}

// mutate applies fn to the record named by op and id and journals the
// result. A failed journal write rolls the record back, so the index never
// serves a change that is not on disk.
func (s *fileStore) mutate(op journalOp, id string, fn func(*state) (journalRecord, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	restore := s.st.checkpoint(op, id)
	rec, err := fn(s.st)
	if err != nil {
		restore()
		return err
	}
	line, err := json.Marshal(rec)
	if err == nil {
		_, err = s.journal.Write(append(line, '\n'))
	}
	if err != nil {
		restore()
		return fmt.Errorf("journal %s %s: %w", op, id, err)
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) FindTask(_ context.Context, id string) (t model.Task, err error) {
	err = s.read(func(st *state) error {
		t, err = st.findTask(id)
		return err
	})
	return t, err
}

func (s *fileStore) FindBusyTasksInRange(_ context.Context, start, end time.Time) (out []model.Task, err error) {
	err = s.read(func(st *state) error {
		out = st.busyTasks(calendar.Interval{Start: start, End: end}, "")
		return nil
	})
	return out, err
}

func (s *fileStore) FindOverdueTasks(_ context.Context, now time.Time) (out []model.Task, err error) {
	err = s.read(func(st *state) error {
		out = st.overdueTasks(now)
		return nil
	})
	return out, err
}

func (s *fileStore) FindTasksByIDs(_ context.Context, ids []string) (out []model.Task, err error) {
	err = s.read(func(st *state) error {
		out = st.tasksByIDs(ids)
		return nil
	})
	return out, err
}

func (s *fileStore) UpdateTaskSchedule(_ context.Context, id string, start, end time.Time) (model.Task, error) {
	return s.schedule(id, start, end, false)
}

func (s *fileStore) UpdateTaskScheduleIfFree(_ context.Context, id string, start, end time.Time) (model.Task, error) {
	return s.schedule(id, start, end, true)
}

func (s *fileStore) schedule(id string, start, end time.Time, ifFree bool) (t model.Task, err error) {
	err = s.mutate(opSchedule, id, func(st *state) (journalRecord, error) {
		if ifFree && st.occupied(id, calendar.Interval{Start: start, End: end}) {
			return journalRecord{}, model.ErrSlotTaken
		}
		at := time.Now()
		t, err = st.setSchedule(id, start, end, at)
		if err != nil {
			return journalRecord{}, err
		}
		return journalRecord{Op: opSchedule, Schedule: &scheduleEntry{ID: id, Start: start, End: end, At: at}}, nil
	})
	return t, err
}

func (s *fileStore) FindBusyEventsInRange(_ context.Context, start, end time.Time) (out []model.Event, err error) {
	err = s.read(func(st *state) error {
		out = st.busyEvents(calendar.Interval{Start: start, End: end})
		return nil
	})
	return out, err
}

func (s *fileStore) PutClient(_ context.Context, c model.Client) error {
	return s.mutate(opClient, c.ID, func(st *state) (journalRecord, error) {
		return journalRecord{Op: opClient, Client: &c}, st.putClient(c)
	})
}

func (s *fileStore) PutProject(_ context.Context, p model.Project) error {
	p.Client = nil
	return s.mutate(opProject, p.ID, func(st *state) (journalRecord, error) {
		return journalRecord{Op: opProject, Project: &p}, st.putProject(p)
	})
}

func (s *fileStore) PutTask(_ context.Context, t model.Task) error {
	t.Project = nil
	return s.mutate(opTask, t.ID, func(st *state) (journalRecord, error) {
		return journalRecord{Op: opTask, Task: &t}, st.putTask(t)
	})
}

func (s *fileStore) PutEvent(_ context.Context, e model.Event) error {
	return s.mutate(opEvent, e.ID, func(st *state) (journalRecord, error) {
		return journalRecord{Op: opEvent, Event: &e}, st.putEvent(e)
	})
}

func (s *fileStore) ListTasks(_ context.Context) (out []model.Task, err error) {
	err = s.read(func(st *state) error {
		out = st.selectTasks(func(model.Task) bool { return true }, byDue)
		return nil
	})
	return out, err
}

func (s *fileStore) compactLocked() error {
	snap := snapshot{}
	for _, c := range s.st.clients {
		snap.Clients = append(snap.Clients, c)
	}
	for _, p := range s.st.projects {
		snap.Projects = append(snap.Projects, p)
	}
	for _, t := range s.st.tasks {
		snap.Tasks = append(snap.Tasks, t)
	}
	for _, e := range s.st.events {
		snap.Events = append(snap.Events, e)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

// loadSnapshot restores raw records. Order matters: clients, then projects,
// then tasks, so reference checks pass.
func loadSnapshot(path string, st *state) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for _, c := range snap.Clients {
		st.clients[c.ID] = c
	}
	for _, p := range snap.Projects {
		st.projects[p.ID] = p
	}
	for _, t := range snap.Tasks {
		st.tasks[t.ID] = t
	}
	for _, e := range snap.Events {
		st.events[e.ID] = e
	}
	return nil
}

func replayJournal(path string, st *state) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch {
		case r.Op == opClient && r.Client != nil:
			st.clients[r.Client.ID] = *r.Client
		case r.Op == opProject && r.Project != nil:
			st.projects[r.Project.ID] = *r.Project
		case r.Op == opTask && r.Task != nil:
			st.tasks[r.Task.ID] = *r.Task
		case r.Op == opEvent && r.Event != nil:
			st.events[r.Event.ID] = *r.Event
		case r.Op == opSchedule && r.Schedule != nil:
			if _, err := st.setSchedule(r.Schedule.ID, r.Schedule.Start, r.Schedule.End, r.Schedule.At); err != nil {
				continue
			}
		default:
			continue
		}
		n++
	}
	return n, sc.Err()
}
