package sweep

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"smartsched/internal/eventbus"
	"smartsched/internal/scheduler"
	logx "smartsched/pkg/logx"
)

const (
	defaultSchedule = "0 * * * *"
	defaultTimeout  = 2 * time.Minute
	jobName         = "overdue-sweep"
)

// Config controls the periodic overdue sweep.
type Config struct {
	Enabled  bool
	Schedule string
	Timezone string // IANA zone for cron fields; empty means UTC
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = defaultSchedule
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Validate checks that the schedule parses for robfig/cron.
func (c Config) Validate() error {
	c = c.withDefaults()
	ps, err := ParseSchedule(c.Schedule)
	if err != nil {
		return err
	}
	if _, err := newParser().Parse(ps.Spec()); err != nil {
		return fmt.Errorf("schedule %q: %w", c.Schedule, err)
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	return nil
}

// Runner is the piece of the engine the sweep drives.
type Runner interface {
	RescheduleOverdueTasks(ctx context.Context) scheduler.BatchResult
}

// Report describes one sweep run.
type Report struct {
	Started time.Time             `json:"started"`
	Took    time.Duration         `json:"took"`
	Result  scheduler.BatchResult `json:"result"`
	Skipped bool                  `json:"skipped,omitempty"`
}

type Snapshot struct {
	Enabled  bool      `json:"enabled"`
	Schedule string    `json:"schedule"`
	Timezone string    `json:"timezone"`
	Next     time.Time `json:"next,omitempty"`
	Runs     uint64    `json:"runs"`
	Skipped  uint64    `json:"skipped"`
	Last     *Report   `json:"last,omitempty"`
}

// Service triggers RescheduleOverdueTasks on a cron schedule. At most one
// sweep runs at a time; a trigger that fires while one is running is skipped.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	loc    *time.Location
	c      *cron.Cron
	entry  cron.EntryID
	parent context.Context

	log    logx.Logger
	bus    eventbus.Bus
	runner Runner

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	timeout atomic.Int64

	lastMu sync.Mutex
	last   *Report
}

func New(cfg Config, runner Runner, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{cfg: cfg.withDefaults(), runner: runner, log: log.With(logx.String("comp", "sweep")), bus: bus}
	s.timeout.Store(int64(s.cfg.Timeout))
	return s
}

// newParser accepts 5-field specs with optional seconds plus descriptors.
func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Start registers the sweep job. Runs triggered by cron inherit ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.parent = ctx
	if !s.cfg.Enabled {
		s.log.Info("sweep disabled")
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	ps, err := ParseSchedule(s.cfg.Schedule)
	if err != nil {
		return err
	}
	loc := time.UTC
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return fmt.Errorf("sweep timezone %q: %w", tz, err)
		}
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(newParser()),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl)),
		cron.WithLogger(cl),
	)
	job := cron.FuncJob(func() { s.RunNow(s.parent) })

	if ps.Kind == SpecInterval {
		sched, jitter := intervalWithSpread(ps.Every, time.Now().In(loc), jobName)
		s.entry = c.Schedule(sched, job)
		s.log.Debug("sweep interval registered", logx.Duration("every", ps.Every), logx.Duration("startup_spread", jitter))
	} else if s.entry, err = c.AddJob(ps.Cron, job); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", s.cfg.Schedule, err)
	}

	s.loc = loc
	s.c = c
	c.Start()
	s.log.Info("sweep started",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("tz", loc.String()),
		logx.Time("next", c.Entry(s.entry).Next),
	)
	return nil
}

// detachLocked unhooks the running cron. The caller waits on the returned
// cron outside s.mu so a sweep in flight cannot block Snapshot or RunNow.
func (s *Service) detachLocked() *cron.Cron {
	c := s.c
	s.c = nil
	s.entry = 0
	return c
}

func wait(ctx context.Context, c *cron.Cron) {
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the configuration, restarting the cron when the trigger changed.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	s.timeout.Store(int64(cfg.Timeout))

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	if s.parent == nil || (old.Enabled == cfg.Enabled && old.Schedule == cfg.Schedule && old.Timezone == cfg.Timezone && s.c != nil) {
		s.mu.Unlock()
		return nil
	}
	prev := s.detachLocked()
	var err error
	if cfg.Enabled {
		err = s.startLocked()
	} else {
		s.log.Info("sweep disabled")
	}
	s.mu.Unlock()

	// A run of the old trigger still in flight finishes on its own; RunNow's
	// overlap guard keeps the new trigger from running beside it.
	if prev != nil {
		prev.Stop()
	}
	return err
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	prev := s.detachLocked()
	s.mu.Unlock()
	wait(ctx, prev)
	s.log.Debug("sweep stopped")
}

// RunNow performs one sweep immediately unless one is already in flight.
func (s *Service) RunNow(ctx context.Context) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.Warn("sweep skipped; previous run still in flight")
		return Report{Started: started, Skipped: true}
	}
	defer s.running.Store(false)

	rctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout.Load()))
	defer cancel()

	res := s.runner.RescheduleOverdueTasks(rctx)
	rep := Report{Started: started, Took: time.Since(started), Result: res}
	s.runs.Add(1)

	fields := []logx.Field{
		logx.Int("processed", res.Total),
		logx.Int("scheduled", res.Scheduled),
		logx.Int("failed", res.Failed),
		logx.Duration("took", rep.Took),
	}
	if res.Err != nil {
		s.log.Error("sweep failed", append(fields, logx.Err(res.Err))...)
	} else {
		s.log.Info("sweep completed", fields...)
	}

	s.lastMu.Lock()
	s.last = &rep
	s.lastMu.Unlock()
	s.bus.Publish(eventbus.Event{Type: eventbus.SweepCompleted, Time: started, Data: rep})
	return rep
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	out := Snapshot{Enabled: s.cfg.Enabled, Schedule: s.cfg.Schedule, Timezone: s.cfg.Timezone}
	if s.c != nil {
		out.Next = s.c.Entry(s.entry).Next
	}
	s.mu.Unlock()
	out.Runs = s.runs.Load()
	out.Skipped = s.skipped.Load()
	s.lastMu.Lock()
	if s.last != nil {
		last := *s.last
		out.Last = &last
	}
	s.lastMu.Unlock()
	return out
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
