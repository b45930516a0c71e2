package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"smartsched/internal/eventbus"
	"smartsched/internal/scheduler"
	logx "smartsched/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		kind   SpecKind
		source string
		spec   string
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron", spec: "*/5 * * * *"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron", spec: "0 0 * * *"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron", spec: "@hourly"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", spec: "@every 10m0s"},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", spec: "@every 45s"},
		{name: "every prefix", raw: "every:2h", kind: SpecInterval, source: "duration", spec: "@every 2h0m0s"},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", spec: "@every 1h30m0s"},
		{name: "daily", raw: "daily:08:05", kind: SpecCron, source: "daily", spec: "5 8 * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if got.Spec() != tt.spec {
				t.Fatalf("Spec() = %q, want %q", got.Spec(), tt.spec)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "every:-5m", "daily:24:00", "00:00"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if err := (Config{Schedule: "61 * * * *"}).Validate(); err == nil {
		t.Fatal("expected error for out-of-range cron minute")
	}
	if err := (Config{Timezone: "Mars/Olympus"}).Validate(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

type fakeRunner struct {
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	sawDL   atomic.Bool
}

func (f *fakeRunner) RescheduleOverdueTasks(ctx context.Context) scheduler.BatchResult {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.sawDL.Store(true)
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return scheduler.BatchResult{Total: 2, Scheduled: 1, Failed: 1}
}

func TestRunNowPublishesReport(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, eventbus.SweepCompleted)
	defer unsub()

	r := &fakeRunner{}
	s := New(Config{Timeout: time.Second}, r, logx.Nop(), bus)
	rep := s.RunNow(context.Background())

	if rep.Skipped || rep.Result.Scheduled != 1 || rep.Result.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !r.sawDL.Load() {
		t.Fatal("runner context has no deadline")
	}
	select {
	case ev := <-ch:
		got, ok := ev.Data.(Report)
		if !ok || got.Result.Total != 2 {
			t.Fatalf("event data = %#v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("no sweep.completed event")
	}
	snap := s.Snapshot()
	if snap.Runs != 1 || snap.Last == nil {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestRunNowSkipsWhileRunning(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(Config{}, r, logx.Nop(), nil)

	done := make(chan Report, 1)
	go func() { done <- s.RunNow(context.Background()) }()
	<-r.started

	if rep := s.RunNow(context.Background()); !rep.Skipped {
		t.Fatalf("overlapping run not skipped: %+v", rep)
	}
	close(r.block)
	if rep := <-done; rep.Skipped {
		t.Fatal("first run reported skipped")
	}
	if got := r.calls.Load(); got != 1 {
		t.Fatalf("runner calls = %d, want 1", got)
	}
	if got := s.Snapshot().Skipped; got != 1 {
		t.Fatalf("skipped = %d, want 1", got)
	}
}

func TestStartApplyStop(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Config{Enabled: false}, &fakeRunner{}, logx.Nop(), nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Snapshot().Next.IsZero() {
		t.Fatal("disabled sweep has a next run")
	}

	if err := s.Apply(Config{Enabled: true, Schedule: "daily:08:00", Timezone: "America/New_York"}); err != nil {
		t.Fatalf("Apply enable: %v", err)
	}
	next := s.Snapshot().Next
	if next.IsZero() {
		t.Fatal("enabled sweep has no next run")
	}
	if got := next.In(mustLoad(t, "America/New_York")); got.Hour() != 8 || got.Minute() != 0 {
		t.Fatalf("next run = %v, want 08:00 New York", got)
	}

	if err := s.Apply(Config{Enabled: true, Schedule: "bogus"}); err == nil {
		t.Fatal("Apply with bad schedule should fail")
	}
	s.Stop(context.Background())
	if !s.Snapshot().Next.IsZero() {
		t.Fatal("stopped sweep still has a next run")
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestApplyDoesNotWaitForRunningSweep(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	s := New(Config{Enabled: true, Schedule: "@every 1s", Timeout: time.Minute}, r, logx.Nop(), nil)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("cron never ran the sweep")
	}

	applied := make(chan error, 1)
	go func() { applied <- s.Apply(Config{Enabled: true, Schedule: "@every 1h", Timeout: 2 * time.Minute}) }()
	select {
	case err := <-applied:
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Apply blocked behind the running sweep")
	}
	if snap := s.Snapshot(); snap.Schedule != "@every 1h" {
		t.Fatalf("schedule = %q, want @every 1h", snap.Schedule)
	}
	if rep := s.RunNow(ctx); !rep.Skipped {
		t.Fatalf("RunNow during a running sweep = %+v, want skipped", rep)
	}

	close(r.block)
	s.Stop(context.Background())
	if got := r.calls.Load(); got != 1 {
		t.Fatalf("runner calls = %d, want 1", got)
	}
}
