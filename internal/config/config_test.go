package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"smartsched/internal/calendar"
)

const sampleYAML = `
scheduler:
  workday_start: "08:30"
  workday_end: "16:30"
  working_days: [mon, tue, wed, thu]
  buffer: 30m
  max_search_days: 20
  default_timezone: Europe/Berlin
storage:
  driver: sqlite
  path: ./data/smartsched.db
  busy_timeout: 3s
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
  alerts:
    enabled: true
    path: ./logs/alerts.jsonl
sweep:
  enabled: true
  schedule: "daily:07:00"
  timezone: Europe/Berlin
  timeout: 1m
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("smartsched.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sc, err := cfg.SchedulerConfig()
	if err != nil {
		t.Fatalf("SchedulerConfig: %v", err)
	}
	if sc.WorkdayStart != (calendar.Clock{Hour: 8, Minute: 30}) || sc.WorkdayEnd != (calendar.Clock{Hour: 16, Minute: 30}) {
		t.Fatalf("workday = %v-%v", sc.WorkdayStart, sc.WorkdayEnd)
	}
	wantDays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday}
	if len(sc.WorkingDays) != len(wantDays) {
		t.Fatalf("working days = %v", sc.WorkingDays)
	}
	for i, d := range wantDays {
		if sc.WorkingDays[i] != d {
			t.Fatalf("working days = %v, want %v", sc.WorkingDays, wantDays)
		}
	}
	if sc.Buffer != 30*time.Minute || sc.MaxSearchDays != 20 || sc.DefaultTimeZone != "Europe/Berlin" {
		t.Fatalf("scheduler config = %+v", sc)
	}

	st, err := cfg.StorageConfig()
	if err != nil || st.Driver != "sqlite" || st.BusyTimeout != 3*time.Second {
		t.Fatalf("storage config = %+v, %v", st, err)
	}
	sw, err := cfg.SweepConfig()
	if err != nil || !sw.Enabled || sw.Timeout != time.Minute || sw.Schedule != "daily:07:00" {
		t.Fatalf("sweep config = %+v, %v", sw, err)
	}
	if lc := cfg.LogConfig(); lc.Level != "debug" || !lc.Alerts.Enabled {
		t.Fatalf("log config = %+v", lc)
	}
	if _, ok := cfg.CalendarConfig(); ok {
		t.Fatal("google calendar should be disabled when omitted")
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown yaml field", file: "c.yaml", body: "scheduler:\n  workday_begin: \"09:00\"\n"},
		{name: "unknown json field", file: "c.json", body: `{"storage":{"driver":"memory","dsn":"x"}}`},
		{name: "trailing json", file: "c.json", body: `{} {}`},
		{name: "bad yaml", file: "c.yml", body: "scheduler: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(tt.file, []byte(tt.body)); err == nil {
				t.Fatalf("Decode(%s) succeeded, want error", tt.name)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty is valid", mutate: func(*Config) {}},
		{name: "bad clock", mutate: func(c *Config) { c.Scheduler.WorkdayStart = "9am" }, wantErr: "workday_start"},
		{name: "inverted day", mutate: func(c *Config) { c.Scheduler.WorkdayStart, c.Scheduler.WorkdayEnd = "17:00", "09:00" }, wantErr: "scheduler"},
		{name: "bad weekday", mutate: func(c *Config) { c.Scheduler.WorkingDays = []string{"funday"} }, wantErr: "working_days"},
		{name: "bad buffer", mutate: func(c *Config) { c.Scheduler.Buffer = "soon" }, wantErr: "scheduler.buffer"},
		{name: "bad zone", mutate: func(c *Config) { c.Scheduler.DefaultTimezone = "Nowhere/Special" }, wantErr: "default timezone"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "storage.driver"},
		{name: "file without path", mutate: func(c *Config) { c.Storage.Driver = "file" }, wantErr: "storage.path"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{name: "bad sweep", mutate: func(c *Config) { c.Sweep.Schedule = "whenever" }, wantErr: "sweep"},
		{name: "gcal without files", mutate: func(c *Config) { c.GoogleCalendar = &GoogleCalendarConfig{Enabled: true} }, wantErr: "google_calendar"},
		{name: "public diagnostics", mutate: func(c *Config) { c.Diagnostics = DiagnosticsConfig{Enabled: true, Addr: "0.0.0.0:6060"} }, wantErr: "diagnostics"},
		{name: "diagnostics with token", mutate: func(c *Config) {
			c.Diagnostics = DiagnosticsConfig{Enabled: true, Addr: "0.0.0.0:6060", Token: "s3cret"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	old, err := Decode("a.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	next := *old
	next.Sweep.Schedule = "@every 30m"
	next.GoogleCalendar = &GoogleCalendarConfig{Enabled: true, CredentialsFile: "c.json", TokenFile: "t.json"}

	changed, attrs := SummarizeChange(old, &next)
	if strings.Join(changed, ",") != "google_calendar,sweep" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}
	if changed, _ := SummarizeChange(old, old); len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}

func TestManagerReloadPublishes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "smartsched.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	ctx := context.Background()

	if m.reload(ctx) {
		t.Fatal("unchanged file was republished")
	}

	bad := strings.Replace(sampleYAML, "driver: sqlite", "driver: mongo", 1)
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	if m.reload(ctx) {
		t.Fatal("invalid config was published")
	}

	good := strings.Replace(sampleYAML, "max_search_days: 20", "max_search_days: 45", 1)
	if err := os.WriteFile(path, []byte(good), 0o600); err != nil {
		t.Fatal(err)
	}
	if !m.reload(ctx) {
		t.Fatal("changed config not published")
	}
	select {
	case cfg := <-ch:
		if cfg.Scheduler.MaxSearchDays != 45 {
			t.Fatalf("published max_search_days = %d", cfg.Scheduler.MaxSearchDays)
		}
	default:
		t.Fatal("subscriber received nothing")
	}
	if m.Get().Scheduler.MaxSearchDays != 45 {
		t.Fatal("Get() not updated")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	m.publish(&Config{Sweep: SweepConfig{Schedule: "first"}})
	m.publish(&Config{Sweep: SweepConfig{Schedule: "second"}})
	if got := (<-ch).Sweep.Schedule; got != "second" {
		t.Fatalf("queued config = %q, want newest", got)
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default() invalid: %v", err)
	}
	sc, err := cfg.StorageConfig()
	if err != nil {
		t.Fatalf("StorageConfig: %v", err)
	}
	if sc.Driver != "file" || sc.Path == "" {
		t.Fatalf("storage = %+v", sc)
	}
	if _, enabled := cfg.CalendarConfig(); enabled {
		t.Fatal("google calendar enabled by default")
	}
}
