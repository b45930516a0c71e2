package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"smartsched/internal/calendar"
	"smartsched/internal/gcal"
	"smartsched/internal/observability/diag"
	"smartsched/internal/scheduler"
	"smartsched/internal/storage"
	"smartsched/internal/sweep"
	logx "smartsched/pkg/logx"
)

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if sc, err := cfg.SchedulerConfig(); err != nil {
		errs = append(errs, err)
	} else if err := sc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if _, err := cfg.StorageConfig(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		errs = append(errs, errors.New("logging.file.path: required when file logging is enabled"))
	}
	if sw, err := cfg.SweepConfig(); err != nil {
		errs = append(errs, err)
	} else if err := sw.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sweep: %w", err))
	}
	if g := cfg.GoogleCalendar; g != nil && g.Enabled {
		if strings.TrimSpace(g.CredentialsFile) == "" || strings.TrimSpace(g.TokenFile) == "" {
			errs = append(errs, errors.New("google_calendar: credentials_file and token_file are required"))
		}
		if _, err := ParseDurationField("google_calendar.timeout", g.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := cfg.DiagConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("diagnostics: %w", err))
	}
	return errors.Join(errs...)
}

// SchedulerConfig converts the scheduler section. Omitted fields stay zero
// and are filled by the engine's defaults.
func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	s := c.Scheduler
	out := scheduler.Config{
		MaxSearchDays:        s.MaxSearchDays,
		OverdueSearchDays:    s.OverdueSearchDays,
		SuggestionSearchDays: s.SuggestionSearchDays,
		DefaultTimeZone:      strings.TrimSpace(s.DefaultTimezone),
	}
	if s.MaxSearchDays < 0 || s.OverdueSearchDays < 0 || s.SuggestionSearchDays < 0 {
		return out, errors.New("scheduler: search day limits must be >= 0")
	}

	if s.WorkdayStart != "" || s.WorkdayEnd != "" {
		def := calendar.DefaultWorkWeek()
		out.WorkdayStart, out.WorkdayEnd = def.Start, def.End
		if s.WorkdayStart != "" {
			v, err := calendar.ParseClock(s.WorkdayStart)
			if err != nil {
				return out, fmt.Errorf("scheduler.workday_start: %w", err)
			}
			out.WorkdayStart = v
		}
		if s.WorkdayEnd != "" {
			v, err := calendar.ParseClock(s.WorkdayEnd)
			if err != nil {
				return out, fmt.Errorf("scheduler.workday_end: %w", err)
			}
			out.WorkdayEnd = v
		}
	}

	days, err := ParseWeekdays(s.WorkingDays)
	if err != nil {
		return out, fmt.Errorf("scheduler.working_days: %w", err)
	}
	out.WorkingDays = days

	if out.Buffer, err = ParseDurationField("scheduler.buffer", s.Buffer); err != nil {
		return out, err
	}
	return out, nil
}

// ParseWeekdays parses day names, dropping duplicates and keeping order.
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]time.Weekday, 0, len(names))
	seen := map[time.Weekday]bool{}
	for _, n := range names {
		d, err := calendar.ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Config) StorageConfig() (storage.Config, error) {
	bt, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	out := storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(c.Storage.Driver)),
		Path:        strings.TrimSpace(c.Storage.Path),
		BusyTimeout: bt,
	}
	switch out.Driver {
	case "", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if out.Path == "" {
			return out, fmt.Errorf("storage.path: required for driver %q", out.Driver)
		}
	default:
		return out, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	return out, nil
}

func (c *Config) LogConfig() logx.Config {
	l := c.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alerts: logx.AlertsConfig{
			Enabled:    l.Alerts.Enabled,
			Path:       l.Alerts.Path,
			MinLevel:   l.Alerts.MinLevel,
			RatePerSec: l.Alerts.RatePerSec,
		},
	}
}

func (c *Config) SweepConfig() (sweep.Config, error) {
	timeout, err := ParseDurationField("sweep.timeout", c.Sweep.Timeout)
	if err != nil {
		return sweep.Config{}, err
	}
	return sweep.Config{
		Enabled:  c.Sweep.Enabled,
		Schedule: strings.TrimSpace(c.Sweep.Schedule),
		Timezone: strings.TrimSpace(c.Sweep.Timezone),
		Timeout:  timeout,
	}, nil
}

// CalendarConfig returns the Google Calendar settings and whether the
// integration is enabled.
func (c *Config) CalendarConfig() (gcal.Config, bool) {
	g := c.GoogleCalendar
	if g == nil || !g.Enabled {
		return gcal.Config{}, false
	}
	timeout, _ := ParseDurationField("google_calendar.timeout", g.Timeout)
	return gcal.Config{
		CalendarID:      strings.TrimSpace(g.CalendarID),
		CredentialsFile: strings.TrimSpace(g.CredentialsFile),
		TokenFile:       strings.TrimSpace(g.TokenFile),
		Endpoint:        strings.TrimSpace(g.Endpoint),
		Timeout:         timeout,
	}, true
}

func (c *Config) DiagConfig() diag.Config {
	d := c.Diagnostics
	return diag.Config{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
		Pprof:         d.Pprof,
	}
}
