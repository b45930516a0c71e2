package config

import (
	"reflect"
	"sort"
	"strings"

	logx "smartsched/pkg/logx"
)

// SummarizeChange returns the sorted names of changed sections plus
// structured attrs describing the new values. Credential paths are reported
// only as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		s := newCfg.Scheduler
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.workday_start", s.WorkdayStart),
			logx.String("scheduler.workday_end", s.WorkdayEnd),
			logx.Strs("scheduler.working_days", s.WorkingDays),
			logx.String("scheduler.buffer", s.Buffer),
			logx.Int("scheduler.max_search_days", s.MaxSearchDays),
			logx.String("scheduler.default_timezone", s.DefaultTimezone),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.alerts_enabled", l.Alerts.Enabled),
		)
	}

	if oldCfg.Sweep != newCfg.Sweep {
		s := newCfg.Sweep
		changed = append(changed, "sweep")
		attrs = append(attrs,
			logx.Bool("sweep.enabled", s.Enabled),
			logx.String("sweep.schedule", s.Schedule),
			logx.String("sweep.timezone", s.Timezone),
		)
	}

	og, ng := derefCalendar(oldCfg.GoogleCalendar), derefCalendar(newCfg.GoogleCalendar)
	if og != ng {
		changed = append(changed, "google_calendar")
		attrs = append(attrs,
			logx.Bool("google_calendar.enabled", ng.Enabled),
			logx.String("google_calendar.calendar_id", ng.CalendarID),
			logx.Bool("google_calendar.credentials_set", ng.CredentialsFile != ""),
		)
	}

	if oldCfg.Diagnostics != newCfg.Diagnostics {
		d := newCfg.Diagnostics
		changed = append(changed, "diagnostics")
		attrs = append(attrs,
			logx.Bool("diagnostics.enabled", d.Enabled),
			logx.String("diagnostics.addr", d.Addr),
			logx.Bool("diagnostics.pprof", d.Pprof),
			logx.Bool("diagnostics.token_set", d.Token != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefCalendar(g *GoogleCalendarConfig) GoogleCalendarConfig {
	if g == nil {
		return GoogleCalendarConfig{}
	}
	return *g
}
