package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "15m", "2m", "1s").
type Config struct {
	Scheduler      SchedulerConfig       `json:"scheduler"`
	Storage        StorageConfig         `json:"storage"`
	Logging        LoggingConfig         `json:"logging"`
	Sweep          SweepConfig           `json:"sweep"`
	GoogleCalendar *GoogleCalendarConfig `json:"google_calendar,omitempty"`
	Diagnostics    DiagnosticsConfig     `json:"diagnostics"`
}

// SchedulerConfig controls slot search.
//
// Defaults (when fields are omitted/zero):
//   - workday_start: "09:00"
//   - workday_end: "17:00"
//   - working_days: ["mon", "tue", "wed", "thu", "fri"]
//   - buffer: "15m"
//   - max_search_days: 30
//   - overdue_search_days: 14
//   - suggestion_search_days: 14
//   - default_timezone: "UTC"
type SchedulerConfig struct {
	WorkdayStart         string   `json:"workday_start,omitempty"`
	WorkdayEnd           string   `json:"workday_end,omitempty"`
	WorkingDays          []string `json:"working_days,omitempty"`
	Buffer               string   `json:"buffer,omitempty"`
	MaxSearchDays        int      `json:"max_search_days,omitempty"`
	OverdueSearchDays    int      `json:"overdue_search_days,omitempty"`
	SuggestionSearchDays int      `json:"suggestion_search_days,omitempty"`
	DefaultTimezone      string   `json:"default_timezone,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/smartsched.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Alerts  LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlerts copies warn+ lines to a separate JSON-lines file.
type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SweepConfig controls the periodic overdue reschedule.
//
// Schedule accepts a 5-field cron expression or one of the shorthands
// understood by sweep.ParseSchedule ("@every 30m", "every:30m", "daily:08:00").
type SweepConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// GoogleCalendarConfig adds a Google Calendar as a read-only busy-time source.
type GoogleCalendarConfig struct {
	Enabled         bool   `json:"enabled"`
	CalendarID      string `json:"calendar_id,omitempty"` // default: "primary"
	CredentialsFile string `json:"credentials_file,omitempty"`
	TokenFile       string `json:"token_file,omitempty"`
	// Endpoint overrides the API base URL (tests, proxies).
	Endpoint string `json:"endpoint,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// DiagnosticsConfig controls the local HTTP status server used by serve.
//
// Example:
//
//	"diagnostics": { "enabled": true, "addr": "127.0.0.1:6060", "pprof": true }
type DiagnosticsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"` // default: 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
