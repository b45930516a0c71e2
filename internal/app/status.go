package app

import (
	"context"
	"time"

	"smartsched/internal/runtime/supervisor"
	"smartsched/internal/sweep"
)

// Status is the document served at /status by the diagnostics server.
type Status struct {
	Config     string             `json:"config"`
	Started    time.Time          `json:"started"`
	Uptime     string             `json:"uptime"`
	Scheduler  SchedulerStatus    `json:"scheduler"`
	Sweep      sweep.Snapshot     `json:"sweep"`
	Goroutines []supervisor.Stats `json:"goroutines"`
	Overdue    int                `json:"overdue"`
	Errors     map[string]string  `json:"errors,omitempty"`
}

type SchedulerStatus struct {
	WorkdayStart    string   `json:"workday_start"`
	WorkdayEnd      string   `json:"workday_end"`
	WorkingDays     []string `json:"working_days"`
	Buffer          string   `json:"buffer"`
	MaxSearchDays   int      `json:"max_search_days"`
	DefaultTimeZone string   `json:"default_timezone"`
}

func (a *App) status(ctx context.Context) any {
	cfg := a.engine.Config()
	days := make([]string, 0, len(cfg.WorkingDays))
	for _, d := range cfg.WorkingDays {
		days = append(days, d.String())
	}
	st := Status{
		Config:  a.cfgm.Path(),
		Started: a.started,
		Scheduler: SchedulerStatus{
			WorkdayStart:    cfg.WorkdayStart.String(),
			WorkdayEnd:      cfg.WorkdayEnd.String(),
			WorkingDays:     days,
			Buffer:          cfg.Buffer.String(),
			MaxSearchDays:   cfg.MaxSearchDays,
			DefaultTimeZone: cfg.DefaultTimeZone,
		},
		Sweep: a.sweep.Snapshot(),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Snapshot()
	}
	overdue, err := a.store.FindOverdueTasks(ctx, time.Now())
	if err != nil {
		st.Errors = map[string]string{"overdue": err.Error()}
	}
	st.Overdue = len(overdue)
	return st
}
