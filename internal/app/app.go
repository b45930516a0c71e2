package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/eventbus"
	"smartsched/internal/gcal"
	"smartsched/internal/observability/diag"
	"smartsched/internal/runtime/sdnotify"
	"smartsched/internal/runtime/supervisor"
	"smartsched/internal/scheduler"
	"smartsched/internal/storage"
	"smartsched/internal/sweep"
	logx "smartsched/pkg/logx"
)

// App wires configuration, logging, storage, the scheduling engine and
// the overdue sweep. One-shot CLI commands use Open/Close; the long-running
// server additionally calls Start/Stop.
type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	engine *scheduler.Engine
	sweep  *sweep.Service
	diag   *diag.Service
	sd     *sdnotify.Notifier

	started time.Time
}

// Open loads cfgPath (falling back to config.Default when the file does
// not exist) and builds every component.
func Open(ctx context.Context, cfgPath string, opts ...scheduler.Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		cfgm.Commit(cfg)
	} else if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return build(ctx, cfgm, cfg, opts...)
}

func build(ctx context.Context, cfgm *config.Manager, cfg *config.Config, opts ...scheduler.Option) (*App, error) {
	logSvc, log := logx.New(cfg.LogConfig())
	bus := eventbus.New()

	sc, err := cfg.StorageConfig()
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	var events scheduler.EventRepository = store
	if gc, ok := cfg.CalendarConfig(); ok {
		src, err := gcal.New(ctx, gc, log)
		if err != nil {
			_ = store.Close()
			_ = logSvc.Close()
			return nil, err
		}
		events = scheduler.MergeEvents(store, src)
		log.Info("google calendar enabled", logx.String("calendar", gc.CalendarID))
	}

	schedCfg, err := cfg.SchedulerConfig()
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	opts = append([]scheduler.Option{scheduler.WithBus(bus)}, opts...)
	eng := scheduler.New(schedCfg, store, events, log, opts...)

	swCfg, err := cfg.SweepConfig()
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgm:   cfgm,
		log:    log.With(logx.String("comp", "app")),
		logs:   logSvc,
		bus:    bus,
		store:  store,
		engine: eng,
		sweep:  sweep.New(swCfg, eng, log, bus),
	}
	a.diag = diag.New(cfg.DiagConfig(), a.status, log)
	a.sd = sdnotify.New(log)
	return a, nil
}

func (a *App) Engine() *scheduler.Engine { return a.engine }
func (a *App) Store() storage.Store      { return a.store }
func (a *App) Sweep() *sweep.Service     { return a.sweep }
func (a *App) Bus() eventbus.Bus         { return a.bus }
func (a *App) Log() logx.Logger          { return a.log }
func (a *App) Config() *config.Config    { return a.cfgm.Get() }
func (a *App) Diag() *diag.Service       { return a.diag }

// Done is closed once the server context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the sweep, the config watcher and its reload fan-out, and an
// event logger until ctx is canceled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.started = time.Now()
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.sweep.Start(a.sup.Context()); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				if rep, ok := e.Data.(sweep.Report); ok && e.Type == eventbus.SweepCompleted {
					a.sd.Status(fmt.Sprintf("last sweep %s: %d rescheduled, %d failed",
						rep.Started.Format(time.RFC3339), rep.Result.Scheduled, rep.Result.Failed))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.diag.Start(a.sup.Context())
	a.sup.Go("systemd.watchdog", a.sd.Watchdog)

	a.sd.Ready()
	a.log.Info("app started", logx.String("config", a.cfgm.Path()))
	return nil
}

// applyConfig pushes a validated config into the live components. Storage
// and calendar changes only take effect after a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	if slices.Contains(sections, "logging") {
		a.logs.Apply(next.LogConfig())
	}
	if slices.Contains(sections, "scheduler") {
		if sc, err := next.SchedulerConfig(); err != nil {
			a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
		} else {
			a.engine.Apply(sc)
		}
	}
	if slices.Contains(sections, "sweep") {
		if sw, err := next.SweepConfig(); err != nil {
			a.log.Warn("invalid sweep config; keeping previous", logx.Err(err))
		} else if err := a.sweep.Apply(sw); err != nil {
			a.log.Warn("sweep reconfigure failed", logx.Err(err))
		}
	}
	if slices.Contains(sections, "diagnostics") {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.diag.Apply(ctx, next.DiagConfig())
		cancel()
	}
	for _, s := range []string{"storage", "google_calendar"} {
		if slices.Contains(sections, s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.sd.Status("config reloaded: " + strings.Join(sections, ","))
}

// Stop shuts the server down, bounded by ctx, then releases resources.
func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		a.log.Info("stopping")
		a.sd.Stopping()
		a.sup.Cancel()
		a.step(ctx, "sweep", 2*time.Second, func(c context.Context) error { a.sweep.Stop(c); return nil })
		a.step(ctx, "diag", 2*time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
		a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	}
	return a.Close()
}

// Close releases storage and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// step runs one shutdown step with an upper bound that never extends the
// caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	c, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	if err := fn(c); err != nil {
		a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
	}
	a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
}
