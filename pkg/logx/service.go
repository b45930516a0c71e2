package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const alertQueueSize = 256

// Service owns the root logger and swaps its writers on Apply.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // stores zerolog.Logger

	file *os.File

	alertFile   *os.File
	alertQueue  chan []byte
	alertCancel context.CancelFunc
	alertWG     sync.WaitGroup

	// guarded by mu
	limiter  *rate.Limiter
	minLevel zerolog.Level
	dropped  uint64
}

// New creates the logging service, applies the initial config immediately,
// and returns both the Service and a root Logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{cfg: cfg}
	s.root.Store(newConsoleRoot(parseLevel(cfg.Level, zerolog.InfoLevel)))
	s.Apply(cfg)
	return s, Logger{svc: s}
}

// NewWriter returns a standalone JSON logger writing to w.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func (s *Service) current() zerolog.Logger {
	v := s.root.Load()
	if v == nil {
		return zerolog.Nop()
	}
	zl, ok := v.(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Dropped returns how many alert lines were discarded by the rate limiter
// or a full queue.
func (s *Service) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.alertCancel
	s.alertCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.alertWG.Wait()
	}
	s.mu.Lock()
	af := s.alertFile
	s.alertFile = nil
	s.mu.Unlock()
	if af != nil {
		_ = af.Close()
	}
	if f != nil {
		_ = f.Close()
	}
	return nil
}

// Apply swaps logger outputs/levels at runtime.
// It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Alerts.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Alerts.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	lvl := parseLevel(cfg.Level, zerolog.InfoLevel)

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stderr()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./smartsched.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}

	if cfg.Alerts.Enabled {
		if err := s.ensureAlertSinkLocked(cfg.Alerts.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: alerts sink disabled: %v\n", err)
		} else {
			writers = append(writers, &alertWriter{svc: s})
		}
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stderr()))
	}

	mw := zerolog.MultiLevelWriter(writers...)
	zl := zerolog.New(mw).Level(lvl).With().Timestamp().Logger()
	s.root.Store(zl)
}

// ensureAlertSinkLocked opens the alerts file and starts the single writer
// goroutine. Call with s.mu held.
func (s *Service) ensureAlertSinkLocked(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "./smartsched.alerts.jsonl"
	}
	if s.alertFile != nil && s.alertFile.Name() == path {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if s.alertFile != nil {
		_ = s.alertFile.Close()
	}
	s.alertFile = f

	if s.alertQueue == nil {
		s.alertQueue = make(chan []byte, alertQueueSize)
	}
	if s.alertCancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.alertCancel = cancel
		s.alertWG.Add(1)
		go func() {
			defer s.alertWG.Done()
			s.alertWorker(ctx)
		}()
	}
	return nil
}

func (s *Service) alertWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drainAlerts()
			return
		case line := <-s.alertQueue:
			s.writeAlert(line)
		}
	}
}

func (s *Service) drainAlerts() {
	for {
		select {
		case line := <-s.alertQueue:
			s.writeAlert(line)
		default:
			return
		}
	}
}

func (s *Service) writeAlert(line []byte) {
	s.mu.Lock()
	f := s.alertFile
	s.mu.Unlock()
	if f == nil {
		return
	}
	_, _ = f.Write(line)
}

// ---- Alerts writer (zerolog sink) ----

type alertWriter struct{ svc *Service }

func (w *alertWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *alertWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}

	s.mu.Lock()
	lim := s.limiter
	minLevel := s.minLevel
	q := s.alertQueue
	s.mu.Unlock()

	if q == nil || lim == nil || level < minLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		s.noteDropped()
		return len(p), nil
	}

	// zerolog reuses p after Write returns.
	line := append([]byte(nil), p...)
	select {
	case q <- line:
	default:
		s.noteDropped()
	}
	return len(p), nil
}

func (s *Service) noteDropped() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func newConsoleRoot(lvl zerolog.Level) zerolog.Logger {
	cw := newConsoleWriter(Stderr())
	return zerolog.New(cw).Level(lvl).With().Timestamp().Logger()
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		return s
	}
	return cw
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// Stdout returns the configured stdout sink.
func Stdout() io.Writer { return os.Stdout }

// Stderr returns the configured stderr sink. Logs go here so command output
// on stdout stays machine-readable.
func Stderr() io.Writer { return os.Stderr }
