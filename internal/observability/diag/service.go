// Package diag serves an optional local HTTP endpoint for operators of the
// long-running scheduler: liveness, a JSON status document and, when
// enabled, net/http/pprof.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"smartsched/internal/runtime/supervisor"
	logx "smartsched/pkg/logx"
)

const DefaultAddr = "127.0.0.1:6060"

// Config controls the diagnostics server.
//
// Binding to a non-loopback address requires Token or AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
}

func (c Config) addr() string {
	if a := strings.TrimSpace(c.Addr); a != "" {
		return a
	}
	return DefaultAddr
}

// Validate reports an unsafe or malformed bind.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	addr := c.addr()
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return err
	}
	if c.Token == "" && !c.AllowInsecure && !isLoopbackAddr(addr) {
		return errors.New("non-loopback addr requires token or allow_insecure")
	}
	return nil
}

// StatusFunc builds the body of GET /status.
type StatusFunc func(ctx context.Context) any

type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	cfg    Config
	status StatusFunc

	parent context.Context
	sup    *supervisor.Supervisor
	bound  string
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, status: status, log: log.With(logx.String("comp", "diag"))}
}

// Start serves until ctx is canceled or Stop is called. A disabled config
// only records ctx for later Apply calls.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parent = ctx
	if s.cfg.Enabled && s.sup == nil {
		s.startLocked()
	}
}

func (s *Service) startLocked() {
	s.sup = supervisor.New(s.parent,
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(false),
	)
	cfg := s.cfg
	s.sup.GoRestart("diag.http", func(c context.Context) error { return s.serve(c, cfg) },
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Apply swaps the config, restarting the listener when the bind or the
// handler set changed.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.sup != nil
	started := s.parent != nil
	s.mu.Unlock()

	if !started {
		return
	}
	if running && (!cfg.Enabled || prev != cfg) {
		s.Stop(ctx)
	}
	s.mu.Lock()
	if cfg.Enabled && s.sup == nil {
		s.startLocked()
	}
	s.mu.Unlock()
}

// Stop closes the listener and waits for the serve loop, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("diag stop", logx.Err(err))
	}
}

// Addr is the bound listen address, empty while not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *Service) serve(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		s.log.Error("diag refused to start", logx.String("addr", cfg.addr()), logx.Err(err))
		return err
	}
	ln, err := net.Listen("tcp", cfg.addr())
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}

	srv := &http.Server{Handler: s.Handler(cfg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(c)
		cancel()
	}()

	s.mu.Lock()
	s.bound = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("diag listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cfg.Pprof), logx.Bool("token_set", cfg.Token != ""))

	err = srv.Serve(ln)

	s.mu.Lock()
	s.bound = ""
	s.mu.Unlock()
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("diag server exited unexpectedly")
	}
	return err
}

// Handler returns the routes served for cfg.
func (s *Service) Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cfg.Token, h) }

	mux.HandleFunc("/healthz", auth(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	mux.HandleFunc("/status", auth(func(w http.ResponseWriter, r *http.Request) {
		var body any = struct{}{}
		if s.status != nil {
			body = s.status(r.Context())
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(body); err != nil {
			s.log.Warn("status encode failed", logx.Err(err))
		}
	}))
	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", auth(hpprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", auth(hpprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", auth(hpprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", auth(hpprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", auth(hpprof.Trace))
	}
	return mux
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
