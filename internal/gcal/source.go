// Package gcal exposes a Google Calendar as a read-only source of busy time.
package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"smartsched/internal/model"
	logx "smartsched/pkg/logx"
)

const (
	defaultCalendarID = "primary"
	defaultTimeout    = 15 * time.Second
	idPrefix          = "gcal:"
	pageSize          = 250
)

var ErrNoToken = errors.New("gcal: no oauth token; authorize once and save the token file")

type Config struct {
	CalendarID      string
	CredentialsFile string
	TokenFile       string
	Endpoint        string
	Timeout         time.Duration
	// RatePerSec bounds API calls; 0 means 5/s.
	RatePerSec float64
}

// Source implements the scheduler's event repository on top of the
// Calendar v3 Events.List API. Cancelled and free ("transparent") entries
// are not busy time and are skipped.
type Source struct {
	srv        *calendar.Service
	calendarID string
	timeout    time.Duration
	limiter    *rate.Limiter
	log        logx.Logger
}

// New builds an authenticated Source from an OAuth client secrets file and
// a previously saved token. Refreshed tokens are written back to TokenFile.
func New(ctx context.Context, cfg Config, log logx.Logger) (*Source, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gcal: read credentials %s: %w", cfg.CredentialsFile, err)
	}
	oc, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("gcal: parse credentials: %w", err)
	}
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	ts := &savingTokenSource{
		base: oc.TokenSource(ctx, tok),
		path: cfg.TokenFile,
		last: tok.AccessToken,
		log:  log,
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.ReuseTokenSource(tok, ts))}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: calendar service: %w", err)
	}
	return NewWithService(srv, cfg, log), nil
}

// NewWithService wraps an existing calendar.Service.
func NewWithService(srv *calendar.Service, cfg Config, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	id := strings.TrimSpace(cfg.CalendarID)
	if id == "" {
		id = defaultCalendarID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	return &Source{
		srv:        srv,
		calendarID: id,
		timeout:    timeout,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		log:        log.With(logx.String("comp", "gcal"), logx.String("calendar", id)),
	}
}

func (s *Source) FindBusyEventsInRange(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	call := s.srv.Events.List(s.calendarID).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		MaxResults(pageSize)

	var out []model.Event
	err := call.Pages(ctx, func(page *calendar.Events) error {
		loc := time.UTC
		if page.TimeZone != "" {
			if l, err := time.LoadLocation(page.TimeZone); err == nil {
				loc = l
			}
		}
		for _, item := range page.Items {
			ev, ok, err := toEvent(item, loc)
			if err != nil {
				s.log.Warn("gcal event skipped", logx.String("event_id", item.Id), logx.Err(err))
				continue
			}
			if ok && ev.Start.Before(end) && ev.End.After(start) {
				out = append(out, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gcal: list events: %w", err)
	}
	s.log.Debug("gcal events fetched", logx.Window("range", start, end), logx.Int("count", len(out)))
	return out, nil
}

// toEvent maps an API event. ok is false for entries that never block time.
func toEvent(item *calendar.Event, loc *time.Location) (model.Event, bool, error) {
	if item == nil || item.Status == "cancelled" || item.Transparency == "transparent" {
		return model.Event{}, false, nil
	}
	if item.Start == nil || item.End == nil {
		return model.Event{}, false, fmt.Errorf("missing start or end")
	}
	start, allDay, err := parseEventTime(item.Start, loc)
	if err != nil {
		return model.Event{}, false, fmt.Errorf("start: %w", err)
	}
	end, _, err := parseEventTime(item.End, loc)
	if err != nil {
		return model.Event{}, false, fmt.Errorf("end: %w", err)
	}
	if !end.After(start) {
		return model.Event{}, false, fmt.Errorf("end %s not after start %s", end, start)
	}
	name := strings.TrimSpace(item.Summary)
	if name == "" {
		name = "(busy)"
	}
	typ := model.EventMeeting
	if item.EventType == "outOfOffice" {
		typ = model.EventPersonal
	}
	return model.Event{
		ID:     idPrefix + item.Id,
		Name:   name,
		Type:   typ,
		Start:  start,
		End:    end,
		AllDay: allDay,
		Active: true,
		Source: model.SourceGoogle,
	}, true, nil
}

// parseEventTime reads a timed (RFC3339) or all-day (YYYY-MM-DD) boundary.
// All-day dates are midnights in the event's or calendar's zone.
func parseEventTime(t *calendar.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, false, err
	}
	if t.Date == "" {
		return time.Time{}, false, fmt.Errorf("empty date")
	}
	if t.TimeZone != "" {
		if l, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = l
		}
	}
	v, err := time.ParseInLocation("2006-01-02", t.Date, loc)
	return v, true, err
}

// ---- token persistence ----

func tokenFromFile(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("gcal: decode token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok as JSON with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// savingTokenSource persists refreshed tokens.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string
	log  logx.Logger

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := SaveToken(s.path, tok); err != nil {
			s.log.Warn("gcal token save failed", logx.String("path", s.path), logx.Err(err))
		}
	}
	return tok, nil
}
