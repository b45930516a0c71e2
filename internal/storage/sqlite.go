package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartsched/internal/model"
	logx "smartsched/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Times are stored as unix milliseconds.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: transactions below double as the write lock for
	// conditional scheduling.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskSelect = `SELECT t.id, t.name, COALESCE(t.description, ''), COALESCE(t.project_id, ''),
	t.duration, t.due_date, t.priority, t.status,
	t.scheduled_start, t.scheduled_end, t.completed_at, t.locked, t.active, t.updated_at,
	p.id, COALESCE(p.name, ''), COALESCE(p.client_id, ''),
	c.id, COALESCE(c.company_name, ''), COALESCE(c.time_zone, '')
FROM tasks t
LEFT JOIN projects p ON p.id = t.project_id
LEFT JOIN clients c ON c.id = p.client_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (model.Task, error) {
	var (
		t                         model.Task
		status                    string
		due, updated              int64
		start, end, completed     sql.NullInt64
		locked, active            int
		projectID, clientID       sql.NullString
		projectName, projectOwner string
		company, tz               string
	)
	err := r.Scan(
		&t.ID, &t.Name, &t.Description, &t.ProjectID,
		&t.Duration, &due, &t.Priority, &status,
		&start, &end, &completed, &locked, &active, &updated,
		&projectID, &projectName, &projectOwner,
		&clientID, &company, &tz,
	)
	if err != nil {
		return model.Task{}, err
	}
	t.Status = model.Status(status)
	t.DueDate = fromMillis(due)
	t.UpdatedAt = fromMillis(updated)
	t.ScheduledStart = nullTime(start)
	t.ScheduledEnd = nullTime(end)
	t.CompletedAt = nullTime(completed)
	t.Locked = locked != 0
	t.Active = active != 0
	if projectID.Valid {
		p := &model.Project{ID: projectID.String, Name: projectName, ClientID: projectOwner}
		if clientID.Valid {
			p.Client = &model.Client{ID: clientID.String, CompanyName: company, TimeZone: tz}
		}
		t.Project = p
	}
	return t, nil
}

func (s *sqliteStore) queryTasks(ctx context.Context, where string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+" WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) FindTask(ctx context.Context, id string) (model.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+" WHERE t.id = ? AND t.active = 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, model.NotFoundError{Kind: "task", ID: id}
	}
	return t, err
}

func (s *sqliteStore) FindBusyTasksInRange(ctx context.Context, start, end time.Time) ([]model.Task, error) {
	return s.queryTasks(ctx,
		`t.active = 1 AND t.scheduled_start IS NOT NULL AND t.scheduled_end IS NOT NULL
		 AND t.scheduled_start < ? AND t.scheduled_end > ?
		 ORDER BY t.scheduled_start, t.id`,
		end.UnixMilli(), start.UnixMilli(),
	)
}

func (s *sqliteStore) FindOverdueTasks(ctx context.Context, now time.Time) ([]model.Task, error) {
	return s.queryTasks(ctx,
		`t.active = 1 AND t.status != ? AND t.due_date < ? ORDER BY t.due_date, t.id`,
		string(model.StatusCompleted), now.UnixMilli(),
	)
}

func (s *sqliteStore) FindTasksByIDs(ctx context.Context, ids []string) ([]model.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	found, err := s.queryTasks(ctx, "t.active = 1 AND t.id IN ("+marks+")", args...)
	if err != nil {
		return nil, err
	}
	// Keep the caller's order.
	byID := make(map[string]model.Task, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]model.Task, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *sqliteStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	return s.queryTasks(ctx, "t.active = 1 ORDER BY t.due_date, t.id")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setSchedule(ctx context.Context, db execer, id string, start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("schedule for %s: end %s not after start %s", id, end, start)
	}
	res, err := db.ExecContext(ctx,
		`UPDATE tasks SET scheduled_start = ?, scheduled_end = ?, updated_at = ? WHERE id = ? AND active = 1`,
		start.UnixMilli(), end.UnixMilli(), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

func (s *sqliteStore) UpdateTaskSchedule(ctx context.Context, id string, start, end time.Time) (model.Task, error) {
	if err := setSchedule(ctx, s.db, id, start, end); err != nil {
		return model.Task{}, err
	}
	return s.FindTask(ctx, id)
}

func (s *sqliteStore) UpdateTaskScheduleIfFree(ctx context.Context, id string, start, end time.Time) (model.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Task{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var busy int
	err = tx.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM tasks
			  WHERE id != ? AND active = 1 AND scheduled_start IS NOT NULL AND scheduled_end IS NOT NULL
			    AND scheduled_start < ? AND scheduled_end > ?)
		  + (SELECT COUNT(*) FROM events WHERE active = 1 AND start_at < ? AND end_at > ?)`,
		id, end.UnixMilli(), start.UnixMilli(), end.UnixMilli(), start.UnixMilli(),
	).Scan(&busy)
	if err != nil {
		return model.Task{}, err
	}
	if busy > 0 {
		return model.Task{}, model.ErrSlotTaken
	}
	if err := setSchedule(ctx, tx, id, start, end); err != nil {
		return model.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Task{}, err
	}
	return s.FindTask(ctx, id)
}

func (s *sqliteStore) FindBusyEventsInRange(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, start_at, end_at, all_day, active, source FROM events
		 WHERE active = 1 AND start_at < ? AND end_at > ?
		 ORDER BY start_at, id`,
		end.UnixMilli(), start.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Event
	for rows.Next() {
		var (
			e              model.Event
			typ            string
			from, to       int64
			allDay, active int
		)
		if err := rows.Scan(&e.ID, &e.Name, &typ, &from, &to, &allDay, &active, &e.Source); err != nil {
			return nil, err
		}
		e.Type = model.EventType(typ)
		e.Start, e.End = fromMillis(from), fromMillis(to)
		e.AllDay, e.Active = allDay != 0, active != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) exists(ctx context.Context, table, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *sqliteStore) PutClient(ctx context.Context, c model.Client) error {
	if err := checkClient(c); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients(id, company_name, time_zone) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET company_name=excluded.company_name, time_zone=excluded.time_zone`,
		c.ID, c.CompanyName, c.TimeZone,
	)
	return err
}

func (s *sqliteStore) PutProject(ctx context.Context, p model.Project) error {
	if p.ID == "" {
		return model.ValidationError{Field: "id", Reason: "is required"}
	}
	if p.ClientID != "" {
		ok, err := s.exists(ctx, "clients", p.ClientID)
		if err != nil {
			return err
		}
		if !ok {
			return model.NotFoundError{Kind: "client", ID: p.ClientID}
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects(id, name, client_id) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, client_id=excluded.client_id`,
		p.ID, p.Name, nullStr(p.ClientID),
	)
	return err
}

func (s *sqliteStore) PutTask(ctx context.Context, t model.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ProjectID != "" {
		ok, err := s.exists(ctx, "projects", t.ProjectID)
		if err != nil {
			return err
		}
		if !ok {
			return model.NotFoundError{Kind: "project", ID: t.ProjectID}
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, name, description, project_id, duration, due_date, priority, status,
			scheduled_start, scheduled_end, completed_at, locked, active, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description, project_id=excluded.project_id,
			duration=excluded.duration, due_date=excluded.due_date, priority=excluded.priority,
			status=excluded.status, scheduled_start=excluded.scheduled_start,
			scheduled_end=excluded.scheduled_end, completed_at=excluded.completed_at,
			locked=excluded.locked, active=excluded.active, updated_at=excluded.updated_at`,
		t.ID, t.Name, nullStr(t.Description), nullStr(t.ProjectID), t.Duration, t.DueDate.UnixMilli(),
		t.Priority, string(t.Status), nullMillis(t.ScheduledStart), nullMillis(t.ScheduledEnd),
		nullMillis(t.CompletedAt), boolInt(t.Locked), boolInt(t.Active), millis(t.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) PutEvent(ctx context.Context, e model.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	source := e.Source
	if source == "" {
		source = model.SourceLocal
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, name, type, start_at, end_at, all_day, active, source) VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, type=excluded.type, start_at=excluded.start_at,
			end_at=excluded.end_at, all_day=excluded.all_day, active=excluded.active, source=excluded.source`,
		e.ID, e.Name, string(e.Type), e.Start.UnixMilli(), e.End.UnixMilli(), boolInt(e.AllDay), boolInt(e.Active), source,
	)
	return err
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
