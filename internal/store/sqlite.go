package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	completed    INTEGER NOT NULL DEFAULT 0,
	priority     INTEGER NOT NULL DEFAULT 2,
	due_date     INTEGER,
	created_at   INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_tasks_open ON tasks(completed, due_date);

CREATE TABLE IF NOT EXISTS reminders (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	remind_at          INTEGER NOT NULL,
	completed          INTEGER NOT NULL DEFAULT 0,
	recurring          INTEGER NOT NULL DEFAULT 0,
	recurrence_pattern TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reminders_open ON reminders(completed, remind_at);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	embedding  TEXT,
	metadata   TEXT,
	created_at INTEGER NOT NULL
);
`

// SQLite stores every entity in a single SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var (
	_ TaskStore          = sqliteTasks{}
	_ ReminderStore      = sqliteReminders{}
	_ MessageStore       = sqliteMessages{}
	_ memory.RecordStore = sqliteRecords{}
)

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrStorage, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logger.Debug("sqlite pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: applying schema: %w", ErrStorage, err)
	}

	logger.Info("sqlite store opened", zap.String("path", path))
	return &SQLite{db: db, logger: logger, now: time.Now}, nil
}

// SetClock overrides the clock used by due-date queries.
func (s *SQLite) SetClock(now func() time.Time) { s.now = now }

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Tasks returns the task view.
func (s *SQLite) Tasks() TaskStore { return sqliteTasks{s} }

// Reminders returns the reminder view.
func (s *SQLite) Reminders() ReminderStore { return sqliteReminders{s} }

// Messages returns the chat history view.
func (s *SQLite) Messages() MessageStore { return sqliteMessages{s} }

// Records returns the memory record view.
func (s *SQLite) Records() memory.RecordStore { return sqliteRecords{s} }

type sqliteTasks struct{ s *SQLite }
type sqliteReminders struct{ s *SQLite }
type sqliteMessages struct{ s *SQLite }
type sqliteRecords struct{ s *SQLite }

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Tasks

const taskColumns = `id, title, description, completed, priority, due_date, created_at, completed_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var (
		t           Task
		completed   int
		due, doneAt sql.NullInt64
		createdAt   int64
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &completed, &t.Priority, &due, &createdAt, &doneAt); err != nil {
		return Task{}, err
	}
	t.Completed = completed != 0
	t.DueDate = fromNullNanos(due)
	t.CreatedAt = fromNanos(createdAt)
	t.CompletedAt = fromNullNanos(doneAt)
	return t, nil
}

func (v sqliteTasks) query(ctx context.Context, op, q string, args ...any) ([]Task, error) {
	rows, err := v.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func (v sqliteTasks) Get(ctx context.Context, id string) (Task, error) {
	row := v.s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Task{}, wrap("get task", err)
	}
	return t, nil
}

func (v sqliteTasks) List(ctx context.Context) ([]Task, error) {
	return v.query(ctx, "list tasks", `SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
}

func (v sqliteTasks) ListActive(ctx context.Context) ([]Task, error) {
	return v.query(ctx, "list active tasks", `SELECT `+taskColumns+` FROM tasks
		WHERE completed = 0
		ORDER BY due_date IS NULL, due_date, priority, created_at, id`)
}

func (v sqliteTasks) ListCompleted(ctx context.Context) ([]Task, error) {
	return v.query(ctx, "list completed tasks", `SELECT `+taskColumns+` FROM tasks
		WHERE completed = 1
		ORDER BY completed_at IS NULL, completed_at DESC, created_at, id`)
}

func (v sqliteTasks) ListDueToday(ctx context.Context) ([]Task, error) {
	start, end := dayBounds(v.s.now())
	return v.query(ctx, "list tasks due today", `SELECT `+taskColumns+` FROM tasks
		WHERE completed = 0 AND due_date >= ? AND due_date < ?
		ORDER BY due_date, created_at, id`, nanos(start), nanos(end))
}

func (v sqliteTasks) Add(ctx context.Context, t Task) error {
	_, err := v.s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, boolInt(t.Completed), int(t.Priority),
		nullNanos(t.DueDate), nanos(t.CreatedAt), nullNanos(t.CompletedAt))
	if err != nil {
		return wrap("add task", err)
	}
	return nil
}

func (v sqliteTasks) Update(ctx context.Context, t Task) error {
	res, err := v.s.db.ExecContext(ctx, `UPDATE tasks SET
		title = ?, description = ?, completed = ?, priority = ?, due_date = ?, completed_at = ?
		WHERE id = ?`,
		t.Title, t.Description, boolInt(t.Completed), int(t.Priority),
		nullNanos(t.DueDate), nullNanos(t.CompletedAt), t.ID)
	if err != nil {
		return wrap("update task", err)
	}
	return affected(res, "task", t.ID)
}

func (v sqliteTasks) Delete(ctx context.Context, id string) error {
	res, err := v.s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return wrap("delete task", err)
	}
	return affected(res, "task", id)
}

func affected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// Reminders

const reminderColumns = `id, title, remind_at, completed, recurring, recurrence_pattern, created_at`

func scanReminder(row interface{ Scan(...any) error }) (Reminder, error) {
	var (
		r                    Reminder
		remindAt, createdAt  int64
		completed, recurring int
	)
	if err := row.Scan(&r.ID, &r.Title, &remindAt, &completed, &recurring, &r.RecurrencePattern, &createdAt); err != nil {
		return Reminder{}, err
	}
	r.RemindAt = fromNanos(remindAt)
	r.Completed = completed != 0
	r.Recurring = recurring != 0
	r.CreatedAt = fromNanos(createdAt)
	return r, nil
}

func (v sqliteReminders) query(ctx context.Context, op, q string, args ...any) ([]Reminder, error) {
	rows, err := v.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func (v sqliteReminders) Get(ctx context.Context, id string) (Reminder, error) {
	row := v.s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reminder{}, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Reminder{}, wrap("get reminder", err)
	}
	return r, nil
}

func (v sqliteReminders) List(ctx context.Context) ([]Reminder, error) {
	return v.query(ctx, "list reminders", `SELECT `+reminderColumns+` FROM reminders ORDER BY remind_at, id`)
}

func (v sqliteReminders) ListActive(ctx context.Context) ([]Reminder, error) {
	return v.query(ctx, "list active reminders", `SELECT `+reminderColumns+` FROM reminders
		WHERE completed = 0 ORDER BY remind_at, id`)
}

func (v sqliteReminders) ListDue(ctx context.Context) ([]Reminder, error) {
	return v.query(ctx, "list due reminders", `SELECT `+reminderColumns+` FROM reminders
		WHERE completed = 0 AND remind_at <= ? ORDER BY remind_at, id`, nanos(v.s.now()))
}

func (v sqliteReminders) Add(ctx context.Context, r Reminder) error {
	_, err := v.s.db.ExecContext(ctx, `INSERT INTO reminders (`+reminderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, nanos(r.RemindAt), boolInt(r.Completed), boolInt(r.Recurring),
		r.RecurrencePattern, nanos(r.CreatedAt))
	if err != nil {
		return wrap("add reminder", err)
	}
	return nil
}

func (v sqliteReminders) Update(ctx context.Context, r Reminder) error {
	res, err := v.s.db.ExecContext(ctx, `UPDATE reminders SET
		title = ?, remind_at = ?, completed = ?, recurring = ?, recurrence_pattern = ?
		WHERE id = ?`,
		r.Title, nanos(r.RemindAt), boolInt(r.Completed), boolInt(r.Recurring), r.RecurrencePattern, r.ID)
	if err != nil {
		return wrap("update reminder", err)
	}
	return affected(res, "reminder", r.ID)
}

func (v sqliteReminders) Delete(ctx context.Context, id string) error {
	res, err := v.s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return wrap("delete reminder", err)
	}
	return affected(res, "reminder", id)
}

// Messages

func (v sqliteMessages) Add(ctx context.Context, m Message) error {
	_, err := v.s.db.ExecContext(ctx,
		`INSERT INTO messages (id, role, content, session_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, string(m.Role), m.Content, m.SessionID, nanos(m.CreatedAt))
	if err != nil {
		return wrap("add message", err)
	}
	return nil
}

func (v sqliteMessages) ListBySession(ctx context.Context, sessionID string) ([]Message, error) {
	return v.query(ctx, "list session messages", `SELECT id, role, content, session_id, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
}

func (v sqliteMessages) ListRecent(ctx context.Context, n int) ([]Message, error) {
	if n <= 0 {
		n = -1
	}
	return v.query(ctx, "list recent messages", `SELECT id, role, content, session_id, created_at
		FROM messages ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
}

func (v sqliteMessages) query(ctx context.Context, op, q string, args ...any) ([]Message, error) {
	rows, err := v.s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m         Message
			role      string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.SessionID, &createdAt); err != nil {
			return nil, wrap(op, err)
		}
		m.Role = Role(role)
		m.CreatedAt = fromNanos(createdAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

// Memory records

func (v sqliteRecords) All(ctx context.Context) ([]memory.Record, error) {
	rows, err := v.s.db.QueryContext(ctx,
		`SELECT id, content, embedding, metadata, created_at FROM memories ORDER BY created_at, id`)
	if err != nil {
		return nil, wrap("list memories", err)
	}
	defer rows.Close()

	var out []memory.Record
	for rows.Next() {
		var (
			rec           memory.Record
			embJSON, meta sql.NullString
			createdAt     int64
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &embJSON, &meta, &createdAt); err != nil {
			return nil, wrap("scan memory", err)
		}
		if embJSON.Valid && embJSON.String != "" {
			if err := json.Unmarshal([]byte(embJSON.String), &rec.Embedding); err != nil {
				// A corrupt vector only removes the record from search.
				v.s.logger.Warn("skipping corrupt memory embedding", zap.String("id", rec.ID), zap.Error(err))
				rec.Embedding = nil
			}
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				v.s.logger.Warn("skipping corrupt memory metadata", zap.String("id", rec.ID), zap.Error(err))
				rec.Metadata = nil
			}
		}
		rec.CreatedAt = fromNanos(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list memories", err)
	}
	return out, nil
}

func (v sqliteRecords) Add(ctx context.Context, rec memory.Record) error {
	var embJSON, meta sql.NullString
	if len(rec.Embedding) > 0 {
		b, err := json.Marshal(rec.Embedding)
		if err != nil {
			return wrap("encode embedding", err)
		}
		embJSON = sql.NullString{String: string(b), Valid: true}
	}
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return wrap("encode metadata", err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	_, err := v.s.db.ExecContext(ctx,
		`INSERT INTO memories (id, content, embedding, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Content, embJSON, meta, nanos(rec.CreatedAt))
	if err != nil {
		return wrap("add memory", err)
	}
	return nil
}
