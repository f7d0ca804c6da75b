// Package store is the personal datastore behind the assistant: tasks,
// projects, reminders, finances, habits, health logs, notes and journal
// entries, persisted in a single SQLite database. The rest of the system
// only sees the bounded read queries and single-record inserts defined here.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	priority    TEXT NOT NULL DEFAULT 'media',
	status      TEXT NOT NULL DEFAULT 'pendente',
	due_at      TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'ativo',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS reminders (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	due_at      TEXT NOT NULL,
	importance  TEXT NOT NULL DEFAULT 'normal',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS finance_entries (
	id          TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	amount      REAL NOT NULL,
	kind        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT 'outros',
	occurred_at TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS habits (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	frequency  TEXT NOT NULL DEFAULT 'diaria',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS habit_entries (
	id           TEXT PRIMARY KEY,
	habit_id     TEXT NOT NULL REFERENCES habits(id),
	completed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS health_logs (
	id          TEXT PRIMARY KEY,
	logged_at   TEXT NOT NULL,
	sleep_hours REAL,
	energy      INTEGER,
	weight      REAL
);
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS journal_entries (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(due_at);
CREATE INDEX IF NOT EXISTS idx_finance_occurred ON finance_entries(occurred_at);
CREATE INDEX IF NOT EXISTS idx_habit_entries_habit ON habit_entries(habit_id, completed_at);
`

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func newID() string {
	return uuid.NewString()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339, v)
	return t
}

// --- tasks ---

type Task struct {
	ID          string
	Description string
	Priority    string
	Status      string
	DueAt       *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) InsertTask(ctx context.Context, t Task) (string, error) {
	id := newID()
	now := time.Now()
	var dueAt sql.NullString
	if t.DueAt != nil {
		dueAt = sql.NullString{String: fmtTime(*t.DueAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, description, priority, status, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, t.Description, t.Priority, t.Status, dueAt, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

// PendingTasks returns up to limit tasks that are not yet completed,
// oldest first.
func (s *Store) PendingTasks(ctx context.Context, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, priority, status, due_at, created_at, updated_at
		FROM tasks
		WHERE status != 'concluida'
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			t                    Task
			dueAt                sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.ID, &t.Description, &t.Priority, &t.Status, &dueAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if dueAt.Valid {
			due := parseTime(dueAt.String)
			t.DueAt = &due
		}
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// --- projects ---

type Project struct {
	ID          string
	Name        string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) InsertProject(ctx context.Context, p Project) (string, error) {
	id := newID()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Name, p.Description, p.Status, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert project: %w", err)
	}
	return id, nil
}

func (s *Store) ActiveProjects(ctx context.Context, limit int) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, created_at, updated_at
		FROM projects
		WHERE status = 'ativo'
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query active projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var (
			p                    Project
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- reminders ---

type Reminder struct {
	ID          string
	Description string
	DueAt       time.Time
	Importance  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) InsertReminder(ctx context.Context, r Reminder) (string, error) {
	id := newID()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, description, due_at, importance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, r.Description, fmtTime(r.DueAt), r.Importance, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert reminder: %w", err)
	}
	return id, nil
}

// UpcomingReminders returns up to limit reminders due at or after now,
// soonest first.
func (s *Store) UpcomingReminders(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, due_at, importance, created_at, updated_at
		FROM reminders
		WHERE due_at >= ?
		ORDER BY due_at
		LIMIT ?`, fmtTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query upcoming reminders: %w", err)
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		var (
			r                           Reminder
			dueAt, createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.Description, &dueAt, &r.Importance, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.DueAt = parseTime(dueAt)
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		reminders = append(reminders, r)
	}
	return reminders, rows.Err()
}

// --- finances ---

type FinanceEntry struct {
	ID          string
	Description string
	Amount      float64
	Kind        string // "receita" or "despesa"
	Category    string
	OccurredAt  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type FinanceSummary struct {
	Credits float64
	Debits  float64
}

func (f FinanceSummary) Net() float64 {
	return f.Credits - f.Debits
}

func (s *Store) InsertFinanceEntry(ctx context.Context, e FinanceEntry) (string, error) {
	id := newID()
	now := time.Now()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO finance_entries (id, description, amount, kind, category, occurred_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Description, e.Amount, e.Kind, e.Category, fmtTime(e.OccurredAt), fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert finance entry: %w", err)
	}
	return id, nil
}

// FinanceSummarySince sums credits (kind "receita") and debits (kind
// "despesa") for entries that occurred at or after since.
func (s *Store) FinanceSummarySince(ctx context.Context, since time.Time) (FinanceSummary, error) {
	var summary FinanceSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'receita' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'despesa' THEN amount ELSE 0 END), 0)
		FROM finance_entries
		WHERE occurred_at >= ?`, fmtTime(since),
	).Scan(&summary.Credits, &summary.Debits)
	if err != nil {
		return FinanceSummary{}, fmt.Errorf("query finance summary: %w", err)
	}
	return summary, nil
}

// --- habits ---

type Habit struct {
	ID        string
	Name      string
	Frequency string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type HabitCount struct {
	Name  string
	Count int
}

func (s *Store) InsertHabit(ctx context.Context, h Habit) (string, error) {
	id := newID()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (id, name, frequency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, h.Name, h.Frequency, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert habit: %w", err)
	}
	return id, nil
}

// LogHabitEntry records one completion of a habit.
func (s *Store) LogHabitEntry(ctx context.Context, habitID string, completedAt time.Time) (string, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_entries (id, habit_id, completed_at)
		VALUES (?, ?, ?)`,
		id, habitID, fmtTime(completedAt),
	)
	if err != nil {
		return "", fmt.Errorf("log habit entry: %w", err)
	}
	return id, nil
}

// HabitCountsSince returns, per habit, how many completions were recorded
// at or after since. Habits with no completions are included with count 0.
func (s *Store) HabitCountsSince(ctx context.Context, since time.Time) ([]HabitCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.name, COUNT(e.id)
		FROM habits h
		LEFT JOIN habit_entries e ON e.habit_id = h.id AND e.completed_at >= ?
		GROUP BY h.id
		ORDER BY h.name`, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("query habit counts: %w", err)
	}
	defer rows.Close()

	var counts []HabitCount
	for rows.Next() {
		var c HabitCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("scan habit count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// --- health ---

type HealthLog struct {
	ID         string
	LoggedAt   time.Time
	SleepHours *float64
	Energy     *int
	Weight     *float64
}

func (s *Store) InsertHealthLog(ctx context.Context, l HealthLog) (string, error) {
	id := newID()
	if l.LoggedAt.IsZero() {
		l.LoggedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_logs (id, logged_at, sleep_hours, energy, weight)
		VALUES (?, ?, ?, ?, ?)`,
		id, fmtTime(l.LoggedAt), l.SleepHours, l.Energy, l.Weight,
	)
	if err != nil {
		return "", fmt.Errorf("insert health log: %w", err)
	}
	return id, nil
}

func (s *Store) HealthLogsSince(ctx context.Context, since time.Time) ([]HealthLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, logged_at, sleep_hours, energy, weight
		FROM health_logs
		WHERE logged_at >= ?
		ORDER BY logged_at`, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("query health logs: %w", err)
	}
	defer rows.Close()

	var logs []HealthLog
	for rows.Next() {
		var (
			l        HealthLog
			loggedAt string
			sleep    sql.NullFloat64
			energy   sql.NullInt64
			weight   sql.NullFloat64
		)
		if err := rows.Scan(&l.ID, &loggedAt, &sleep, &energy, &weight); err != nil {
			return nil, fmt.Errorf("scan health log: %w", err)
		}
		l.LoggedAt = parseTime(loggedAt)
		if sleep.Valid {
			v := sleep.Float64
			l.SleepHours = &v
		}
		if energy.Valid {
			v := int(energy.Int64)
			l.Energy = &v
		}
		if weight.Valid {
			v := weight.Float64
			l.Weight = &v
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// --- notes ---

type Note struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Store) InsertNote(ctx context.Context, n Note) (string, error) {
	id := newID()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, n.Title, n.Content, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert note: %w", err)
	}
	return id, nil
}

// RecentNotes returns up to limit notes, most recently updated first.
func (s *Store) RecentNotes(ctx context.Context, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, created_at, updated_at
		FROM notes
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var (
			n                    Note
			createdAt, updatedAt string
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.CreatedAt = parseTime(createdAt)
		n.UpdatedAt = parseTime(updatedAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- journal ---

type JournalEntry struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

func (s *Store) InsertJournalEntry(ctx context.Context, e JournalEntry) (string, error) {
	id := newID()
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, content, created_at)
		VALUES (?, ?, ?)`,
		id, e.Content, fmtTime(now),
	)
	if err != nil {
		return "", fmt.Errorf("insert journal entry: %w", err)
	}
	return id, nil
}

// RecentJournalEntries returns up to limit entries, newest first.
func (s *Store) RecentJournalEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, created_at
		FROM journal_entries
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e         JournalEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
