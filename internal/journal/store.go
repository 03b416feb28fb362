package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"cryptq/internal/config"
	"cryptq/internal/task"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on any schema change. The journal is transient
// run history, not an archive: clearing it is the supported migration path.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists run and task history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'cryptq history clear' or delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// BeginRun records a new run before any task is submitted.
func (s *Store) BeginRun(ctx context.Context, runID, action, source string) (*Run, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, action, source, started_at) VALUES (?, ?, ?, ?)`,
		runID, action, source, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{ID: runID, Action: action, Source: source, StartedAt: now}, nil
}

// FinishRun stamps the run's completion time.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`, now, runID,
	); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// AddTask records a task as pending before it enters the shared queue.
func (s *Store) AddTask(ctx context.Context, runID string, rec task.Record) (*Task, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (run_id, path, action, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		runID, rec.Path, string(rec.Action), StatusPending, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// MarkDispatched records the worker process spawned for a task.
func (s *Store) MarkDispatched(ctx context.Context, id int64, pid int) error {
	return s.updateTask(ctx,
		`UPDATE tasks SET status = ?, worker_pid = ?, updated_at = ? WHERE id = ?`,
		StatusDispatched, pid, nowStamp(), id,
	)
}

// MarkResult records a worker's exit status for a task. Exit code zero
// completes the task; anything else fails it with the given message.
func (s *Store) MarkResult(ctx context.Context, id int64, exitCode int, errorMessage string) error {
	status := StatusCompleted
	if exitCode != 0 {
		status = StatusFailed
	}
	return s.updateTask(ctx,
		`UPDATE tasks SET status = ?, exit_code = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, exitCode, errorMessage, nowStamp(), id,
	)
}

// MarkFailed fails a task that never reached a worker (submit error).
func (s *Store) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	return s.updateTask(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, errorMessage, nowStamp(), id,
	)
}

func (s *Store) updateTask(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetTask fetches one task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, path, action, status, worker_pid, exit_code, error_message, created_at, updated_at
         FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, source, started_at, finished_at FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			run        Run
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Action, &run.Source, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = parseStamp(startedAt)
		if finishedAt.Valid {
			t := parseStamp(finishedAt.String)
			run.FinishedAt = &t
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// ListTasks returns a run's tasks in submission order.
func (s *Store) ListTasks(ctx context.Context, runID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, path, action, status, worker_pid, exit_code, error_message, created_at, updated_at
         FROM tasks WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Summarize aggregates task counts for one run.
func (s *Store) Summarize(ctx context.Context, runID string) (Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM tasks WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize run: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary: %w", err)
		}
		summary.Total += count
		switch TaskStatus(status) {
		case StatusPending, StatusDispatched:
			summary.Pending += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		}
	}
	return summary, rows.Err()
}

// ResolveDispatched finalizes tasks still marked dispatched once a pool run
// ends. Pool workers report one exit status for many tasks, so attribution
// is collective: ok marks the remainder completed, otherwise failed with the
// given message.
func (s *Store) ResolveDispatched(ctx context.Context, runID string, ok bool, message string) (int64, error) {
	status := StatusCompleted
	if !ok {
		status = StatusFailed
	} else {
		message = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
		status, message, nowStamp(), runID, StatusDispatched,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve dispatched tasks: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all journal history and returns the number of runs removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("clear journal: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t         Task
		status    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&t.ID, &t.RunID, &t.Path, &t.Action, &status, &t.WorkerPID, &t.ExitCode, &t.ErrorMessage, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = TaskStatus(status)
	t.CreatedAt = parseStamp(createdAt)
	t.UpdatedAt = parseStamp(updatedAt)
	return &t, nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseStamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
