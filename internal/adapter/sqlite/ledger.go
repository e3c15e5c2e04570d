// Package sqlite keeps a local ledger of submitted export tasks and per-year
// submission failures, so a separate monitor process can poll tasks after the
// batch that created them has exited.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
)

const schema = `
CREATE TABLE IF NOT EXISTS export_tasks (
	handle       TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	request_key  TEXT NOT NULL,
	year         INTEGER NOT NULL,
	folder       TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	status       TEXT NOT NULL,
	submitted_at DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS export_tasks_status ON export_tasks (status);
CREATE TABLE IF NOT EXISTS submission_errors (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	year       INTEGER NOT NULL,
	stage      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

// Ledger stores export tasks in a SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SaveTask inserts a submitted task, or refreshes it when the handle is
// already known.
func (l *Ledger) SaveTask(ctx context.Context, task domain.ExportTask) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO export_tasks (handle, run_id, request_key, year, folder, file_name, status, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		task.Handle, task.RunID, task.RequestKey, task.Year, task.Folder, task.FileName,
		string(task.Status), task.SubmittedAt.UTC(), task.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.Handle, err)
	}
	return nil
}

// SaveFailure records why a year produced no export task.
func (l *Ledger) SaveFailure(ctx context.Context, f domain.Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO submission_errors (run_id, year, stage, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.RunID, f.Year, f.Stage, f.Message, f.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save failure for year %d: %w", f.Year, err)
	}
	return nil
}

// UpdateStatus stores the latest polled status of a task.
func (l *Ledger) UpdateStatus(ctx context.Context, handle string, status domain.Status, at time.Time) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE export_tasks SET status = ?, updated_at = ? WHERE handle = ?`,
		string(status), at.UTC(), handle)
	if err != nil {
		return fmt.Errorf("update task %s: %w", handle, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update task %s: not in ledger", handle)
	}
	return nil
}

// PendingTasks returns tasks not yet completed or failed, oldest first.
func (l *Ledger) PendingTasks(ctx context.Context) ([]domain.ExportTask, error) {
	return l.queryTasks(ctx, `WHERE status NOT IN (?, ?) ORDER BY submitted_at, year`,
		string(domain.StatusCompleted), string(domain.StatusFailed))
}

// TasksForRun returns every task submitted by one batch run in year order.
func (l *Ledger) TasksForRun(ctx context.Context, runID string) ([]domain.ExportTask, error) {
	return l.queryTasks(ctx, `WHERE run_id = ? ORDER BY year`, runID)
}

// FailuresForRun returns the failures recorded by one batch run in year order.
func (l *Ledger) FailuresForRun(ctx context.Context, runID string) ([]domain.Failure, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, year, stage, message, created_at FROM submission_errors WHERE run_id = ? ORDER BY year, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []domain.Failure
	for rows.Next() {
		var f domain.Failure
		if err := rows.Scan(&f.RunID, &f.Year, &f.Stage, &f.Message, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (l *Ledger) queryTasks(ctx context.Context, where string, args ...any) ([]domain.ExportTask, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT handle, run_id, request_key, year, folder, file_name, status, submitted_at, updated_at
		FROM export_tasks `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.ExportTask
	for rows.Next() {
		var (
			t      domain.ExportTask
			status string
		)
		if err := rows.Scan(&t.Handle, &t.RunID, &t.RequestKey, &t.Year, &t.Folder, &t.FileName,
			&status, &t.SubmittedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = domain.ParseStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}
