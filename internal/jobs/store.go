// Package jobs persists a local run history for every message the worker
// handles. The ledger is observability for operators; queue delivery
// state, not this database, decides whether a job runs again.
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome labels how a run ended.
const (
	OutcomeCompleted       = "completed"
	OutcomeFailedRetryable = "failed_retryable"
	OutcomeFailedPermanent = "failed_permanent"
	OutcomeRunning         = "running"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID         int64
	JobID      string
	ObjectKey  string
	Outcome    string
	ErrorKind  string
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run-history database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	dbPath := filepath.Join(dir, "jobs.db")
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

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL,
	object_key TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_job_id ON runs(job_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init run schema: %w", err)
	}
	return nil
}

// Begin records the start of a run and returns its row id.
func (s *Store) Begin(ctx context.Context, jobID, objectKey string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (job_id, object_key, outcome, started_at) VALUES (?, ?, ?, ?)`,
		jobID, objectKey, OutcomeRunning, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("record run start: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}
	return id, nil
}

// Finish records how a run ended.
func (s *Store) Finish(ctx context.Context, runID int64, outcome, errorKind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET outcome = ?, error_kind = ?, detail = ?, finished_at = ? WHERE id = ?`,
		outcome, errorKind, detail, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

// Recent returns the newest runs, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, object_key, outcome, error_kind, detail, started_at, COALESCE(finished_at, started_at)
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.JobID, &run.ObjectKey, &run.Outcome, &run.ErrorKind, &run.Detail, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Attempts counts how many runs exist for a job id.
func (s *Store) Attempts(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE job_id = ?`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}
