// Package history persists deployment run records to a local sqlite
// database. Recording is opt-in: without it the tool keeps no on-disk
// state between runs besides the log files.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"dockship/internal/security"
)

// Run is one recorded pipeline invocation.
type Run struct {
	ID       int64
	Release  string
	Branch   string
	Host     string
	Mode     string
	Action   string // deploy or cleanup
	ExitCode int
	Error    string
	Started  time.Time
	Finished time.Time
}

// Store wraps the sqlite database holding run history.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	release_name TEXT NOT NULL,
	branch    TEXT NOT NULL,
	host      TEXT NOT NULL,
	mode      TEXT NOT NULL,
	action    TEXT NOT NULL,
	exit_code INTEGER NOT NULL,
	error     TEXT NOT NULL DEFAULT '',
	started   TIMESTAMP NOT NULL,
	finished  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_release ON runs(release_name);
`

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), security.PermDirectory); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	// Best effort; sqlite creates the file with default permissions.
	os.Chmod(path, security.PermDBFile)

	return &Store{db: db}, nil
}

// Record appends one run.
func (s *Store) Record(run Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (release_name, branch, host, mode, action, exit_code, error, started, finished)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Release, run.Branch, run.Host, run.Mode, run.Action,
		run.ExitCode, run.Error, run.Started, run.Finished)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, release_name, branch, host, mode, action, exit_code, error, started, finished
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Release, &r.Branch, &r.Host, &r.Mode, &r.Action,
			&r.ExitCode, &r.Error, &r.Started, &r.Finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecentFor returns the latest runs for one release, newest first.
func (s *Store) RecentFor(releaseName string, limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, release_name, branch, host, mode, action, exit_code, error, started, finished
		FROM runs WHERE release_name = ? ORDER BY id DESC LIMIT ?`, releaseName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Release, &r.Branch, &r.Host, &r.Mode, &r.Action,
			&r.ExitCode, &r.Error, &r.Started, &r.Finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
