// Package state provides the SQLite-backed run index for Atelier.
// The index lives next to the run directories (<out_dir>/atelier.db)
// and powers `atelier status`.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps an SQLite database connection with run-index operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// IndexPath returns the run index location under the output base dir.
func IndexPath(outDir string) string {
	return filepath.Join(outDir, "atelier.db")
}

// Open opens an SQLite database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies the schema.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id               TEXT PRIMARY KEY,
			command          TEXT NOT NULL,
			pipeline         TEXT NOT NULL DEFAULT '',
			dir              TEXT NOT NULL,
			status           TEXT NOT NULL,
			total_units      INTEGER NOT NULL DEFAULT 0,
			successful_units INTEGER NOT NULL DEFAULT 0,
			started_at       TIMESTAMP NOT NULL,
			finished_at      TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// RecordStart registers a run as running. Re-registering an id (e.g. a
// resumed run) resets its status.
func (db *DB) RecordStart(r *RunRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	r.Status = RunStatusRunning

	_, err := db.conn.Exec(`
		INSERT INTO runs (id, command, pipeline, dir, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			command = excluded.command,
			pipeline = excluded.pipeline,
			status = excluded.status,
			started_at = excluded.started_at,
			finished_at = NULL`,
		r.ID, r.Command, r.Pipeline, r.Dir, r.Status, r.StartedAt)
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RecordFinish marks a run completed or failed with its unit counts.
func (db *DB) RecordFinish(id string, status RunStatus, totalUnits, successfulUnits int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`
		UPDATE runs
		SET status = ?, total_units = ?, successful_units = ?, finished_at = ?
		WHERE id = ?`,
		status, totalUnits, successfulUnits, time.Now(), id)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record run finish: unknown run %q", id)
	}
	return nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(id string) (*RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, command, pipeline, dir, status, total_units, successful_units, started_at, finished_at
		FROM runs WHERE id = ?`, id)

	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return r, err
}

// ListRecent returns the most recently started runs, newest first.
func (db *DB) ListRecent(limit int) ([]RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, command, pipeline, dir, status, total_units, successful_units, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var r RunRecord
	var finished sql.NullTime
	err := s.Scan(&r.ID, &r.Command, &r.Pipeline, &r.Dir, &r.Status,
		&r.TotalUnits, &r.SuccessfulUnits, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}
