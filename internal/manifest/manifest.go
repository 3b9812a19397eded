// Package manifest keeps an optional SQLite record of every executed
// placement, so the history of a library's organization can be audited
// after the fact.
package manifest

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const currentSchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per tool invocation
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  started_at DATETIME NOT NULL,
  completed_at DATETIME,
  sources TEXT NOT NULL,
  target TEXT NOT NULL,
  interrupted INTEGER DEFAULT 0
);

-- One row per executed move/copy
CREATE TABLE IF NOT EXISTS placements (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT REFERENCES runs(id) ON DELETE CASCADE,
  src_path TEXT NOT NULL,
  dest_path TEXT NOT NULL,
  action TEXT NOT NULL,
  rating INTEGER,
  label TEXT,
  placed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_placements_run_id ON placements(run_id);
CREATE INDEX IF NOT EXISTS idx_placements_dest_path ON placements(dest_path);
`

// Manifest is the placement history database
type Manifest struct {
	db    *sql.DB
	runID string
}

// Open opens or creates the manifest database at path
func Open(path string) (*Manifest, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest database: %w", err)
	}

	// Single writer, single reader: this process
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	m := &Manifest{db: db}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest migration failed: %w", err)
	}
	return m, nil
}

// Close closes the database connection
func (m *Manifest) Close() error {
	return m.db.Close()
}

func (m *Manifest) migrate() error {
	version, err := m.schemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	return tx.Commit()
}

func (m *Manifest) schemaVersion() (int, error) {
	var exists int
	err := m.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// BeginRun registers a new run and returns its id
func (m *Manifest) BeginRun(sources []string, target string) (string, error) {
	id := uuid.NewString()
	_, err := m.db.Exec(
		"INSERT INTO runs (id, started_at, sources, target) VALUES (?, ?, ?, ?)",
		id, time.Now(), strings.Join(sources, ":"), target,
	)
	if err != nil {
		return "", fmt.Errorf("failed to register run: %w", err)
	}
	m.runID = id
	return id, nil
}

// FinishRun marks the current run completed
func (m *Manifest) FinishRun(interrupted bool) error {
	if m.runID == "" {
		return nil
	}
	flag := 0
	if interrupted {
		flag = 1
	}
	_, err := m.db.Exec(
		"UPDATE runs SET completed_at = ?, interrupted = ? WHERE id = ?",
		time.Now(), flag, m.runID,
	)
	return err
}

// RecordPlacement stores one executed move/copy
func (m *Manifest) RecordPlacement(src, dest, action string, rating int, label string) error {
	_, err := m.db.Exec(
		"INSERT INTO placements (run_id, src_path, dest_path, action, rating, label) VALUES (?, ?, ?, ?, ?, ?)",
		m.runID, src, dest, action, rating, label,
	)
	if err != nil {
		return fmt.Errorf("failed to record placement: %w", err)
	}
	return nil
}

// CountPlacements returns the number of placements recorded for the current run
func (m *Manifest) CountPlacements() (int, error) {
	var n int
	err := m.db.QueryRow("SELECT COUNT(*) FROM placements WHERE run_id = ?", m.runID).Scan(&n)
	return n, err
}
