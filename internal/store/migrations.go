package store

import "fmt"

// migrations are applied in order. The database records how many have run
// in PRAGMA user_version; append new steps, never edit old ones.
var migrations = []string{
	// 1: one row per pipeline run
	`CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		channels TEXT NOT NULL DEFAULT '[]',
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);
	CREATE INDEX idx_sessions_started_at ON sessions(started_at);`,

	// 2: debounced transitions observed during a session
	`CREATE TABLE signal_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		channel TEXT NOT NULL,
		kind TEXT NOT NULL CHECK(kind IN ('rise', 'fall', 'pulse')),
		at DATETIME NOT NULL
	);
	CREATE INDEX idx_signal_edges_session_id ON signal_edges(session_id);`,

	// 3: key/value application settings
	`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
}

// migrate applies every migration newer than the database's schema
// version, each in its own transaction.
func (s *Store) migrate() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this build (%d)", current, len(migrations))
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
