package store

import (
	"database/sql"
	"fmt"
)

// seq breaks createdAt ties by insertion order; read_by is a JSON array of
// display names.
const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT    NOT NULL UNIQUE,
	author       TEXT    NOT NULL,
	body         TEXT    NOT NULL,
	created_at   DATETIME NOT NULL,
	deleted      INTEGER NOT NULL DEFAULT 0,
	edited       INTEGER NOT NULL DEFAULT 0,
	last_edit_at DATETIME,
	read_by      TEXT    NOT NULL DEFAULT '[]'
)`

const createActiveIndex = `
CREATE INDEX IF NOT EXISTS idx_messages_active
ON messages (deleted, created_at, seq)`

// applySchema creates the message log table and its snapshot index.
func applySchema(db *sql.DB) error {
	for _, stmt := range []string{createMessagesTable, createActiveIndex} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// applyPragmas configures SQLite for concurrent readers alongside the single
// writer goroutine.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
