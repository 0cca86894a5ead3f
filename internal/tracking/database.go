package tracking

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewDatabase opens the SQLite database at dbPath, applies pragmas and makes
// sure the playback history schema exists. ":memory:" gives a private
// in-memory database.
func NewDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: writes come from a single recorder goroutine, and an
	// in-memory database only exists on the connection that created it
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	slog.Debug("tracking database ready", "path", dbPath)
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS playback_events (
    id          INTEGER PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    session_id  TEXT    NOT NULL,
    player      TEXT    NOT NULL CHECK (player IN ('music', 'sound')),
    source      TEXT    NOT NULL,
    kind        TEXT    NOT NULL,
    from_state  TEXT    NOT NULL,
    to_state    TEXT    NOT NULL,
    position_ms INTEGER NOT NULL CHECK (position_ms >= 0),
    error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_playback_timestamp ON playback_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_playback_source ON playback_events(source);
CREATE INDEX IF NOT EXISTS idx_playback_session ON playback_events(session_id);
CREATE INDEX IF NOT EXISTS idx_playback_errors ON playback_events(source) WHERE kind = 'error';
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
