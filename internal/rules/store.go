package rules

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/othala/internal/embed"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS org_rules (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	keywords      TEXT NOT NULL DEFAULT '[]',
	destination   TEXT NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1,
	embeddings    TEXT NOT NULL DEFAULT '[]',
	keywords_hash TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS move_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	source      TEXT NOT NULL,
	destination TEXT NOT NULL,
	rule_id     TEXT NOT NULL DEFAULT '',
	trigger_via TEXT NOT NULL,
	status      TEXT NOT NULL,
	note        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_move_log_created_at ON move_log(created_at DESC);
`

// DB wraps a sql.DB with rule, settings, and move-log operations. The
// embedder regenerates cached keyword embeddings when a rule's descriptive
// text changes.
type DB struct {
	conn     *sql.DB
	embedder embed.Provider
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, embedder embed.Provider) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("rules: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rules: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rules: apply schema: %w", err)
	}
	return &DB{conn: conn, embedder: embedder}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
