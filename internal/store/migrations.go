package store

import (
	"database/sql"
	"fmt"
)

// migration is one versioned schema step, applied inside a single
// transaction. Grounded on codenerd/internal/store/migrations.go's
// versioned migration list, simplified: this schema only ever grows by
// whole migrations, never by ad hoc per-column ALTER checks, since the
// domain has two tables rather than codenerd's multi-shard knowledge base.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				session_id TEXT PRIMARY KEY,
				source TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				last_active DATETIME NOT NULL,
				metadata TEXT NOT NULL DEFAULT '{}',
				pid INTEGER
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_pid_last_active ON sessions(pid, last_active)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active)`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp DATETIME NOT NULL,
				agent TEXT NOT NULL,
				model TEXT NOT NULL,
				provider TEXT NOT NULL,
				prompt TEXT NOT NULL,
				response TEXT NOT NULL,
				prompt_tokens INTEGER NOT NULL DEFAULT 0,
				completion_tokens INTEGER NOT NULL DEFAULT 0,
				total_tokens INTEGER NOT NULL DEFAULT 0,
				duration_ms REAL NOT NULL DEFAULT 0,
				estimated_cost_usd REAL NOT NULL DEFAULT 0,
				fallback_used INTEGER NOT NULL DEFAULT 0,
				session_id TEXT REFERENCES sessions(session_id) ON DELETE CASCADE,
				embedding BLOB
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations(agent)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_session_id ON conversations(session_id)`,
			`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
		},
	},
}

func migrate(db *sql.DB) error {
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, err
	}
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (?)`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
