package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
)

// SessionStore implements §4.4's session-side operations. find_active_cli_session
// uses a dedicated indexed pid column rather than the LIKE-on-JSON-blob
// matching the original Python used, a deliberate departure recorded in
// DESIGN.md.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// SaveSession upserts rec. On conflict it overwrites last_active and
// metadata with rec's values; last_active is now when rec leaves it zero.
func (s *SessionStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastActive.IsZero() {
		rec.LastActive = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, source, created_at, last_active, metadata, pid)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			last_active = excluded.last_active,
			metadata = excluded.metadata`,
		rec.SessionID, rec.Source, rec.CreatedAt, rec.LastActive, rec.Metadata, rec.PID)
	if err != nil {
		return &chainerr.StoreError{Op: "save_session", Cause: err}
	}
	return nil
}

// GetSession returns a session by id, or chainerr.ErrNotFound.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, source, created_at, last_active, metadata, pid
		FROM sessions WHERE session_id = ?`, sessionID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("session %q: %w", sessionID, chainerr.ErrNotFound)
	}
	if err != nil {
		return SessionRecord{}, &chainerr.StoreError{Op: "get_session", Cause: err}
	}
	return rec, nil
}

// FindActiveCLISession returns the most recently active CLI session for pid
// whose last_active is within `within` of now, or chainerr.ErrNotFound.
func (s *SessionStore) FindActiveCLISession(ctx context.Context, pid int, within time.Duration) (SessionRecord, error) {
	cutoff := time.Now().UTC().Add(-within)
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, source, created_at, last_active, metadata, pid
		FROM sessions
		WHERE pid = ? AND source = ? AND last_active >= ?
		ORDER BY last_active DESC
		LIMIT 1`, pid, SourceCLI, cutoff)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, chainerr.ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, &chainerr.StoreError{Op: "find_active_cli_session", Cause: err}
	}
	return rec, nil
}

// PruneInactiveSessions deletes sessions whose last_active is older than
// olderThan, cascading to their conversations via the foreign key.
func (s *SessionStore) PruneInactiveSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_active < ?`, olderThan)
	if err != nil {
		return 0, &chainerr.StoreError{Op: "prune_inactive_sessions", Cause: err}
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var pid sql.NullInt64
	err := row.Scan(&rec.SessionID, &rec.Source, &rec.CreatedAt, &rec.LastActive, &rec.Metadata, &pid)
	if err != nil {
		return SessionRecord{}, err
	}
	if pid.Valid {
		v := int(pid.Int64)
		rec.PID = &v
	}
	return rec, nil
}
