package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
)

// ConversationStore implements §4.4's Conversation Store operations over a
// shared *sql.DB. Every method releases its connection/rows/statement on
// every exit path; none hold a connection open across calls.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// InsertConversation validates total_tokens = prompt+completion when both
// are known, inserts the record, and returns its new id.
func (s *ConversationStore) InsertConversation(ctx context.Context, rec ConversationRecord) (int64, error) {
	if rec.PromptTokens > 0 && rec.CompletionTokens > 0 {
		if rec.TotalTokens != rec.PromptTokens+rec.CompletionTokens {
			return 0, chainerr.InvalidInputf("total_tokens (%d) != prompt_tokens+completion_tokens (%d)",
				rec.TotalTokens, rec.PromptTokens+rec.CompletionTokens)
		}
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(timestamp, agent, model, provider, prompt, response, prompt_tokens,
			 completion_tokens, total_tokens, duration_ms, estimated_cost_usd,
			 fallback_used, session_id, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Agent, rec.Model, rec.Provider, rec.Prompt, rec.Response,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.DurationMS,
		rec.EstimatedCostUSD, rec.FallbackUsed, rec.SessionID, rec.Embedding)
	if err != nil {
		return 0, &chainerr.StoreError{Op: "insert_conversation", Cause: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &chainerr.StoreError{Op: "insert_conversation", Cause: err}
	}
	return id, nil
}

// GetRecentBySession returns up to limit conversations for session_id,
// ordered oldest to newest.
func (s *ConversationStore) GetRecentBySession(ctx context.Context, sessionID string, limit int) ([]ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, agent, model, provider, prompt, response, prompt_tokens,
		       completion_tokens, total_tokens, duration_ms, estimated_cost_usd,
		       fallback_used, session_id, embedding
		FROM (
			SELECT * FROM conversations WHERE session_id = ? ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`, sessionID, limit)
	if err != nil {
		return nil, &chainerr.StoreError{Op: "get_recent_by_session", Cause: err}
	}
	defer rows.Close()
	return scanConversations(rows)
}

// Recent returns the limit most recent conversations, newest first,
// optionally restricted to one agent. It backs §6's GET /logs and
// GET /memory/recent.
func (s *ConversationStore) Recent(ctx context.Context, limit int, agent string) ([]ConversationRecord, error) {
	query := `
		SELECT id, timestamp, agent, model, provider, prompt, response, prompt_tokens,
		       completion_tokens, total_tokens, duration_ms, estimated_cost_usd,
		       fallback_used, session_id, embedding
		FROM conversations`
	var args []any
	if agent != "" {
		query += ` WHERE agent = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &chainerr.StoreError{Op: "recent", Cause: err}
	}
	defer rows.Close()
	return scanConversations(rows)
}

// Search substring-matches q against the prompt and response columns
// (case-insensitive), optionally restricted to one agent, newest first. It
// backs §6's GET /memory/search.
func (s *ConversationStore) Search(ctx context.Context, q, agent string, limit int) ([]ConversationRecord, error) {
	query := `
		SELECT id, timestamp, agent, model, provider, prompt, response, prompt_tokens,
		       completion_tokens, total_tokens, duration_ms, estimated_cost_usd,
		       fallback_used, session_id, embedding
		FROM conversations
		WHERE (prompt LIKE ? ESCAPE '\' OR response LIKE ? ESCAPE '\')`
	pattern := "%" + escapeLike(q) + "%"
	args := []any{pattern, pattern}
	if agent != "" {
		query += ` AND agent = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &chainerr.StoreError{Op: "search", Cause: err}
	}
	defer rows.Close()
	return scanConversations(rows)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// AgentBreakdown is one agent's (or model's) slice of the §6 GET /metrics
// and GET /memory/stats aggregates.
type AgentBreakdown struct {
	Key           string
	RequestCount  int64
	TotalTokens   int64
	TotalCostUSD  float64
	AvgDurationMS float64
}

// StatsSince aggregates request count, tokens, cost, and average duration
// since the given time, both overall and broken down per agent and per
// model.
type StatsSince struct {
	Overall AgentBreakdown
	ByAgent []AgentBreakdown
	ByModel []AgentBreakdown
}

func (s *ConversationStore) StatsSince(ctx context.Context, since time.Time) (StatsSince, error) {
	var out StatsSince
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_usd), 0),
		       COALESCE(AVG(duration_ms), 0)
		FROM conversations WHERE timestamp >= ?`, since)
	if err := row.Scan(&out.Overall.RequestCount, &out.Overall.TotalTokens, &out.Overall.TotalCostUSD, &out.Overall.AvgDurationMS); err != nil {
		return StatsSince{}, &chainerr.StoreError{Op: "stats_since", Cause: err}
	}

	byAgent, err := s.breakdownBy(ctx, "agent", since)
	if err != nil {
		return StatsSince{}, err
	}
	out.ByAgent = byAgent

	byModel, err := s.breakdownBy(ctx, "model", since)
	if err != nil {
		return StatsSince{}, err
	}
	out.ByModel = byModel

	return out, nil
}

func (s *ConversationStore) breakdownBy(ctx context.Context, column string, since time.Time) ([]AgentBreakdown, error) {
	// column is one of the two literal identifiers passed internally above,
	// never caller input, so this is not a SQL-injection vector.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_usd), 0),
		       COALESCE(AVG(duration_ms), 0)
		FROM conversations WHERE timestamp >= ? GROUP BY %s ORDER BY %s`, column, column, column), since)
	if err != nil {
		return nil, &chainerr.StoreError{Op: "breakdown_by_" + column, Cause: err}
	}
	defer rows.Close()

	var out []AgentBreakdown
	for rows.Next() {
		var b AgentBreakdown
		if err := rows.Scan(&b.Key, &b.RequestCount, &b.TotalTokens, &b.TotalCostUSD, &b.AvgDurationMS); err != nil {
			return nil, &chainerr.StoreError{Op: "breakdown_by_" + column, Cause: err}
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, &chainerr.StoreError{Op: "breakdown_by_" + column, Cause: err}
	}
	return out, nil
}

// QueryCandidates returns up to limit most recent conversations not part of
// excludeSessionID, including their embedding blobs, for the Context
// Aggregator's knowledge slice. An empty agent matches every agent
// (all_agents knowledge scope); a non-empty agent restricts to that agent
// only (same_agent knowledge scope).
func (s *ConversationStore) QueryCandidates(ctx context.Context, agent, excludeSessionID string, limit int) ([]ConversationRecord, error) {
	query := `
		SELECT id, timestamp, agent, model, provider, prompt, response, prompt_tokens,
		       completion_tokens, total_tokens, duration_ms, estimated_cost_usd,
		       fallback_used, session_id, embedding
		FROM conversations
		WHERE (session_id IS NULL OR session_id != ?)`
	args := []any{excludeSessionID}
	if agent != "" {
		query += ` AND agent = ?`
		args = append(args, agent)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &chainerr.StoreError{Op: "query_candidates", Cause: err}
	}
	defer rows.Close()
	return scanConversations(rows)
}

// GetByID returns one record, or chainerr.ErrNotFound if it doesn't exist.
func (s *ConversationStore) GetByID(ctx context.Context, id int64) (ConversationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, agent, model, provider, prompt, response, prompt_tokens,
		       completion_tokens, total_tokens, duration_ms, estimated_cost_usd,
		       fallback_used, session_id, embedding
		FROM conversations WHERE id = ?`, id)
	rec, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationRecord{}, fmt.Errorf("conversation %d: %w", id, chainerr.ErrNotFound)
	}
	if err != nil {
		return ConversationRecord{}, &chainerr.StoreError{Op: "get_by_id", Cause: err}
	}
	return rec, nil
}

// Delete removes a conversation by id. Deleting a nonexistent id is a no-op.
func (s *ConversationStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return &chainerr.StoreError{Op: "delete", Cause: err}
	}
	return nil
}

// UpdateEmbedding backfills the embedding blob for an existing record.
func (s *ConversationStore) UpdateEmbedding(ctx context.Context, id int64, blob []byte) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET embedding = ? WHERE id = ?`, blob, id); err != nil {
		return &chainerr.StoreError{Op: "update_embedding", Cause: err}
	}
	return nil
}

// Cleanup deletes conversations older than olderThan whose non-NULL
// session_id names a session that no longer exists. Conversations with a
// NULL session_id are kept. PruneInactiveSessions's cascading delete
// already removes a pruned session's conversations, so this only catches
// rows orphaned some other way.
func (s *ConversationStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversations
		WHERE timestamp < ?
		  AND session_id IS NOT NULL
		  AND session_id NOT IN (SELECT session_id FROM sessions)`, olderThan)
	if err != nil {
		return 0, &chainerr.StoreError{Op: "cleanup", Cause: err}
	}
	return res.RowsAffected()
}

// Stats24h aggregates counts/cost over the last 24 hours for the /metrics
// and /health endpoints.
type Stats24h struct {
	TotalConversations int64
	TotalTokens        int64
	TotalCostUSD       float64
}

func (s *ConversationStore) Stats24h(ctx context.Context) (Stats24h, error) {
	var out Stats24h
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(estimated_cost_usd), 0)
		FROM conversations WHERE timestamp >= ?`, time.Now().Add(-24*time.Hour))
	if err := row.Scan(&out.TotalConversations, &out.TotalTokens, &out.TotalCostUSD); err != nil {
		return Stats24h{}, &chainerr.StoreError{Op: "stats_24h", Cause: err}
	}
	return out, nil
}

// TotalConversations and LastConversationAt back the /health memory block.
func (s *ConversationStore) TotalConversations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, &chainerr.StoreError{Op: "total_conversations", Cause: err}
	}
	return n, nil
}

func (s *ConversationStore) LastConversationAt(ctx context.Context) (*time.Time, error) {
	var t sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM conversations`).Scan(&t); err != nil {
		return nil, &chainerr.StoreError{Op: "last_conversation_at", Cause: err}
	}
	if !t.Valid {
		return nil, nil
	}
	return &t.Time, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (ConversationRecord, error) {
	var rec ConversationRecord
	var sessionID sql.NullString
	err := row.Scan(&rec.ID, &rec.Timestamp, &rec.Agent, &rec.Model, &rec.Provider,
		&rec.Prompt, &rec.Response, &rec.PromptTokens, &rec.CompletionTokens,
		&rec.TotalTokens, &rec.DurationMS, &rec.EstimatedCostUSD, &rec.FallbackUsed,
		&sessionID, &rec.Embedding)
	if err != nil {
		return ConversationRecord{}, err
	}
	if sessionID.Valid {
		rec.SessionID = &sessionID.String
	}
	return rec, nil
}

func scanConversations(rows *sql.Rows) ([]ConversationRecord, error) {
	var out []ConversationRecord
	for rows.Next() {
		rec, err := scanConversation(rows)
		if err != nil {
			return nil, &chainerr.StoreError{Op: "scan_conversation", Cause: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &chainerr.StoreError{Op: "scan_conversations", Cause: err}
	}
	return out, nil
}
