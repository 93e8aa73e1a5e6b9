// Package store implements the SQLite-backed Conversation and Session
// stores: schema migrations, WAL-mode connection setup, and the CRUD and
// query operations the Context Aggregator, Session Manager, and Chain
// Runtime depend on.
package store

import "time"

// ConversationRecord is one persisted agent call.
type ConversationRecord struct {
	ID                int64
	Timestamp         time.Time
	Agent             string
	Model             string
	Provider          string
	Prompt            string
	Response          string
	PromptTokens      int
	CompletionTokens  int
	TotalTokens       int
	DurationMS        float64
	EstimatedCostUSD  float64
	FallbackUsed      bool
	SessionID         *string
	Embedding         []byte
}

// SessionSource identifies where a session originated.
type SessionSource string

const (
	SourceCLI SessionSource = "cli"
	SourceUI  SessionSource = "ui"
	SourceAPI SessionSource = "api"
)

// SessionRecord is one tracked conversation session.
type SessionRecord struct {
	SessionID  string
	Source     SessionSource
	CreatedAt  time.Time
	LastActive time.Time
	Metadata   string // opaque JSON
	PID        *int   // denormalized from Metadata for find_active_cli_session lookups
}
