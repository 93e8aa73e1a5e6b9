package context

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/embedding"
	"github.com/chainforge-ai/chainforge/internal/store"
	"github.com/chainforge-ai/chainforge/internal/tokenizer"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

func newTestAggregator(t *testing.T) (*Aggregator, *store.ConversationStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chainforge.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	cs := store.NewConversationStore(db)
	// conversations.session_id references sessions, so the sessions the
	// tests below insert conversations for must exist first.
	ss := store.NewSessionStore(db)
	for _, id := range []string{"sess-a", "other-sess"} {
		if err := ss.SaveSession(context.Background(), store.SessionRecord{SessionID: id, Source: store.SourceAPI, Metadata: "{}"}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}
	agg := New(cs, embedding.NewMockEngine(), tokenizer.NewBPECounter(""), logging.Default())
	return agg, cs
}

func TestBuild_EmptyWhenNoSessionAndNoKnowledge(t *testing.T) {
	agg, _ := newTestAggregator(t)
	text, tel, err := agg.Build(context.Background(), "hello", "", "builder", config.MemoryConfig{
		Enabled: true, MaxContextTokens: 600, Strategy: config.StrategyKeywords, MinRelevance: 0.1, TimeDecayHours: 168,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty context, got %q", text)
	}
	if tel.TotalTokens != 0 {
		t.Fatalf("expected zero telemetry, got %+v", tel)
	}
}

func TestBuild_SessionSliceOrderedAndPopulated(t *testing.T) {
	agg, cs := newTestAggregator(t)
	ctx := context.Background()
	sid := "sess-a"

	for i, text := range []string{"q1", "q2", "q3"} {
		s := sid
		_, err := cs.InsertConversation(ctx, store.ConversationRecord{
			Timestamp: time.Now().Add(time.Duration(i) * time.Minute),
			Agent:     "builder", Model: "x/y", Provider: "x",
			Prompt: text, Response: "a" + text, SessionID: &s,
		})
		if err != nil {
			t.Fatalf("InsertConversation: %v", err)
		}
	}

	text, tel, err := agg.Build(ctx, "hello", sid, "builder", config.MemoryConfig{
		Enabled: true, SessionLimit: 10, MaxContextTokens: 2000,
		Strategy: config.StrategyKeywords, MinRelevance: 0.1, TimeDecayHours: 168,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tel.SessionMessages != 3 {
		t.Fatalf("SessionMessages = %d, want 3", tel.SessionMessages)
	}
	if text == "" {
		t.Fatal("expected non-empty context")
	}
}

func TestBuild_KnowledgeSliceFallsBackToMostRecent(t *testing.T) {
	agg, cs := newTestAggregator(t)
	ctx := context.Background()

	other := "other-sess"
	_, err := cs.InsertConversation(ctx, store.ConversationRecord{
		Timestamp: time.Now().Add(-time.Hour),
		Agent:     "builder", Model: "x/y", Provider: "x",
		Prompt: "completely unrelated topic", Response: "some answer", SessionID: &other,
	})
	if err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}

	// min_relevance is set high enough that the keyword overlap with
	// "hello world" will never clear it, forcing the fallback path.
	text, tel, err := agg.Build(ctx, "hello world", "current-sess", "builder", config.MemoryConfig{
		Enabled: true, MaxContextTokens: 2000,
		Strategy: config.StrategyKeywords, MinRelevance: 0.99, TimeDecayHours: 168,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tel.KnowledgeMessages != 1 {
		t.Fatalf("KnowledgeMessages = %d, want 1 (fallback candidate)", tel.KnowledgeMessages)
	}
	if text == "" {
		t.Fatal("expected a fallback knowledge entry in context")
	}
}

func TestBuild_SessionScopeRespected(t *testing.T) {
	agg, cs := newTestAggregator(t)
	ctx := context.Background()

	other := "other-sess"
	_, err := cs.InsertConversation(ctx, store.ConversationRecord{
		Timestamp: time.Now(),
		Agent:     "critic-security", Model: "x/y", Provider: "x",
		Prompt: "hello world topic", Response: "resp", SessionID: &other,
	})
	if err != nil {
		t.Fatalf("InsertConversation: %v", err)
	}

	_, tel, err := agg.Build(ctx, "hello world", "current-sess", "builder", config.MemoryConfig{
		Enabled: true, MaxContextTokens: 2000,
		Strategy: config.StrategyKeywords, MinRelevance: 0.5, TimeDecayHours: 168,
		KnowledgeScope: config.ScopeSameAgent,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tel.KnowledgeMessages != 0 {
		t.Fatalf("expected same_agent scope to exclude the other agent's record, got %d messages", tel.KnowledgeMessages)
	}
}

func TestExtractKeywords_Lowercases(t *testing.T) {
	kw := extractKeywords("Hello World FOO")
	if !kw["hello"] || !kw["world"] || !kw["foo"] {
		t.Fatalf("keywords = %v", kw)
	}
}

func TestTruncateChars(t *testing.T) {
	if got := truncateChars("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := truncateChars("hello world", 5); got != "hello" {
		t.Fatalf("got %q", got)
	}
}
