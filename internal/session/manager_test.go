package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/internal/store"
)

func TestValidate(t *testing.T) {
	valid := []string{"a", "cli-123-20260101T000000", "UI_session-9"}
	for _, v := range valid {
		if err := Validate(v); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", v, err)
		}
	}

	invalid := []string{"", "has a space", "semi;colon", "slash/es"}
	for _, v := range invalid {
		if err := Validate(v); !errors.Is(err, chainerr.ErrInvalidSessionID) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidSessionID", v, err)
		}
	}
}

func TestValidate_TooLong(t *testing.T) {
	long := make([]byte, 65)
	for i := range long {
		long[i] = 'a'
	}
	if err := Validate(string(long)); !errors.Is(err, chainerr.ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID for a 65-char id, got %v", err)
	}
}

func newTestManager(t *testing.T) (*Manager, *store.SessionStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chainforge.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ss := store.NewSessionStore(db)
	return New(ss), ss
}

func TestGetOrCreateCLISession_CreatesThenReuses(t *testing.T) {
	m, ss := newTestManager(t)
	ctx := context.Background()

	id1, err := m.GetOrCreateCLISession(ctx, 555)
	if err != nil {
		t.Fatalf("GetOrCreateCLISession: %v", err)
	}

	id2, err := m.GetOrCreateCLISession(ctx, 555)
	if err != nil {
		t.Fatalf("GetOrCreateCLISession (reuse): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected reuse within window: %q != %q", id1, id2)
	}

	rec, err := ss.GetSession(ctx, id1)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec.Source != store.SourceCLI {
		t.Fatalf("Source = %q", rec.Source)
	}
}

func TestGetOrCreateCLISession_NewPIDGetsNewSession(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	id1, err := m.GetOrCreateCLISession(ctx, 1)
	if err != nil {
		t.Fatalf("GetOrCreateCLISession: %v", err)
	}
	id2, err := m.GetOrCreateCLISession(ctx, 2)
	if err != nil {
		t.Fatalf("GetOrCreateCLISession: %v", err)
	}
	if id1 == id2 {
		t.Fatal("expected distinct sessions for distinct pids")
	}
}

func TestResolveAPISession_CallerSuppliedID(t *testing.T) {
	m, _ := newTestManager(t)
	id, err := m.ResolveAPISession(context.Background(), "my-custom-id")
	if err != nil {
		t.Fatalf("ResolveAPISession: %v", err)
	}
	if id != "my-custom-id" {
		t.Fatalf("id = %q", id)
	}
}

func TestResolveAPISession_InvalidCallerID(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.ResolveAPISession(context.Background(), "has a space"); !errors.Is(err, chainerr.ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestResolveAPISession_GeneratesWhenEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	id, err := m.ResolveAPISession(context.Background(), "")
	if err != nil {
		t.Fatalf("ResolveAPISession: %v", err)
	}
	if len(id) == 0 {
		t.Fatal("expected a generated id")
	}
	if err := Validate(id); err != nil {
		t.Fatalf("generated id %q fails validation: %v", id, err)
	}
}

func TestRecordConversationLanded_BumpsLastActive(t *testing.T) {
	m, ss := newTestManager(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	if err := ss.SaveSession(ctx, store.SessionRecord{
		SessionID: "sess-x", Source: store.SourceAPI, CreatedAt: old, LastActive: old,
	}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	if err := m.RecordConversationLanded(ctx, "sess-x"); err != nil {
		t.Fatalf("RecordConversationLanded: %v", err)
	}

	rec, err := ss.GetSession(ctx, "sess-x")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !rec.LastActive.After(old) {
		t.Fatalf("expected last_active to advance, got %v (was %v)", rec.LastActive, old)
	}
}

func TestGenerateUIID_MatchesExpectedShape(t *testing.T) {
	id := GenerateUIID()
	if err := Validate(id); err != nil {
		t.Fatalf("GenerateUIID() = %q fails validation: %v", id, err)
	}
}
