// Package session implements session ID validation, per-source ID
// generation, CLI session reuse, and probabilistic inactive-session
// cleanup, grounded on original_source/core/session_manager.py.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"regexp"
	"time"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/internal/store"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const (
	cliReuseWindow  = 2 * time.Hour
	cleanupAge      = 7 * 24 * time.Hour
	cleanupProbability = 0.1
)

// Validate rejects a session_id that is empty, longer than 64 characters,
// or contains a character outside [A-Za-z0-9_-].
func Validate(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("session id %q: %w", id, chainerr.ErrInvalidSessionID)
	}
	return nil
}

// Manager resolves, generates, and persists session identity.
type Manager struct {
	sessions *store.SessionStore
	rng      randSource
}

type randSource interface {
	Float64() float64
}

// New builds a Manager backed by a SessionStore.
func New(sessions *store.SessionStore) *Manager {
	return &Manager{sessions: sessions, rng: cryptoRand{}}
}

// GetOrCreateCLISession implements the CLI reuse rule: look for an active
// session for pid within the reuse window; on hit, reuse its id without
// touching last_active (that only advances when a conversation lands); on
// miss, generate and persist a new session.
func (m *Manager) GetOrCreateCLISession(ctx context.Context, pid int) (string, error) {
	existing, err := m.sessions.FindActiveCLISession(ctx, pid, cliReuseWindow)
	if err == nil {
		return existing.SessionID, nil
	}
	if !errors.Is(err, chainerr.ErrNotFound) {
		return "", err
	}

	id := GenerateCLIID(pid)
	if err := m.sessions.SaveSession(ctx, store.SessionRecord{
		SessionID: id,
		Source:    store.SourceCLI,
		Metadata:  fmt.Sprintf(`{"pid":%d}`, pid),
		PID:       &pid,
	}); err != nil {
		return "", err
	}
	return id, nil
}

// ResolveAPISession validates a caller-supplied id and persists it as an
// api session if it is not stored yet, or generates and persists one when
// none was supplied.
func (m *Manager) ResolveAPISession(ctx context.Context, callerID string) (string, error) {
	if callerID != "" {
		if err := Validate(callerID); err != nil {
			return "", err
		}
		if _, err := m.sessions.GetSession(ctx, callerID); err != nil {
			if !errors.Is(err, chainerr.ErrNotFound) {
				return "", err
			}
			if err := m.sessions.SaveSession(ctx, store.SessionRecord{SessionID: callerID, Source: store.SourceAPI, Metadata: "{}"}); err != nil {
				return "", err
			}
		}
		return callerID, nil
	}
	id := GenerateAPIID()
	if err := m.sessions.SaveSession(ctx, store.SessionRecord{SessionID: id, Source: store.SourceAPI, Metadata: "{}"}); err != nil {
		return "", err
	}
	return id, nil
}

// RecordConversationLanded bumps last_active for sessionID now that a
// conversation has actually landed against it, and probabilistically
// triggers cleanup of sessions inactive for more than 7 days.
func (m *Manager) RecordConversationLanded(ctx context.Context, sessionID string) error {
	existing, err := m.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	existing.LastActive = time.Now().UTC()
	if err := m.sessions.SaveSession(ctx, existing); err != nil {
		return err
	}

	if m.rng.Float64() < cleanupProbability {
		if _, err := m.sessions.PruneInactiveSessions(ctx, time.Now().Add(-cleanupAge)); err != nil {
			return err
		}
	}
	return nil
}

// GenerateCLIID builds "cli-{pid}-{UTC compact timestamp}".
func GenerateCLIID(pid int) string {
	return fmt.Sprintf("cli-%d-%s", pid, time.Now().UTC().Format("20060102T150405"))
}

// GenerateUIID builds "ui-{unix_ms}-{8 random alnum}". The UI frontend
// typically assigns its own id; this generator exists for tests and for
// any backend-initiated UI session.
func GenerateUIID() string {
	return fmt.Sprintf("ui-%d-%s", time.Now().UnixMilli(), randomAlnum(8))
}

// GenerateAPIID builds "api-{unix_ms}-{8 random alnum}".
func GenerateAPIID() string {
	return fmt.Sprintf("api-%d-%s", time.Now().UnixMilli(), randomAlnum(8))
}

// CurrentPID is a small indirection so tests can avoid depending on the
// real process id.
func CurrentPID() int { return os.Getpid() }

const alnumAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomAlnum(n int) string {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alnumAlphabet))))
		if err != nil {
			// crypto/rand failures are effectively unrecoverable; fall back
			// to a fixed character rather than panicking mid-request.
			b[i] = 'x'
			continue
		}
		b[i] = alnumAlphabet[idx.Int64()]
	}
	return string(b)
}

type cryptoRand struct{}

func (cryptoRand) Float64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 1 // never trigger cleanup on RNG failure
	}
	return float64(n.Int64()) / float64(int64(1)<<53)
}
