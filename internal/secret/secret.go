// Package secret holds provider API keys in mlocked, zeroed-on-destroy
// memory between the moment they are read from the environment and the
// moment a provider SDK client consumes them, grounded on
// services/orchestrator/handlers/secure_accumulator.go's memguard-backed
// secure token accumulator, narrowed from streaming-response accumulation
// to one-shot credential handling.
package secret

import (
	"sync"

	"github.com/awnumar/memguard"
)

var initOnce sync.Once

// Init arms memguard's interrupt handler so a SIGINT/SIGTERM during
// startup still purges locked buffers instead of leaving key material
// sitting in swappable memory. Safe to call more than once; only the
// first call takes effect.
func Init() {
	initOnce.Do(func() {
		memguard.CatchInterrupt()
	})
}

// Value holds one secret in a locked buffer.
type Value struct {
	buf *memguard.LockedBuffer
}

// Hold copies plaintext into a freshly allocated locked buffer. Callers
// should call Destroy once the secret has been handed to its consumer
// (typically a provider SDK client constructor).
func Hold(plaintext string) *Value {
	if plaintext == "" {
		return &Value{}
	}
	buf := memguard.NewBuffer(len(plaintext))
	if buf == nil {
		return &Value{}
	}
	buf.Melt()
	copy(buf.Bytes(), []byte(plaintext))
	return &Value{buf: buf}
}

// Reveal returns the secret as a plain string. The underlying SDK clients
// this project wires (go-openai, the Anthropic REST client) both require a
// plain string credential, so this is an unavoidable, one-time exposure
// rather than a design gap.
func (v *Value) Reveal() string {
	if v == nil || v.buf == nil {
		return ""
	}
	return string(v.buf.Bytes())
}

// Destroy wipes the underlying buffer. Safe to call on a nil Value.
func (v *Value) Destroy() {
	if v != nil && v.buf != nil {
		v.buf.Destroy()
	}
}

// Purge wipes every locked buffer memguard has allocated. Call during
// graceful shutdown.
func Purge() {
	memguard.Purge()
}
