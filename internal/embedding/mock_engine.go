package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

const mockDimensions = 32

// MockEngine produces a deterministic, low-dimension vector derived from a
// SHA-256 hash of the input text. It carries no semantic meaning but is
// stable (same text -> same vector) so cosine-similarity-based tests and
// LLM_MOCK=1 runs behave deterministically without a network call.
type MockEngine struct{}

func NewMockEngine() *MockEngine { return &MockEngine{} }

func (e *MockEngine) Name() string    { return "mock" }
func (e *MockEngine) Dimensions() int { return mockDimensions }

func (e *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, mockDimensions)
	for i := 0; i < mockDimensions; i++ {
		// Spread the byte stream across a -1..1 range via a rotating offset
		// so adjacent dimensions aren't identical for short inputs.
		shifted := binary.BigEndian.Uint16([]byte{sum[i%len(sum)], sum[(i+7)%len(sum)]})
		vec[i] = float32(shifted)/float32(math.MaxUint16)*2 - 1
	}
	return vec, nil
}
