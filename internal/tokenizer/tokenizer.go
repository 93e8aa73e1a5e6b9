// Package tokenizer provides deterministic token counting and a static
// per-model USD cost table. Budget math anywhere in the runtime must go
// through Count; the character-based Estimate helper exists only for
// display/logging contexts that are not enforcing a budget.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts tokens for a string using a deterministic subword encoder.
type Counter interface {
	Count(text string) int
}

// BPECounter wraps a cached tiktoken encoding. Construction is lazy and
// cached for process lifetime: the cl100k_base encoding table is loaded once
// behind a sync.Once and shared by every caller.
type BPECounter struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewBPECounter returns a Counter backed by the named tiktoken encoding.
// "cl100k_base" is the right default for modern chat-completion models; it
// is close enough across providers for budget-enforcement purposes, which
// only need a consistent, non-heuristic count.
func NewBPECounter(encoding string) *BPECounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &BPECounter{encoding: encoding}
}

func (c *BPECounter) load() {
	c.enc, c.err = tiktoken.GetEncoding(c.encoding)
}

// Count returns the exact subword token count for text. On the rare failure
// to load the encoding table (e.g. offline first run with no cached BPE
// ranks), it falls back to EstimateChars and the caller should treat the
// result as approximate; this fallback must never be reached in a budget
// enforcement path without a preceding warning log from the caller.
func (c *BPECounter) Count(text string) int {
	c.once.Do(c.load)
	if c.err != nil || c.enc == nil {
		return EstimateChars(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateChars is the explicitly-named character heuristic (~4 chars per
// token). It exists for display contexts only. Per SPEC_FULL.md §4.2 and the
// boundary-behavior tests in §8, this must never back budget enforcement.
func EstimateChars(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	est := n / 4
	if est == 0 {
		est = 1
	}
	return est
}
