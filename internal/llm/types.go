// Package llm implements the provider-fallback LLM Connector: a single
// call(model, system, user, temperature, max_tokens, retries) entry point
// that walks an ordered candidate list across providers, retries transient
// failures, and reports AllProvidersFailed with per-candidate reasons when
// every candidate is exhausted.
package llm

import (
	"context"
	"time"
)

// Request is one call into a provider adapter.
type Request struct {
	Model       string // bare model name, provider already stripped
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Reply is a successful provider response, prior to cost/fallback bookkeeping.
type Reply struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Provider is the adapter contract every backend (OpenAI, Anthropic, Mock)
// implements. A Provider has no knowledge of fallback chains or other
// providers; the Connector owns that logic.
type Provider interface {
	// Name is the provider id used in "provider/model" refs, e.g. "openai".
	Name() string
	// Complete issues one completion call. It returns a FailureReason-typed
	// error (see errors.go) for conditions the Connector can classify and
	// continue past, or a *Transient error, which the Connector retries
	// before skipping the candidate; any other error is treated as an
	// unclassified failure and the candidate is skipped without a retry.
	Complete(ctx context.Context, req Request) (Reply, error)
}

// Response is what the Connector returns on success.
type Response struct {
	Provider         string
	ModelUsed        string
	RequestedModel   string
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Duration         time.Duration
	Cost             float64
	CostKnown        bool
	FallbackUsed     bool
	FallbackReason   string // reason the primary (first-requested) candidate failed; empty if it succeeded
}
