package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/observability"
	"github.com/chainforge-ai/chainforge/internal/providers"
	"github.com/chainforge-ai/chainforge/internal/tokenizer"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

// Connector walks a provider-fallback chain for one logical call, grounded
// on original_source/core/llm_connector.py's call()/_try_model().
type Connector struct {
	registry *providers.Registry
	adapters map[string]Provider
	costs    *tokenizer.CostTable
	retry    config.RetryConfig
	log      *logging.Logger
	metrics  *observability.Metrics
}

// New builds a Connector. adapters maps provider id (e.g. "openai") to its
// Provider implementation; an unregistered provider id is treated the same
// as a disabled one.
func New(registry *providers.Registry, adapters map[string]Provider, costs *tokenizer.CostTable, retry config.RetryConfig, log *logging.Logger) *Connector {
	return &Connector{registry: registry, adapters: adapters, costs: costs, retry: retry, log: log}
}

// WithMetrics attaches Prometheus metrics; nil disables recording (the
// zero-value Connector.metrics already makes every Record* call a no-op).
func (c *Connector) WithMetrics(metrics *observability.Metrics) *Connector {
	c.metrics = metrics
	return c
}

// Call implements call(model, system, user, temperature, max_tokens, retries)
// → Response from SPEC_FULL.md §4.1. candidates is [model] ++
// agent.fallback_models, or a single element when override_model suppresses
// fallback; the caller builds that list (the Connector has no knowledge of
// per-agent configuration).
func (c *Connector) Call(ctx context.Context, candidates []string, system, user string, temperature float64, maxTokens int) (Response, error) {
	if len(candidates) == 0 {
		return Response{}, chainerr.InvalidInputf("call requires at least one candidate model")
	}
	requested := candidates[0]
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, "internal/llm", "Connector.Call",
		trace.WithAttributes(attribute.String("requested_model", requested)))
	var callErr error
	defer func() { observability.EndWithError(span, callErr) }()

	var firstErrorReason string
	var lastErrorReason string
	var failures []chainerr.CandidateFailure

	for idx, candidate := range candidates {
		provider, name, ok := providers.Split(candidate)
		if !ok {
			reason := "invalid_model_ref"
			c.recordFailure(&failures, &firstErrorReason, &lastErrorReason, idx, candidate, reason)
			continue
		}

		status := c.registry.Status(provider)
		if !status.Available {
			c.recordFailure(&failures, &firstErrorReason, &lastErrorReason, idx, candidate, status.Reason)
			continue
		}

		adapter, ok := c.adapters[provider]
		if !ok {
			c.recordFailure(&failures, &firstErrorReason, &lastErrorReason, idx, candidate, string(ReasonProviderDisabled))
			continue
		}

		reply, err := c.callWithRetry(ctx, adapter, Request{
			Model:       name,
			System:      system,
			User:        user,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			reason := reasonFor(err)
			c.recordFailure(&failures, &firstErrorReason, &lastErrorReason, idx, candidate, reason)
			c.log.Warn("llm candidate failed", "candidate", candidate, "reason", reason)
			continue
		}

		total := reply.PromptTokens + reply.CompletionTokens
		cost, known := c.costs.EstimateCost(candidate, reply.PromptTokens, reply.CompletionTokens)
		if !known {
			c.log.Warn("no cost rate for model, defaulting to zero", "model", candidate)
		}

		resp := Response{
			Provider:         provider,
			ModelUsed:        candidate,
			RequestedModel:   requested,
			Text:             reply.Text,
			PromptTokens:     reply.PromptTokens,
			CompletionTokens: reply.CompletionTokens,
			TotalTokens:      total,
			Duration:         time.Since(start),
			Cost:             cost,
			CostKnown:        known,
			FallbackUsed:     candidate != requested,
		}
		if resp.FallbackUsed {
			resp.FallbackReason = firstErrorReason
		}

		outcome := "success"
		if resp.FallbackUsed {
			outcome = "fallback"
		}
		c.metrics.RecordLLMCall(resp.Provider, resp.ModelUsed, outcome, resp.Duration, resp.PromptTokens, resp.CompletionTokens)
		observability.SetAttributes(span, attribute.String("provider", resp.Provider), attribute.String("model_used", resp.ModelUsed), attribute.Bool("fallback_used", resp.FallbackUsed))
		return resp, nil
	}

	callErr = &chainerr.AllProvidersFailed{Model: requested, Reasons: failures}
	failedProvider, _, _ := providers.Split(requested)
	c.metrics.RecordLLMCall(failedProvider, requested, "error", time.Since(start), 0, 0)
	return Response{}, callErr
}

func (c *Connector) recordFailure(failures *[]chainerr.CandidateFailure, firstErrorReason, lastErrorReason *string, idx int, candidate, reason string) {
	*failures = append(*failures, chainerr.CandidateFailure{Model: candidate, Reason: reason})
	if idx == 0 {
		*firstErrorReason = reason
	}
	*lastErrorReason = reason
}

// callWithRetry retries only Transient errors, with exponential backoff
// capped at c.retry.MaxDelay. Classified (non-transient) errors and
// unclassified errors from an adapter both return immediately.
func (c *Connector) callWithRetry(ctx context.Context, adapter Provider, req Request) (Reply, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		reply, err := adapter.Complete(ctx, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !isTransient(err) {
			return Reply{}, err
		}
		if attempt == c.retry.MaxRetries {
			break
		}
		delay := backoff(c.retry.BaseDelay, c.retry.MaxDelay, attempt)
		select {
		case <-ctx.Done():
			return Reply{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return Reply{}, &ClassifiedError{Reason: ReasonTransientExhausted, Cause: lastErr}
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max {
		d = max
	}
	return d
}

func reasonFor(err error) string {
	if reason, ok := Classify(err); ok {
		return string(reason)
	}
	return fmt.Sprintf("error: %v", err)
}
