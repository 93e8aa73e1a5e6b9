// Package chain implements the Chain Runtime (§4.11): the orchestrator
// that resolves a session, runs the builder stage, fans out to critics,
// merges consensus, drives bounded refinement, and composes the closer
// stage, producing the ordered RunResult list every other component feeds
// into.
package chain

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/internal/compress"
	"github.com/chainforge-ai/chainforge/internal/config"
	chaincontext "github.com/chainforge-ai/chainforge/internal/context"
	"github.com/chainforge-ai/chainforge/internal/embedding"
	"github.com/chainforge-ai/chainforge/internal/llm"
	"github.com/chainforge-ai/chainforge/internal/observability"
	"github.com/chainforge-ai/chainforge/internal/runresult"
	"github.com/chainforge-ai/chainforge/internal/session"
	"github.com/chainforge-ai/chainforge/internal/store"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

// Engine is the process-lifetime orchestrator. One Engine is constructed in
// main and shared across every HTTP/CLI request; it holds no per-request
// mutable state.
//
// cfg is held behind an atomic.Pointer rather than as a plain field so
// config.Watcher (§4.12's optional --watch-config hot reload) can swap in a
// revalidated Config between requests without a lock: every accessor below
// goes through config(), never a cached copy, so a reload is visible to the
// very next agentConfig/critic.Select/refine.NewIssueMatcher call.
type Engine struct {
	cfg           atomic.Pointer[config.Config]
	connector     *llm.Connector
	aggregator    *chaincontext.Aggregator
	compressor    *compress.Compressor
	sessions      *session.Manager
	conversations *store.ConversationStore
	embeddings    embedding.Engine
	log           *logging.Logger
	metrics       *observability.Metrics
}

func New(
	cfg *config.Config,
	connector *llm.Connector,
	aggregator *chaincontext.Aggregator,
	compressor *compress.Compressor,
	sessions *session.Manager,
	conversations *store.ConversationStore,
	embeddings embedding.Engine,
	log *logging.Logger,
) *Engine {
	e := &Engine{
		connector: connector, aggregator: aggregator, compressor: compressor,
		sessions: sessions, conversations: conversations, embeddings: embeddings, log: log,
	}
	e.cfg.Store(cfg)
	return e
}

// config returns the currently active configuration snapshot.
func (e *Engine) config() *config.Config {
	return e.cfg.Load()
}

// UpdateConfig atomically swaps the active configuration, used by
// config.Watcher's reload loop. Model wiring (the LLM Connector, provider
// adapters, store and session manager) is constructed once in wireApp and
// is not affected by a reload — only the fields reachable through
// config() (agent prompts/temperature/critic weights/refinement tuning)
// take effect, and only starting with the next request.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
}

// WithMetrics attaches Prometheus metrics to the Engine's own chain-level
// instruments; nil disables recording.
func (e *Engine) WithMetrics(metrics *observability.Metrics) *Engine {
	e.metrics = metrics
	return e
}

// resolveSession validates a caller-supplied session id, or generates one
// when callerID is empty, via the Session Manager.
func (e *Engine) resolveSession(ctx context.Context, callerID string) (string, error) {
	return e.sessions.ResolveAPISession(ctx, callerID)
}

// candidatesFor builds the provider-fallback candidate list for one call:
// overrideModel (when set) suppresses fallback_models entirely, matching
// the original's single-candidate-list behavior for caller-pinned models.
func candidatesFor(agentCfg config.AgentConfig, overrideModel string) []string {
	if overrideModel != "" {
		return []string{overrideModel}
	}
	return append([]string{agentCfg.Model}, agentCfg.FallbackModels...)
}

// agentCall is one resolved LLM invocation plus the bookkeeping needed to
// persist it as a ConversationRecord.
type agentCall struct {
	agentName              string
	agentCfg               config.AgentConfig
	system, user           string
	overrideModel          string
	sessionID              string
	injectedContextTokens  int
	sessionContextTokens   int
	knowledgeContextTokens int
}

// run issues one LLM call and persists the resulting ConversationRecord
// best-effort (a persistence failure is logged, not propagated — the
// in-memory RunResult is still returned to the caller for chain purposes).
func (e *Engine) run(ctx context.Context, call agentCall) (runresult.RunResult, error) {
	ctx, span := observability.StartSpan(ctx, "internal/chain", "Engine.run",
		trace.WithAttributes(attribute.String("agent", call.agentName)))
	var err error
	defer func() { observability.EndWithError(span, err) }()

	candidates := candidatesFor(call.agentCfg, call.overrideModel)
	var resp llm.Response
	resp, err = e.connector.Call(ctx, candidates, call.system, call.user, call.agentCfg.Temperature, call.agentCfg.MaxTokens)
	if err != nil {
		return runresult.RunResult{}, err
	}

	result := runresult.RunResult{
		Agent:                  call.agentName,
		Model:                  resp.ModelUsed,
		Provider:               resp.Provider,
		Response:               resp.Text,
		PromptTokens:           resp.PromptTokens,
		CompletionTokens:       resp.CompletionTokens,
		TotalTokens:            resp.TotalTokens,
		DurationMS:             float64(resp.Duration.Milliseconds()),
		EstimatedCostUSD:       resp.Cost,
		FallbackUsed:           resp.FallbackUsed,
		FallbackReason:         resp.FallbackReason,
		InjectedContextTokens:  call.injectedContextTokens,
		SessionContextTokens:   call.sessionContextTokens,
		KnowledgeContextTokens: call.knowledgeContextTokens,
		SessionID:              call.sessionID,
	}

	e.persist(ctx, call, result)
	return result, nil
}

func (e *Engine) persist(ctx context.Context, call agentCall, result runresult.RunResult) {
	var blob []byte
	if e.embeddings != nil {
		if vec, err := e.embeddings.Embed(ctx, call.user+" "+result.Response); err == nil && len(vec) > 0 {
			blob = embedding.Serialize(vec)
		}
	}

	var sessionID *string
	if call.sessionID != "" {
		id := call.sessionID
		sessionID = &id
	}

	_, err := e.conversations.InsertConversation(ctx, store.ConversationRecord{
		Agent:            result.Agent,
		Model:            result.Model,
		Provider:         result.Provider,
		Prompt:           call.user,
		Response:         result.Response,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		DurationMS:       result.DurationMS,
		EstimatedCostUSD: result.EstimatedCostUSD,
		FallbackUsed:     result.FallbackUsed,
		SessionID:        sessionID,
		Embedding:        blob,
	})
	if err != nil {
		e.log.Warn("failed to persist conversation record", "agent", result.Agent, "error", err)
	}

	if call.sessionID != "" {
		if err := e.sessions.RecordConversationLanded(ctx, call.sessionID); err != nil {
			e.log.Warn("failed to record session activity", "session_id", call.sessionID, "error", err)
		}
	}
}

// buildSystemPrompt prepends the aggregated context block (best-effort) to
// an agent's configured system prompt, per §4.11 step 2's "memory is
// best-effort" error behavior.
func (e *Engine) buildSystemPrompt(ctx context.Context, agentName string, agentCfg config.AgentConfig, prompt, sessionID string) (string, chaincontext.Telemetry) {
	if !agentCfg.MemoryEnabled {
		return agentCfg.SystemPrompt, chaincontext.Telemetry{}
	}

	block, tel, err := e.aggregator.Build(ctx, prompt, sessionID, agentName, agentCfg.Memory)
	if err != nil {
		e.log.Warn("context aggregation failed, continuing with empty context", "agent", agentName, "error", err)
		return agentCfg.SystemPrompt, chaincontext.Telemetry{}
	}
	if block == "" {
		return agentCfg.SystemPrompt, tel
	}
	return fmt.Sprintf("%s\n\n%s", agentCfg.SystemPrompt, block), tel
}

// compressionClass picks the §4.7 threshold class for an agent.
func compressionClass(agentCfg config.AgentConfig, isCloser bool) compress.AgentClass {
	switch {
	case isCloser:
		return compress.ClassCloser
	case agentCfg.MemoryEnabled:
		return compress.ClassMemoryEnabled
	default:
		return compress.ClassStandard
	}
}

// route resolves the special agent name "auto" to a concrete, registered
// agent via a dedicated "router" agent, mirroring
// original_source/core/agent_runtime.py's route(): a single low-token-budget
// call whose response text, lowercased and trimmed, must name a registered
// agent. Every failure mode — no router agent configured, the call errors,
// or the response names something unrecognized — defaults to "builder"
// rather than surfacing an error, since routing is a convenience on top of
// /ask, not a required step.
func (e *Engine) route(ctx context.Context, cfg *config.Config, prompt string) string {
	routerCfg, ok := cfg.Agents["router"]
	if !ok {
		return "builder"
	}

	resp, err := e.connector.Call(ctx, candidatesFor(routerCfg, ""), routerCfg.SystemPrompt, prompt, routerCfg.Temperature, routerCfg.MaxTokens)
	if err != nil {
		e.log.Warn("auto-routing call failed, defaulting to builder", "error", err)
		return "builder"
	}

	agent := strings.ToLower(strings.TrimSpace(resp.Text))
	if agent == "router" {
		return "builder"
	}
	if _, ok := cfg.Agents[agent]; !ok {
		return "builder"
	}
	return agent
}

func (e *Engine) agentConfig(name string) (config.AgentConfig, error) {
	agentCfg, ok := e.config().Agents[name]
	if !ok {
		return config.AgentConfig{}, fmt.Errorf("%w: unknown agent %q", chainerr.ErrConfig, name)
	}
	return agentCfg, nil
}
