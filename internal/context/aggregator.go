// Package context implements the dual-context Context Aggregator: a
// recency-ordered session slice merged with a semantically ranked
// cross-session knowledge slice, under a shared token budget, grounded on
// original_source/core/context_aggregator.py.
package context

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/embedding"
	"github.com/chainforge-ai/chainforge/internal/store"
	"github.com/chainforge-ai/chainforge/internal/tokenizer"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

const knowledgeCandidatePoolSize = 50
const knowledgeResponseTruncateChars = 300

// Telemetry reports the token/message accounting for one aggregation call.
type Telemetry struct {
	SessionTokens     int
	KnowledgeTokens   int
	TotalTokens       int
	SessionMessages   int
	KnowledgeMessages int
}

// Aggregator builds the formatted context block injected into an agent's
// prompt.
type Aggregator struct {
	conversations *store.ConversationStore
	engine        embedding.Engine
	counter       tokenizer.Counter
	log           *logging.Logger
}

func New(conversations *store.ConversationStore, engine embedding.Engine, counter tokenizer.Counter, log *logging.Logger) *Aggregator {
	return &Aggregator{conversations: conversations, engine: engine, counter: counter, log: log}
}

// Build implements §4.6. currentAgent is used only when cfg.KnowledgeScope
// is same_agent.
func (a *Aggregator) Build(ctx context.Context, prompt, sessionID, currentAgent string, cfg config.MemoryConfig) (string, Telemetry, error) {
	budget := cfg.MaxContextTokens
	if budget <= 0 {
		return "", Telemetry{}, nil
	}

	var sessionLines []string
	var tel Telemetry

	if sessionID != "" && cfg.Enabled {
		lines, tokens, count, err := a.buildSessionSlice(ctx, sessionID, cfg, budget)
		if err != nil {
			return "", Telemetry{}, err
		}
		sessionLines = lines
		tel.SessionTokens = tokens
		tel.SessionMessages = count
	}

	remaining := budget - tel.SessionTokens
	var knowledgeLines []string
	if cfg.Enabled && remaining > 0 {
		lines, tokens, count, err := a.buildKnowledgeSlice(ctx, prompt, sessionID, currentAgent, cfg, remaining)
		if err != nil {
			return "", Telemetry{}, err
		}
		knowledgeLines = lines
		tel.KnowledgeTokens = tokens
		tel.KnowledgeMessages = count
	}

	tel.TotalTokens = tel.SessionTokens + tel.KnowledgeTokens

	if len(sessionLines) == 0 && len(knowledgeLines) == 0 {
		return "", Telemetry{}, nil
	}

	var sb strings.Builder
	if len(sessionLines) > 0 {
		sb.WriteString("## Session context\n")
		for _, l := range sessionLines {
			sb.WriteString(l)
			sb.WriteString("\n")
		}
	}
	if len(knowledgeLines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## Knowledge context\n")
		for _, l := range knowledgeLines {
			sb.WriteString(l)
			sb.WriteString("\n")
		}
	}
	return sb.String(), tel, nil
}

// buildSessionSlice fetches up to session_limit conversations and trims
// from the front (oldest first) until the slice fits floor(0.75*budget).
func (a *Aggregator) buildSessionSlice(ctx context.Context, sessionID string, cfg config.MemoryConfig, budget int) ([]string, int, int, error) {
	recs, err := a.conversations.GetRecentBySession(ctx, sessionID, cfg.SessionLimit)
	if err != nil {
		return nil, 0, 0, err
	}

	sessionBudget := int(math.Floor(0.75 * float64(budget)))

	type turn struct {
		line   string
		tokens int
	}
	turns := make([]turn, 0, len(recs))
	total := 0
	for _, r := range recs {
		line := formatSessionTurn(r)
		n := a.counter.Count(line)
		turns = append(turns, turn{line: line, tokens: n})
		total += n
	}

	for total > sessionBudget && len(turns) > 0 {
		total -= turns[0].tokens
		turns = turns[1:]
	}

	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = t.line
	}
	return lines, total, len(lines), nil
}

func formatSessionTurn(r store.ConversationRecord) string {
	return fmt.Sprintf("[%s] %s: %s -> %s", r.Timestamp.Format(time.RFC3339), r.Agent, r.Prompt, r.Response)
}

type scoredCandidate struct {
	rec   store.ConversationRecord
	score float64
	line  string
	tokens int
}

// buildKnowledgeSlice scores up to knowledgeCandidatePoolSize candidates,
// filters by min_relevance, sorts by score descending (tie-break: more
// recent, then higher id), and greedily appends formatted entries while
// they fit the remaining budget.
func (a *Aggregator) buildKnowledgeSlice(ctx context.Context, prompt, sessionID, currentAgent string, cfg config.MemoryConfig, remaining int) ([]string, int, int, error) {
	agentFilter := ""
	if cfg.KnowledgeScope == config.ScopeSameAgent {
		agentFilter = currentAgent
	}

	candidates, err := a.conversations.QueryCandidates(ctx, agentFilter, sessionID, knowledgeCandidatePoolSize)
	if err != nil {
		return nil, 0, 0, err
	}

	var promptEmbedding []float32
	if cfg.Strategy == config.StrategySemantic || cfg.Strategy == config.StrategyHybrid {
		promptEmbedding, err = a.engine.Embed(ctx, prompt)
		if err != nil {
			a.log.Warn("failed to embed prompt for knowledge scoring", "error", err)
			promptEmbedding = embedding.NoEmbedding
		}
	}

	promptKeywords := extractKeywords(prompt)

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		score, err := a.scoreCandidate(ctx, c, promptEmbedding, promptKeywords, cfg)
		if err != nil {
			a.log.Warn("failed to score knowledge candidate", "id", c.ID, "error", err)
			continue
		}
		truncated := c
		truncated.Response = truncateChars(c.Response, knowledgeResponseTruncateChars)
		line := formatKnowledgeTurn(truncated, score)
		scored = append(scored, scoredCandidate{rec: truncated, score: score, line: line, tokens: a.counter.Count(line)})
	}

	filtered := scored[:0]
	for _, s := range scored {
		if s.score >= cfg.MinRelevance {
			filtered = append(filtered, s)
		}
	}

	if len(filtered) == 0 && len(scored) > 0 {
		best := mostRecent(scored)
		best.score = 0 // sentinel score, logged below
		a.log.Warn("no knowledge candidate cleared min_relevance, falling back to most recent", "candidate_id", best.rec.ID)
		filtered = []scoredCandidate{best}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].score != filtered[j].score {
			return filtered[i].score > filtered[j].score
		}
		if !filtered[i].rec.Timestamp.Equal(filtered[j].rec.Timestamp) {
			return filtered[i].rec.Timestamp.After(filtered[j].rec.Timestamp)
		}
		return filtered[i].rec.ID > filtered[j].rec.ID
	})

	var lines []string
	total := 0
	for _, s := range filtered {
		if total+s.tokens > remaining {
			continue
		}
		lines = append(lines, s.line)
		total += s.tokens
	}

	return lines, total, len(lines), nil
}

func mostRecent(scored []scoredCandidate) scoredCandidate {
	best := scored[0]
	for _, s := range scored[1:] {
		if s.rec.Timestamp.After(best.rec.Timestamp) {
			best = s
		}
	}
	return best
}

func (a *Aggregator) scoreCandidate(ctx context.Context, c store.ConversationRecord, promptEmbedding []float32, promptKeywords map[string]bool, cfg config.MemoryConfig) (float64, error) {
	ageHours := time.Since(c.Timestamp).Hours()
	decay := math.Exp(-ageHours / cfg.TimeDecayHours)

	switch cfg.Strategy {
	case config.StrategySemantic:
		sim, err := a.semanticScore(ctx, c, promptEmbedding)
		if err != nil {
			return 0, err
		}
		return sim * decay, nil
	case config.StrategyHybrid:
		sim, err := a.semanticScore(ctx, c, promptEmbedding)
		if err != nil {
			return 0, err
		}
		kw := keywordScore(promptKeywords, c.Prompt)
		return (0.7*sim + 0.3*kw) * decay, nil
	default: // keywords
		return keywordScore(promptKeywords, c.Prompt) * decay, nil
	}
}

func (a *Aggregator) semanticScore(ctx context.Context, c store.ConversationRecord, promptEmbedding []float32) (float64, error) {
	if len(promptEmbedding) == 0 {
		return 0, nil
	}

	vec := c.Embedding
	var candidateEmbedding []float32
	if len(vec) > 0 {
		v, err := embedding.Deserialize(vec)
		if err == nil {
			candidateEmbedding = v
		}
	}
	if candidateEmbedding == nil {
		v, err := a.engine.Embed(ctx, c.Prompt+" "+c.Response)
		if err != nil {
			return 0, nil
		}
		candidateEmbedding = v
		if len(v) > 0 {
			if err := a.conversations.UpdateEmbedding(ctx, c.ID, embedding.Serialize(v)); err != nil {
				a.log.Warn("failed to persist backfilled embedding", "id", c.ID, "error", err)
			}
		}
	}

	return embedding.CosineSimilarity(promptEmbedding, candidateEmbedding)
}

func keywordScore(promptKeywords map[string]bool, candidateText string) float64 {
	if len(promptKeywords) == 0 {
		return 0
	}
	candidateKeywords := extractKeywords(candidateText)
	overlap := 0
	for k := range promptKeywords {
		if candidateKeywords[k] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(promptKeywords))
}

func extractKeywords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = true
	}
	return out
}

func truncateChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func formatKnowledgeTurn(r store.ConversationRecord, score float64) string {
	return fmt.Sprintf("[relevance %.2f, %s] %s: %s -> %s", score, r.Timestamp.Format(time.RFC3339), r.Agent, r.Prompt, r.Response)
}
