// Package compress implements the Semantic Compressor: structured JSON
// summarization of a prior stage's output before it is carried forward as
// context, with a sentence-aware truncation fallback, grounded on
// original_source/core/agent_runtime.py's compression call path.
package compress

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/llm"
	"github.com/chainforge-ai/chainforge/internal/tokenizer"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

// Summary is the structured compression result. Field names AND shapes are
// a wire contract: key_decisions/trade_offs/open_questions are lists,
// rationale/technical_specs are string->string mappings, and the
// compression model's JSON reply is decoded by these keys, so neither the
// names nor the shapes may change. Downstream stages embed the String()
// rendering, not the raw keys.
type Summary struct {
	KeyDecisions   []string          `json:"key_decisions"`
	Rationale      map[string]string `json:"rationale"`
	TradeOffs      []string          `json:"trade_offs"`
	OpenQuestions  []string          `json:"open_questions"`
	TechnicalSpecs map[string]string `json:"technical_specs"`
}

// String renders a Summary as the labeled block downstream stages embed in
// their prompts.
func (s Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Key decisions: %s\n", joinOrNone(s.KeyDecisions))
	fmt.Fprintf(&sb, "Rationale: %s\n", mapOrNone(s.Rationale))
	fmt.Fprintf(&sb, "Trade-offs: %s\n", joinOrNone(s.TradeOffs))
	fmt.Fprintf(&sb, "Open questions: %s\n", joinOrNone(s.OpenQuestions))
	fmt.Fprintf(&sb, "Technical specs: %s", mapOrNone(s.TechnicalSpecs))
	return sb.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}

func mapOrNone(m map[string]string) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, m[k])
	}
	return strings.Join(parts, "; ")
}

// Compressor decides whether a stage output needs compression and produces
// either a structured Summary or a truncated-text fallback.
type Compressor struct {
	connector *llm.Connector
	counter   tokenizer.Counter
	cfg       config.CompressionConfig
	log       *logging.Logger
}

func New(connector *llm.Connector, counter tokenizer.Counter, cfg config.CompressionConfig, log *logging.Logger) *Compressor {
	return &Compressor{connector: connector, counter: counter, cfg: cfg, log: log}
}

// AgentClass selects which §4.7 threshold applies.
type AgentClass int

const (
	ClassStandard AgentClass = iota
	ClassMemoryEnabled
	ClassCloser
)

func (c *Compressor) threshold(class AgentClass) int {
	switch class {
	case ClassMemoryEnabled:
		return c.cfg.Thresholds.MemoryEnabled
	case ClassCloser:
		return c.cfg.Thresholds.Closer
	default:
		return c.cfg.Thresholds.Standard
	}
}

// ShouldCompress reports whether text's character length clears the
// threshold for class.
func (c *Compressor) ShouldCompress(text string, class AgentClass) bool {
	return len(text) >= c.threshold(class)
}

// Compress runs the structured-JSON compression prompt and falls back to
// sentence-aware truncation on any failure (non-JSON response, empty
// response, or an LLM error). It never returns an error: a compression
// failure degrades to a fallback, it does not fail the calling stage.
func (c *Compressor) Compress(ctx context.Context, text string, class AgentClass) string {
	if !c.ShouldCompress(text, class) {
		return text
	}

	summary, err := c.compressStructured(ctx, text)
	if err != nil {
		c.log.Warn("structured compression failed, falling back to truncation", "error", err)
		return truncateToSentences(text, c.counter, c.cfg.TargetTokens)
	}
	return summary.String()
}

func (c *Compressor) compressStructured(ctx context.Context, text string) (Summary, error) {
	system := "You compress technical discussion into a compact structured summary. " +
		"Respond with ONLY a JSON object with exactly these fields: " +
		"key_decisions (list of short strings), trade_offs (list of short strings), " +
		"open_questions (list of short strings), rationale (object mapping a decision to its reasoning), " +
		"technical_specs (object mapping a spec name to its value). Use an empty list or object when a field has nothing to report."
	user := fmt.Sprintf("Summarize the following for downstream use:\n\n%s", text)

	candidates := []string{c.cfg.Model}
	resp, err := c.connector.Call(ctx, candidates, system, user, 0.1, c.cfg.TargetTokens)
	if err != nil {
		return Summary{}, err
	}

	body := extractJSONObject(resp.Text)
	if body == "" {
		return Summary{}, fmt.Errorf("compress: response did not contain a JSON object")
	}

	var s Summary
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return Summary{}, fmt.Errorf("compress: invalid JSON: %w", err)
	}
	return s, nil
}

// extractJSONObject returns the first top-level {...} substring in s, or ""
// if none is found. Models often wrap JSON in prose or code fences.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// truncateToSentences keeps whole sentences from the start until the
// remainder fits in targetTokens, per §4.7 step 4.
func truncateToSentences(text string, counter tokenizer.Counter, targetTokens int) string {
	sentences := splitSentences(text)
	var kept strings.Builder
	for _, sent := range sentences {
		candidate := kept.String() + sent
		if kept.Len() > 0 && counter.Count(candidate) > targetTokens {
			break
		}
		kept.WriteString(sent)
	}
	out := strings.TrimSpace(kept.String())
	if out == "" {
		// Not even one sentence fits; truncate the raw text as a last resort.
		return firstNTokensApprox(text, targetTokens)
	}
	return out
}

// splitSentences breaks text on '.', '!', '?' followed by whitespace,
// keeping the terminator attached to its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n') {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func firstNTokensApprox(text string, targetTokens int) string {
	// ~4 characters per token is the same heuristic tokenizer.EstimateChars
	// documents as a last resort; it is acceptable here because this is
	// already the fallback-of-a-fallback path, not budget enforcement.
	limit := targetTokens * 4
	if limit <= 0 || limit >= len(text) {
		return text
	}
	return text[:limit]
}
