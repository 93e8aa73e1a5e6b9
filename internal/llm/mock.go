package llm

import (
	"context"
	"fmt"
)

// MockProvider returns deterministic canned responses and is selected
// whenever config.Config.Mock is set (LLM_MOCK=1), per SPEC_FULL.md §6.
// It never fails, which makes it useful for exercising chain logic in tests
// without network access.
type MockProvider struct {
	name string
}

// NewMockProvider builds a mock adapter registered under name (so it can
// stand in for any configured provider id, e.g. "openai" or "anthropic").
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (p *MockProvider) Name() string { return p.name }

func (p *MockProvider) Complete(ctx context.Context, req Request) (Reply, error) {
	text := fmt.Sprintf("[mock:%s/%s] response to: %s", p.name, req.Model, truncate(req.User, 80))
	return Reply{
		Text:             text,
		PromptTokens:     len(req.System)/4 + len(req.User)/4 + 1,
		CompletionTokens: len(text)/4 + 1,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
