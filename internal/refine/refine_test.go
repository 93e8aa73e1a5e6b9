package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/runresult"
)

func testCfg() config.RefinementConfig {
	return config.RefinementConfig{
		Enabled:          true,
		MaxIterations:    3,
		CriticalKeywords: []string{"security risk", "broken"},
		IssuePatterns:    []string{`(?i)TODO:\s*fix`},
	}
}

func TestCountIssues_MatchesKeywordsAndPatterns(t *testing.T) {
	m, err := NewIssueMatcher(testCfg())
	if err != nil {
		t.Fatalf("NewIssueMatcher: %v", err)
	}
	review := "Looks good overall.\n\nThere is a security risk in the auth path.\n\nTODO: fix the retry loop."
	if got := m.CountIssues(review); got != 2 {
		t.Fatalf("CountIssues = %d, want 2", got)
	}
}

func TestCountIssues_NoMatches(t *testing.T) {
	m, err := NewIssueMatcher(testCfg())
	if err != nil {
		t.Fatalf("NewIssueMatcher: %v", err)
	}
	if got := m.CountIssues("Everything looks great, ship it."); got != 0 {
		t.Fatalf("CountIssues = %d, want 0", got)
	}
}

func TestExtractIssues_ReturnsOnlyFlaggedBlocks(t *testing.T) {
	m, err := NewIssueMatcher(testCfg())
	if err != nil {
		t.Fatalf("NewIssueMatcher: %v", err)
	}
	review := "Looks good overall.\n\nThere is a security risk in the auth path.\n\nTODO: fix the retry loop."
	want := "There is a security risk in the auth path.\n\nTODO: fix the retry loop."
	if got := m.ExtractIssues(review); got != want {
		t.Fatalf("ExtractIssues = %q, want %q", got, want)
	}
}

func TestExtractIssues_NoMatchesReturnsEmpty(t *testing.T) {
	m, _ := NewIssueMatcher(testCfg())
	if got := m.ExtractIssues("Everything looks great, ship it."); got != "" {
		t.Fatalf("ExtractIssues = %q, want empty string", got)
	}
}

func TestRun_PassesExtractedIssuesNotFullReview(t *testing.T) {
	m, err := NewIssueMatcher(testCfg())
	if err != nil {
		t.Fatalf("NewIssueMatcher: %v", err)
	}
	review := "Looks good overall.\n\nThere is a security risk in the auth path."
	var gotPrompt string
	_, err = Run(context.Background(), "prompt",
		runresult.RunResult{Agent: "builder"},
		runresult.RunResult{Agent: "multi-critic", Response: review},
		testCfg(), m,
		func(ctx context.Context, p string, n int) (runresult.RunResult, error) {
			gotPrompt = p
			return runresult.RunResult{Response: "fixed version"}, nil
		},
		func(ctx context.Context, b string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{Response: "looks good now, no issues"}, nil
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(gotPrompt, "Looks good overall") {
		t.Fatalf("refinement prompt leaked non-issue commentary: %q", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "security risk in the auth path") {
		t.Fatalf("refinement prompt missing extracted issue: %q", gotPrompt)
	}
}

func TestRun_NotNeededWhenNoInitialIssues(t *testing.T) {
	m, _ := NewIssueMatcher(testCfg())
	result, err := Run(context.Background(), "prompt",
		runresult.RunResult{Agent: "builder"},
		runresult.RunResult{Agent: "multi-critic", Response: "all clear, no problems"},
		testCfg(), m,
		func(ctx context.Context, p string, n int) (runresult.RunResult, error) { t.Fatal("should not be called"); return runresult.RunResult{}, nil },
		func(ctx context.Context, b string, n int) (runresult.RunResult, error) { t.Fatal("should not be called"); return runresult.RunResult{}, nil },
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeNotNeeded {
		t.Fatalf("Outcome = %q", result.Outcome)
	}
}

func TestRun_ConvergesSuccess(t *testing.T) {
	m, _ := NewIssueMatcher(testCfg())
	result, err := Run(context.Background(), "prompt",
		runresult.RunResult{Agent: "builder"},
		runresult.RunResult{Agent: "multi-critic", Response: "there is a security risk here"},
		testCfg(), m,
		func(ctx context.Context, p string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{Response: "fixed version"}, nil
		},
		func(ctx context.Context, b string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{Response: "looks good now, no issues"}, nil
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %q", result.Outcome)
	}
	if result.Iterations != 1 {
		t.Fatalf("Iterations = %d, want 1", result.Iterations)
	}
	if len(result.Results) != 2 {
		t.Fatalf("Results = %d entries, want 2 (builder-v2, critic-v2)", len(result.Results))
	}
	if result.Results[0].Agent != "builder-v2" || result.Results[1].Agent != "critic-v2" {
		t.Fatalf("unexpected agent labels: %q, %q", result.Results[0].Agent, result.Results[1].Agent)
	}
}

func TestRun_NoProgressStopsEarly(t *testing.T) {
	cfg := testCfg()
	cfg.MaxIterations = 5
	m, _ := NewIssueMatcher(cfg)
	result, err := Run(context.Background(), "prompt",
		runresult.RunResult{Agent: "builder"},
		runresult.RunResult{Agent: "multi-critic", Response: "there is a security risk here"},
		cfg, m,
		func(ctx context.Context, p string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{Response: "attempted fix"}, nil
		},
		func(ctx context.Context, b string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{Response: "still a security risk here"}, nil
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeNoProgress {
		t.Fatalf("Outcome = %q", result.Outcome)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected to stop after the first non-improving iteration, got %d", result.Iterations)
	}
}

func TestRun_MaxIterationsExhausted(t *testing.T) {
	cfg := testCfg()
	cfg.MaxIterations = 2
	cfg.CriticalKeywords = []string{"alpha", "beta", "gamma"}
	m, _ := NewIssueMatcher(cfg)

	// Issue count strictly decreases each round (3 -> 2 -> 1) but never
	// reaches zero within max_iterations, so the loop must exhaust.
	responses := []string{
		"alpha issue\n\nbeta issue",
		"alpha issue",
	}
	call := 0
	result, err := Run(context.Background(), "prompt",
		runresult.RunResult{Agent: "builder"},
		runresult.RunResult{Agent: "multi-critic", Response: "alpha issue\n\nbeta issue\n\ngamma issue"},
		cfg, m,
		func(ctx context.Context, p string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{Response: "attempted fix"}, nil
		},
		func(ctx context.Context, b string, n int) (runresult.RunResult, error) {
			resp := responses[call]
			call++
			return runresult.RunResult{Response: resp}, nil
		},
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeMaxIterations {
		t.Fatalf("Outcome = %q", result.Outcome)
	}
	if result.Iterations != cfg.MaxIterations {
		t.Fatalf("Iterations = %d, want %d", result.Iterations, cfg.MaxIterations)
	}
	if call != cfg.MaxIterations {
		t.Fatalf("critic round called %d times, want %d", call, cfg.MaxIterations)
	}
}

func TestRun_PropagatesCriticRoundError(t *testing.T) {
	m, _ := NewIssueMatcher(testCfg())
	boom := errors.New("all critics failed")
	_, err := Run(context.Background(), "prompt",
		runresult.RunResult{Agent: "builder"},
		runresult.RunResult{Agent: "multi-critic", Response: "there is a security risk here"},
		testCfg(), m,
		func(ctx context.Context, p string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{Response: "fixed"}, nil
		},
		func(ctx context.Context, b string, n int) (runresult.RunResult, error) {
			return runresult.RunResult{}, boom
		},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated critic-round error, got %v", err)
	}
}
