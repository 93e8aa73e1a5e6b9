// Package refine implements the Refinement Controller (§4.10): a bounded
// builder<->critic iteration loop with explicit convergence detection,
// grounded on original_source/core/agent_runtime.py's refinement loop.
package refine

import (
	"context"
	"fmt"

	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/runresult"
)

// Outcome names the terminal convergence reason.
type Outcome string

const (
	OutcomeNotNeeded     Outcome = "not_needed" // S0 had zero issues; no iteration ran
	OutcomeSuccess       Outcome = "success"
	OutcomeNoProgress    Outcome = "no_progress"
	OutcomeMaxIterations Outcome = "max_iterations"
)

// Result is the refinement loop's outcome: the terminal state plus every
// intermediate builder-vN/critic-vN RunResult produced, in order.
type Result struct {
	Outcome    Outcome
	Iterations int
	Results    []runresult.RunResult
}

// BuilderFunc re-invokes the builder with a refinement prompt (original
// prompt + extracted critical issues + fix instruction already folded in
// by the caller) and returns its RunResult, renamed "builder-v{iteration+1}"
// by the controller (the initial builder call is v1).
type BuilderFunc func(ctx context.Context, refinementPrompt string, iteration int) (runresult.RunResult, error)

// CriticRoundFunc re-runs critic selection, execution, and consensus
// merging against the new builder output, returning the merged
// "multi-critic" RunResult (renamed "critic-v{iteration+1}" by the
// controller).
type CriticRoundFunc func(ctx context.Context, builderOutput string, iteration int) (runresult.RunResult, error)

// Run drives the state machine. prompt is the chain's original prompt;
// initialBuilder/initialConsensus are the builder-stage and first
// multi-critic RunResults already produced by the caller before
// refinement begins.
func Run(
	ctx context.Context,
	prompt string,
	initialBuilder, initialConsensus runresult.RunResult,
	cfg config.RefinementConfig,
	matcher *IssueMatcher,
	runBuilder BuilderFunc,
	runCriticRound CriticRoundFunc,
) (Result, error) {
	if !cfg.Enabled {
		return Result{Outcome: OutcomeNotNeeded}, nil
	}

	prevIssues := matcher.CountIssues(initialConsensus.Response)
	if prevIssues == 0 {
		return Result{Outcome: OutcomeNotNeeded}, nil
	}

	var collected []runresult.RunResult

	for n := 1; n <= cfg.MaxIterations; n++ {
		refinementPrompt := buildRefinementPrompt(prompt, matcher.ExtractIssues(initialConsensus.Response))

		builderResult, err := runBuilder(ctx, refinementPrompt, n)
		if err != nil {
			return Result{Outcome: OutcomeMaxIterations, Iterations: n - 1, Results: collected}, err
		}
		builderResult.Agent = fmt.Sprintf("builder-v%d", n+1)
		collected = append(collected, builderResult)

		consensus, err := runCriticRound(ctx, builderResult.Response, n)
		if err != nil {
			return Result{Outcome: OutcomeMaxIterations, Iterations: n, Results: collected}, err
		}
		consensus.Agent = fmt.Sprintf("critic-v%d", n+1)
		collected = append(collected, consensus)

		issuesN := matcher.CountIssues(consensus.Response)

		switch {
		case issuesN == 0:
			return Result{Outcome: OutcomeSuccess, Iterations: n, Results: collected}, nil
		case issuesN >= prevIssues:
			return Result{Outcome: OutcomeNoProgress, Iterations: n, Results: collected}, nil
		}

		prevIssues = issuesN
		initialConsensus = consensus
	}

	return Result{Outcome: OutcomeMaxIterations, Iterations: cfg.MaxIterations, Results: collected}, nil
}

func buildRefinementPrompt(originalPrompt, criticalIssues string) string {
	return fmt.Sprintf(
		"%s\n\nThe following issues were raised in review and must be fixed:\n%s\n\nRevise your previous response to address every issue above.",
		originalPrompt, criticalIssues,
	)
}
