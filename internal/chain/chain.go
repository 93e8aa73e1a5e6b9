package chain

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/internal/compress"
	chaincontext "github.com/chainforge-ai/chainforge/internal/context"
	"github.com/chainforge-ai/chainforge/internal/critic"
	"github.com/chainforge-ai/chainforge/internal/observability"
	"github.com/chainforge-ai/chainforge/internal/refine"
	"github.com/chainforge-ai/chainforge/internal/runresult"
)

const (
	builderAgentName = "builder"
	closerAgentName  = "closer"
)

// Chain implements §4.11: builder -> critics -> consensus -> bounded
// refinement -> closer, returning the ordered RunResult list.
func (e *Engine) Chain(ctx context.Context, prompt, callerSessionID, overrideModel string) (results []runresult.RunResult, err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "internal/chain", "Engine.Chain")
	defer func() {
		observability.EndWithError(span, err)
		e.metrics.RecordChain(err == nil, time.Since(start))
	}()

	sessionID, err := e.resolveSession(ctx, callerSessionID)
	if err != nil {
		return nil, err
	}

	builderCfg, err := e.agentConfig(builderAgentName)
	if err != nil {
		return nil, &chainerr.StageFailed{Stage: "builder", Cause: err}
	}

	builderSystem, tel := e.buildSystemPrompt(ctx, builderAgentName, builderCfg, prompt, sessionID)
	builderResult, err := e.run(ctx, agentCall{
		agentName:              builderAgentName,
		agentCfg:               builderCfg,
		system:                 builderSystem,
		user:                   prompt,
		overrideModel:          overrideModel,
		sessionID:              sessionID,
		injectedContextTokens:  tel.TotalTokens,
		sessionContextTokens:   tel.SessionTokens,
		knowledgeContextTokens: tel.KnowledgeTokens,
	})
	if err != nil {
		return nil, &chainerr.StageFailed{Stage: "builder", Cause: err}
	}

	results = []runresult.RunResult{builderResult}

	// Snapshot the critics/refinement tuning once per call: a concurrent
	// config.Watcher reload must not let one Chain() invocation observe two
	// different refinement policies mid-flight.
	cfgSnapshot := e.config()

	initialNames := critic.Select(cfgSnapshot.Critics, prompt, builderResult.Response, e.log)
	consensus, err := e.runCritics(ctx, prompt, builderResult.Response, sessionID, initialNames)
	if err != nil {
		return results, &chainerr.StageFailed{Stage: "critics", Cause: err}
	}
	results = append(results, consensus)

	matcher, err := refine.NewIssueMatcher(cfgSnapshot.Refinement)
	if err != nil {
		return results, &chainerr.StageFailed{Stage: "refinement", Cause: err}
	}

	refineResult, err := refine.Run(ctx, prompt, builderResult, consensus, cfgSnapshot.Refinement, matcher,
		func(ctx context.Context, refinementPrompt string, n int) (runresult.RunResult, error) {
			return e.runBuilder(ctx, refinementPrompt, builderSystem, tel, sessionID, overrideModel)
		},
		func(ctx context.Context, builderOutput string, n int) (runresult.RunResult, error) {
			names := initialNames
			if cfgSnapshot.Refinement.ReselectCritics {
				names = critic.Select(cfgSnapshot.Critics, prompt, builderOutput, e.log)
			}
			return e.runCritics(ctx, prompt, builderOutput, sessionID, names)
		},
	)
	results = append(results, refineResult.Results...)
	if err != nil {
		return results, &chainerr.StageFailed{Stage: "refinement", Cause: err}
	}

	finalConsensus := consensus
	finalBuilder := builderResult
	if len(refineResult.Results) > 0 {
		// refine.Run appends builder-vN then critic-vN pairs; the last pair
		// is the most recent state the closer should summarize from.
		finalConsensus = refineResult.Results[len(refineResult.Results)-1]
		finalBuilder = refineResult.Results[len(refineResult.Results)-2]
	}

	closerResult, err := e.runCloser(ctx, prompt, sessionID, overrideModel, finalBuilder, finalConsensus)
	if err != nil {
		return results, &chainerr.StageFailed{Stage: "closer", Cause: err}
	}
	results = append(results, closerResult)

	return results, nil
}

// runBuilder re-invokes the builder agent during refinement with the same
// context block computed for the initial call (context is not
// re-aggregated per iteration: the knowledge relevant to the original
// prompt does not change within one chain call).
func (e *Engine) runBuilder(ctx context.Context, refinementPrompt, system string, tel chaincontext.Telemetry, sessionID, overrideModel string) (runresult.RunResult, error) {
	builderCfg, err := e.agentConfig(builderAgentName)
	if err != nil {
		return runresult.RunResult{}, err
	}
	return e.run(ctx, agentCall{
		agentName:              builderAgentName,
		agentCfg:               builderCfg,
		system:                 system,
		user:                   refinementPrompt,
		overrideModel:          overrideModel,
		sessionID:              sessionID,
		injectedContextTokens:  tel.TotalTokens,
		sessionContextTokens:   tel.SessionTokens,
		knowledgeContextTokens: tel.KnowledgeTokens,
	})
}

// runCritics compresses the builder output, runs the given critic names in
// parallel via errgroup, and merges their outcomes into a consensus
// RunResult. Selection itself is the caller's responsibility, so that
// refinement.reselect_critics can pin the initial selection across
// iterations instead of re-selecting every round.
func (e *Engine) runCritics(ctx context.Context, originalPrompt, builderOutput, sessionID string, names []string) (runresult.RunResult, error) {
	builderCfg, err := e.agentConfig(builderAgentName)
	if err != nil {
		return runresult.RunResult{}, err
	}
	compressedBuilderOutput := e.compressor.Compress(ctx, builderOutput, compressionClass(builderCfg, false))
	criticInput := fmt.Sprintf("%s\n\n%s", originalPrompt, compressedBuilderOutput)

	if len(names) == 0 {
		return runresult.RunResult{}, chainerr.ErrAllCriticsFailed
	}

	// Each goroutine below writes only its own index i, so outcomes needs no
	// mutex: concurrent writes to distinct slice elements are safe.
	outcomes := make([]critic.CriticOutcome, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			weight := critic.WeightFor(e.config().Critics, name)
			criticCfg, err := e.agentConfig(name)
			if err != nil {
				outcomes[i] = critic.CriticOutcome{Name: name, Weight: weight, Err: err}
				return nil
			}
			result, err := e.run(gCtx, agentCall{
				agentName: name,
				agentCfg:  criticCfg,
				system:    criticCfg.SystemPrompt,
				user:      criticInput,
				sessionID: sessionID,
			})
			if err != nil {
				outcomes[i] = critic.CriticOutcome{Name: name, Weight: weight, Err: err}
			} else {
				outcomes[i] = critic.CriticOutcome{Name: name, Weight: weight, Result: &result}
			}
			return nil // critic failures are non-fatal to the group; Merge drops them
		})
	}
	_ = g.Wait()

	return critic.Merge(outcomes, sessionID)
}

// runCloser compresses every preserved stage and composes the closer's
// input from the labeled summaries.
func (e *Engine) runCloser(ctx context.Context, originalPrompt, sessionID, overrideModel string, finalBuilder, finalConsensus runresult.RunResult) (runresult.RunResult, error) {
	closerCfg, err := e.agentConfig(closerAgentName)
	if err != nil {
		return runresult.RunResult{}, err
	}

	builderSummary := e.compressor.Compress(ctx, finalBuilder.Response, compress.ClassCloser)
	criticSummary := e.compressor.Compress(ctx, finalConsensus.Response, compress.ClassCloser)

	closerInput := fmt.Sprintf(
		"Original request:\n%s\n\nBuilder summary:\n%s\n\nCritic summary:\n%s\n\nProduce the final response.",
		originalPrompt, builderSummary, criticSummary,
	)

	return e.run(ctx, agentCall{
		agentName:     closerAgentName,
		agentCfg:      closerCfg,
		system:        closerCfg.SystemPrompt,
		user:          closerInput,
		overrideModel: overrideModel,
		sessionID:     sessionID,
	})
}
