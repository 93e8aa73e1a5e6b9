package chain

import (
	"context"
	"fmt"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/internal/runresult"
)

// Ask implements the single-agent §6 /ask operation: resolve the session,
// aggregate context for the named agent, call it once, persist the
// record, and return its RunResult. It runs no critics, refinement, or
// closer stage.
//
// agentName == "auto" is resolved to a concrete agent via route() before
// anything else, so the rest of Ask never needs to know routing happened.
func (e *Engine) Ask(ctx context.Context, agentName, prompt, callerSessionID, overrideModel string) (runresult.RunResult, error) {
	cfgSnapshot := e.config()

	if agentName == "auto" {
		agentName = e.route(ctx, cfgSnapshot, prompt)
	}

	agentCfg, ok := cfgSnapshot.Agents[agentName]
	if !ok {
		return runresult.RunResult{}, fmt.Errorf("%w: unknown agent %q", chainerr.ErrConfig, agentName)
	}

	sessionID, err := e.resolveSession(ctx, callerSessionID)
	if err != nil {
		return runresult.RunResult{}, err
	}

	system, tel := e.buildSystemPrompt(ctx, agentName, agentCfg, prompt, sessionID)

	result, err := e.run(ctx, agentCall{
		agentName:              agentName,
		agentCfg:               agentCfg,
		system:                 system,
		user:                   prompt,
		overrideModel:          overrideModel,
		sessionID:              sessionID,
		injectedContextTokens:  tel.TotalTokens,
		sessionContextTokens:   tel.SessionTokens,
		knowledgeContextTokens: tel.KnowledgeTokens,
	})
	if err != nil {
		return runresult.RunResult{}, err
	}
	return result, nil
}
