package main

import (
	"context"
	"fmt"
	"io"

	"github.com/chainforge-ai/chainforge/internal/runresult"
	"github.com/chainforge-ai/chainforge/internal/session"
	"github.com/chainforge-ai/chainforge/internal/store"
	"github.com/chainforge-ai/chainforge/pkg/ux"
)

// cliSessionID resolves this process's session id via the CLI reuse rule:
// source=cli, keyed by PID, reused for 2 hours so a sequence of `chainforge
// ask`/`chainforge chain` invocations from the same shell shares memory.
func cliSessionID(ctx context.Context, a *app) (string, error) {
	return a.sessions.GetOrCreateCLISession(ctx, session.CurrentPID())
}

// printRunResult renders one agent invocation in the teacher's CLI style:
// a short header line followed by the response body, then a one-line
// accounting summary.
func printRunResult(w io.Writer, r runresult.RunResult) {
	header := fmt.Sprintf("=== %s (%s/%s) ===", r.Agent, r.Provider, r.Model)
	fmt.Fprintln(w, ux.Styles.AgentHeader.Render(header))
	if r.FallbackUsed {
		fmt.Fprintln(w, ux.Styles.Fallback.Render(fmt.Sprintf("[fallback used: %s]", r.FallbackReason)))
	}
	fmt.Fprintln(w, r.Response)
	summary := fmt.Sprintf("-- tokens=%d (prompt=%d, completion=%d) cost=$%.4f duration=%.0fms session=%s",
		r.TotalTokens, r.PromptTokens, r.CompletionTokens, r.EstimatedCostUSD, r.DurationMS, r.SessionID)
	fmt.Fprintln(w, ux.Styles.Accounting.Render(summary))
}

func printRunResults(w io.Writer, results []runresult.RunResult) {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printRunResult(w, r)
	}
}

// printConversationRecord renders one persisted record for `logs`, `last`,
// and `last-chain`.
func printConversationRecord(w io.Writer, r store.ConversationRecord) {
	header := fmt.Sprintf("#%d [%s] %s (%s/%s)", r.ID, r.Timestamp.Format("2006-01-02T15:04:05Z07:00"), r.Agent, r.Provider, r.Model)
	fmt.Fprintln(w, ux.Styles.AgentHeader.Render(header))
	fmt.Fprintln(w, r.Response)
	summary := fmt.Sprintf("-- tokens=%d cost=$%.4f duration=%.0fms", r.TotalTokens, r.EstimatedCostUSD, r.DurationMS)
	fmt.Fprintln(w, ux.Styles.Accounting.Render(summary))
}

func printConversationRecords(w io.Writer, recs []store.ConversationRecord) {
	for i, r := range recs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		printConversationRecord(w, r)
	}
}
