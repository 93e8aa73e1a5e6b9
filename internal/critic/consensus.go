package critic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/internal/runresult"
)

// priorityThreshold is the weight at and above which a critic's section is
// labeled as priority, per §4.9 step 2.
const priorityThreshold = 1.5

// CriticOutcome pairs one critic's RunResult (nil on failure) with its
// configured weight.
type CriticOutcome struct {
	Name   string
	Weight float64
	Result *runresult.RunResult
	Err    error
}

// Merge implements §4.9: compose a single textual review ordered by weight
// descending then critic name, label priority sections, append a summary
// line, and produce a synthetic "multi-critic" RunResult. Failed critics
// are dropped from the consensus; if every critic failed, it returns
// chainerr.ErrAllCriticsFailed.
func Merge(outcomes []CriticOutcome, sessionID string) (runresult.RunResult, error) {
	succeeded := make([]CriticOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil && o.Result != nil {
			succeeded = append(succeeded, o)
		}
	}
	if len(succeeded) == 0 {
		return runresult.RunResult{}, chainerr.ErrAllCriticsFailed
	}

	sort.SliceStable(succeeded, func(i, j int) bool {
		if succeeded[i].Weight != succeeded[j].Weight {
			return succeeded[i].Weight > succeeded[j].Weight
		}
		return succeeded[i].Name < succeeded[j].Name
	})

	var sb strings.Builder
	var totalPrompt, totalCompletion, totalTokens int
	var totalCost float64
	for _, o := range succeeded {
		label := o.Name
		if o.Weight >= priorityThreshold {
			label = fmt.Sprintf("[priority] %s", o.Name)
		}
		fmt.Fprintf(&sb, "### %s (weight %.2f)\n%s\n\n", label, o.Weight, o.Result.Response)

		totalPrompt += o.Result.PromptTokens
		totalCompletion += o.Result.CompletionTokens
		totalTokens += o.Result.TotalTokens
		totalCost += o.Result.EstimatedCostUSD
	}

	avgTokens := 0
	if len(succeeded) > 0 {
		avgTokens = totalTokens / len(succeeded)
	}
	fmt.Fprintf(&sb, "Summary: %d critics, %d tokens/critic average", len(succeeded), avgTokens)

	return runresult.RunResult{
		Agent:            "multi-critic",
		Response:         sb.String(),
		PromptTokens:     totalPrompt,
		CompletionTokens: totalCompletion,
		TotalTokens:      totalTokens,
		EstimatedCostUSD: totalCost,
		SessionID:        sessionID,
	}, nil
}

// IsPriority reports whether weight clears the priority-label threshold,
// exposed for callers that want to mirror the same rule elsewhere. The
// refinement controller does not use it: its issue extraction is unweighted.
func IsPriority(weight float64) bool {
	return weight >= priorityThreshold
}

// WeightFor looks up a critic's configured weight, defaulting to 1.0 when
// unregistered (should not happen once startup validation has run).
func WeightFor(cfg config.CriticConfig, name string) float64 {
	for _, c := range cfg.Critics {
		if c.Name == name {
			return c.Weight
		}
	}
	return 1.0
}
