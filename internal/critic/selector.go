// Package critic implements dynamic Critic Selection (§4.8) and Consensus
// Merging (§4.9) over the configured critic roster.
package critic

import (
	"sort"
	"strings"

	"github.com/chainforge-ai/chainforge/internal/config"
	"github.com/chainforge-ai/chainforge/pkg/logging"
)

type scoredCritic struct {
	name  string
	score int
	order int
}

// Select implements §4.8: score every registered critic by case-insensitive
// substring keyword occurrence count against prompt+builderOutput, keep
// those with score > 0 ordered by score descending then configured order,
// extend with fallback_critics when under min_critics, and truncate to
// max_critics by score when over.
func Select(cfg config.CriticConfig, prompt, builderOutput string, log *logging.Logger) []string {
	if !cfg.DynamicSelection {
		names := make([]string, len(cfg.Critics))
		for i, c := range cfg.Critics {
			names[i] = c.Name
		}
		return names
	}

	haystack := strings.ToLower(prompt + " " + builderOutput)

	candidates := make([]scoredCritic, 0, len(cfg.Critics))
	for i, c := range cfg.Critics {
		score := scoreKeywords(haystack, c.Keywords)
		candidates = append(candidates, scoredCritic{name: c.Name, score: score, order: i})
	}

	var selected []scoredCritic
	for _, c := range candidates {
		if c.score > 0 {
			selected = append(selected, c)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].score != selected[j].score {
			return selected[i].score > selected[j].score
		}
		return selected[i].order < selected[j].order
	})

	if len(selected) < cfg.MinCritics {
		seen := make(map[string]bool, len(selected))
		for _, s := range selected {
			seen[s.name] = true
		}
		for _, fb := range cfg.FallbackCritics {
			if len(selected) >= cfg.MinCritics {
				break
			}
			if seen[fb] {
				continue
			}
			selected = append(selected, scoredCritic{name: fb, score: 0})
			seen[fb] = true
		}
	}

	if len(selected) > cfg.MaxCritics {
		selected = selected[:cfg.MaxCritics]
	}

	names := make([]string, len(selected))
	for i, s := range selected {
		names[i] = s.name
	}
	logSelection(log, candidates, selected)
	return names
}

func scoreKeywords(haystack string, keywords []string) int {
	total := 0
	for _, k := range keywords {
		k = strings.ToLower(k)
		if k == "" {
			continue
		}
		total += strings.Count(haystack, k)
	}
	return total
}

func logSelection(log *logging.Logger, all, selected []scoredCritic) {
	log.Info("critic selection", "selected", len(selected), "total_registered", len(all))
	selectedSet := make(map[string]int, len(selected))
	for _, s := range selected {
		selectedSet[s.name] = s.score
	}
	for _, c := range all {
		if score, ok := selectedSet[c.name]; ok {
			log.Info("critic candidate selected", "critic", c.name, "score", score)
		} else {
			log.Info("critic candidate skipped", "critic", c.name, "score", c.score)
		}
	}
}
