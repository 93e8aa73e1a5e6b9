package refine

import (
	"regexp"
	"strings"

	"github.com/chainforge-ai/chainforge/internal/config"
)

// IssueMatcher counts "issues" in a critic review per §4.10: a contiguous
// block containing a critical keyword (lowercased substring match) or
// matching one of the configured issue regex patterns. Compiling the
// regexes once at construction keeps CountIssues cheap across iterations.
type IssueMatcher struct {
	criticalKeywords []string
	patterns         []*regexp.Regexp
}

func NewIssueMatcher(cfg config.RefinementConfig) (*IssueMatcher, error) {
	m := &IssueMatcher{criticalKeywords: make([]string, len(cfg.CriticalKeywords))}
	for i, k := range cfg.CriticalKeywords {
		m.criticalKeywords[i] = strings.ToLower(k)
	}
	for _, p := range cfg.IssuePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// CountIssues splits review into contiguous blocks (separated by blank
// lines) and counts how many contain a critical keyword or match an issue
// pattern. Each matching block counts once, regardless of how many
// keywords/patterns match within it.
func (m *IssueMatcher) CountIssues(review string) int {
	blocks := splitBlocks(review)
	count := 0
	for _, b := range blocks {
		if m.blockIsIssue(b) {
			count++
		}
	}
	return count
}

// ExtractIssues returns only the blocks CountIssues would count, joined back
// with blank lines, matching original_source's _extract_critical_issues:
// the full review minus everything that isn't a flagged block.
func (m *IssueMatcher) ExtractIssues(review string) string {
	blocks := splitBlocks(review)
	issues := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if m.blockIsIssue(b) {
			issues = append(issues, b)
		}
	}
	return strings.Join(issues, "\n\n")
}

func (m *IssueMatcher) blockIsIssue(block string) bool {
	lower := strings.ToLower(block)
	for _, k := range m.criticalKeywords {
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	for _, re := range m.patterns {
		if re.MatchString(block) {
			return true
		}
	}
	return false
}

// splitBlocks breaks text on blank lines; a text with no blank lines is
// one block, and a text with no lines at all produces no blocks.
func splitBlocks(text string) []string {
	raw := strings.Split(text, "\n\n")
	blocks := make([]string, 0, len(raw))
	for _, b := range raw {
		if strings.TrimSpace(b) == "" {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}
