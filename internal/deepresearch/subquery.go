// Package deepresearch implements the Deep Research conversational
// orchestrator: a bounded turn pipeline of subquery splitting, hybrid
// retrieval fan-out, web-research fallback, LLM synthesis, recency-aware
// reference ranking, and follow-up suggestion, persisted via convstore.
package deepresearch

import (
	"regexp"
	"strings"
)

const subqueryShortThreshold = 80

var subquerySplitRe = regexp.MustCompile(`(?i)\b(and|or|,|;|\n)\b`)

// splitSubqueries plans retrieval fan-out: short questions are left
// whole; longer ones are split on conjunction/punctuation boundaries only
// when that produces between 2 and 6 parts, capped at 4.
func splitSubqueries(q string) []string {
	if len(q) < subqueryShortThreshold {
		return []string{q}
	}
	parts := subquerySplitRe.Split(q, -1)
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) < 2 || len(cleaned) > 6 {
		return []string{q}
	}
	if len(cleaned) > 4 {
		cleaned = cleaned[:4]
	}
	return cleaned
}
