package deepresearch

import (
	"regexp"
	"sort"
	"strings"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize lowercases s, replaces runs of non-alphanumeric characters with a
// single space, and returns tokens longer than one character.
func tokenize(s string) map[string]struct{} {
	s = nonAlnumRe.ReplaceAllString(strings.ToLower(s), " ")
	set := map[string]struct{}{}
	for _, tok := range strings.Fields(s) {
		if len(tok) > 1 {
			set[tok] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func normalizeFollowup(s string) string {
	toks := tokenize(s)
	keys := make([]string, 0, len(toks))
	for t := range toks {
		keys = append(keys, t)
	}
	sort.Strings(keys)
	return strings.Join(keys, " ")
}

// filterFollowups keeps candidates whose Jaccard similarity to either the
// current question or the conversation snippet reaches relevanceMin,
// deduplicating by normalized form and dropping anything identical to the
// question itself.
func filterFollowups(candidates []string, question, convSnippet string, relevanceMin float64) []string {
	qTokens := tokenize(question)
	convTokens := tokenize(convSnippet)
	qNorm := normalizeFollowup(question)

	seen := map[string]struct{}{}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		norm := normalizeFollowup(c)
		if norm == qNorm {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		cTokens := tokenize(c)
		simQ := jaccard(cTokens, qTokens)
		simConv := jaccard(cTokens, convTokens)
		if simQ < relevanceMin && simConv < relevanceMin {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, c)
	}
	return out
}
