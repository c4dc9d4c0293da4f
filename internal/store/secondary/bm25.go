package secondary

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// bm25K1/bm25B are the classic Robertson/Sparck-Jones BM25 constants, the
// same defaults most full-text engines (including the original
// OpenSearch-backed implementation this was ported from) ship.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// bm25Scores ranks doc ids by BM25 relevance to queryTerms over the token
// sets in docs. This is an approximation: the idf/avgdl statistics are
// computed over the candidate pool returned by the payload text-match
// filter rather than the whole collection, since qdrant has no native
// BM25-ranking endpoint to compute them against the full corpus.
func bm25Scores(queryTerms []string, docs map[string][]string) map[string]float64 {
	n := len(docs)
	if n == 0 || len(queryTerms) == 0 {
		return nil
	}
	df := map[string]int{}
	var totalLen int
	for _, terms := range docs {
		totalLen += len(terms)
		seen := map[string]bool{}
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	avgLen := float64(totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}
	idf := map[string]float64{}
	for _, t := range queryTerms {
		if _, ok := idf[t]; ok {
			continue
		}
		d := float64(df[t])
		idf[t] = math.Log(1 + (float64(n)-d+0.5)/(d+0.5))
	}
	scores := make(map[string]float64, n)
	for id, terms := range docs {
		tf := map[string]int{}
		for _, t := range terms {
			tf[t]++
		}
		dl := float64(len(terms))
		var score float64
		for _, qt := range queryTerms {
			f := float64(tf[qt])
			if f == 0 {
				continue
			}
			num := f * (bm25K1 + 1)
			den := f + bm25K1*(1-bm25B+bm25B*dl/avgLen)
			score += idf[qt] * num / den
		}
		scores[id] = score
	}
	return scores
}

func rankByBM25(candidates []Hit, terms []string, k int) []Hit {
	docs := make(map[string][]string, len(candidates))
	for _, h := range candidates {
		docs[h.ID] = tokenize(h.Text)
	}
	return applyBM25Ranking(candidates, terms, docs, k)
}

func rankByBM25Captions(candidates []Hit, terms []string, k int) []Hit {
	docs := make(map[string][]string, len(candidates))
	for _, h := range candidates {
		docs[h.ID] = tokenize(h.Caption)
	}
	return applyBM25Ranking(candidates, terms, docs, k)
}

func applyBM25Ranking(candidates []Hit, terms []string, docs map[string][]string, k int) []Hit {
	scores := bm25Scores(terms, docs)
	out := make([]Hit, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score = scores[out[i].ID]
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
