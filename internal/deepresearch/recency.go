package deepresearch

import (
	"math"
	"sort"
	"time"

	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
)

// Reference is one ranked retrieval hit attached to a Deep Research answer.
type Reference struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float64
}

// rerankByRecency reorders candidate references: base score is
// -distance (hits already carry a similarity score, so -(-score)=score is
// used directly as the base when present, falling back to inverse rank),
// boosted by an exponential recency factor, then stable-sorted descending
// and capped at topN.
func rerankByRecency(hits []retrieval.Item, createdAt map[string]time.Time, recencyBoost, halfLifeDays float64, topN int) []Reference {
	if halfLifeDays <= 0 {
		halfLifeDays = 30
	}
	now := time.Now().UTC()
	refs := make([]Reference, len(hits))
	for i, h := range hits {
		base := h.Score
		if base == 0 {
			base = 1.0 / float64(i+1)
		}
		recency := 0.0
		if ts, ok := createdAt[h.DocumentID]; ok && !ts.IsZero() {
			ageSeconds := now.Sub(ts).Seconds()
			if ageSeconds < 0 {
				ageSeconds = 0
			}
			recency = math.Exp(-math.Ln2 * ageSeconds / (halfLifeDays * 86400))
		}
		refs[i] = Reference{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Text:       h.Text,
			Score:      base + recencyBoost*recency,
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Score > refs[j].Score })
	if topN > 0 && len(refs) > topN {
		refs = refs[:topN]
	}
	return refs
}
