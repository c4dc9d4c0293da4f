package retrieval

import "sort"

// Item is one final retrieval hit, ranked and annotated with per-source
// diagnostics.
type Item struct {
	ChunkID     string
	DocumentID  string
	ChunkIndex  int
	Text        string
	Score       float64
	Explanation map[string]any
}

// fuseRRF combines fulltext and semantic candidate lists by Reciprocal Rank
// Fusion: score(id) = 1/(k+rank_ft) + 1/(k+rank_sem), summed unweighted
// across whichever lists contain the id, with k=60. Ties break on (score
// desc, chunk id asc) for determinism. When both lists carry the same
// chunk id, the semantic list's payload (text/document/chunk index) wins.
func fuseRRF(ft []Item, sem []Item, k int) []Item {
	if k <= 0 {
		k = 60
	}
	ftPos := make(map[string]int, len(ft))
	ftByID := make(map[string]Item, len(ft))
	for i, r := range ft {
		ftPos[r.ChunkID] = i + 1
		ftByID[r.ChunkID] = r
	}
	semPos := make(map[string]int, len(sem))
	semByID := make(map[string]Item, len(sem))
	for i, r := range sem {
		semPos[r.ChunkID] = i + 1
		semByID[r.ChunkID] = r
	}

	seen := map[string]struct{}{}
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, r := range ft {
		add(r.ChunkID)
	}
	for _, r := range sem {
		add(r.ChunkID)
	}

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		fr, vr := ftPos[id], semPos[id]
		var fContrib, vContrib float64
		if fr > 0 {
			fContrib = 1.0 / float64(k+fr)
		}
		if vr > 0 {
			vContrib = 1.0 / float64(k+vr)
		}
		fused := fContrib + vContrib

		var r Item
		if x, ok := semByID[id]; ok {
			r = x
		} else if x, ok := ftByID[id]; ok {
			r = x
		}
		out = append(out, Item{
			ChunkID:    id,
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			Text:       r.Text,
			Score:      fused,
			Explanation: map[string]any{
				"ft_rank": fr, "sem_rank": vr, "ft_rrf": fContrib, "sem_rrf": vContrib,
			},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
