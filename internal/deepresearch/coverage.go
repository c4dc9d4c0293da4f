package deepresearch

import "github.com/shadabshaukat/spaces-ai/internal/retrieval"

// coverageWeak reports |hits| < 4 OR |unique_docs| < 2.
func coverageWeak(hits []retrieval.Item) bool {
	if len(hits) < 4 {
		return true
	}
	docs := map[string]struct{}{}
	for _, h := range hits {
		docs[h.DocumentID] = struct{}{}
	}
	return len(docs) < 2
}
