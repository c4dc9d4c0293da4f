package deepresearch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadabshaukat/spaces-ai/internal/llm"
	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
)

func TestSplitSubqueriesShort(t *testing.T) {
	require.Equal(t, []string{"short question"}, splitSubqueries("short question"))
}

func TestSplitSubqueriesLongSplits(t *testing.T) {
	q := "Tell me about the history of databases and how indexing works and why caching matters and what replication does " +
		"and how sharding helps scale systems"
	got := splitSubqueries(q)
	require.True(t, len(got) >= 2 && len(got) <= 4)
}

func TestSplitSubqueriesFallsBackWhenOutOfRange(t *testing.T) {
	q := "This is a genuinely long sentence with absolutely no conjunction words separating any of its clauses whatsoever here"
	got := splitSubqueries(q)
	require.Equal(t, []string{q}, got)
}

func TestCoverageWeakFewHits(t *testing.T) {
	require.True(t, coverageWeak([]retrieval.Item{{DocumentID: "a"}}))
}

func TestCoverageWeakFewDocs(t *testing.T) {
	hits := []retrieval.Item{{DocumentID: "a"}, {DocumentID: "a"}, {DocumentID: "a"}, {DocumentID: "a"}}
	require.True(t, coverageWeak(hits))
}

func TestCoverageStrong(t *testing.T) {
	hits := []retrieval.Item{{DocumentID: "a"}, {DocumentID: "b"}, {DocumentID: "a"}, {DocumentID: "c"}}
	require.False(t, coverageWeak(hits))
}

func TestRerankByRecencyBoostsNewer(t *testing.T) {
	now := time.Now().UTC()
	hits := []retrieval.Item{
		{DocumentID: "old", ChunkID: "c1", Score: 0.5},
		{DocumentID: "new", ChunkID: "c2", Score: 0.5},
	}
	createdAt := map[string]time.Time{
		"old": now.AddDate(0, 0, -365),
		"new": now,
	}
	refs := rerankByRecency(hits, createdAt, 0.2, 30, 10)
	require.Equal(t, "new", refs[0].DocumentID)
}

func TestRerankByRecencyCapsTopN(t *testing.T) {
	hits := make([]retrieval.Item, 5)
	for i := range hits {
		hits[i] = retrieval.Item{DocumentID: "d", Score: float64(i)}
	}
	refs := rerankByRecency(hits, nil, 0, 30, 2)
	require.Len(t, refs, 2)
}

func TestFilterFollowupsDropsIdenticalAndIrrelevant(t *testing.T) {
	question := "how does vector search work"
	conv := "we discussed vector search and embeddings"
	candidates := []string{
		"how does vector search work",
		"what is vector search and embeddings",
		"totally unrelated cooking recipe question",
	}
	got := filterFollowups(candidates, question, conv, 0.2)
	require.NotContains(t, got, "how does vector search work")
	require.Contains(t, got, "what is vector search and embeddings")
}

func TestJaccard(t *testing.T) {
	a := tokenize("hello world")
	b := tokenize("hello there")
	require.InDelta(t, 1.0/3.0, jaccard(a, b), 0.001)
}

func TestTrimMessagesKeepsSystemAndRecent(t *testing.T) {
	msgs := []llm.Message{{Role: "system", Content: "sys"}}
	for i := 0; i < 50; i++ {
		msgs = append(msgs, llm.Message{Role: "user", Content: "m"})
	}
	trimmed := trimMessages(msgs, 5)
	require.Equal(t, "system", trimmed[0].Role)
	require.LessOrEqual(t, len(trimmed), 41)
}

func TestRecentSnippetTruncates(t *testing.T) {
	msgs := []llm.Message{{Role: "user", Content: strings.Repeat("x", 2000)}}
	got := recentSnippet(msgs, 8, 1000)
	require.Len(t, got, 1000)
}
