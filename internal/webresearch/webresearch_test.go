package webresearch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
	webtool "github.com/shadabshaukat/spaces-ai/internal/tools/web"
)

type fakeSearch struct {
	results []webtool.SearchResult
	err     error
}

func (f *fakeSearch) Search(context.Context, string, int) ([]webtool.SearchResult, error) {
	return f.results, f.err
}

func TestShouldConsiderWebEmptyHits(t *testing.T) {
	a := &Agent{}
	require.True(t, a.ShouldConsiderWeb(nil, false))
}

func TestShouldConsiderWebStrongLocalHits(t *testing.T) {
	hits := make([]retrieval.Item, 8)
	for i := range hits {
		hits[i] = retrieval.Item{DocumentID: string(rune('a' + i)), Score: 0.95}
	}
	a := &Agent{}
	require.False(t, a.ShouldConsiderWeb(hits, false))
}

func TestShouldConsiderWebForced(t *testing.T) {
	hits := make([]retrieval.Item, 8)
	for i := range hits {
		hits[i] = retrieval.Item{DocumentID: string(rune('a' + i)), Score: 0.99}
	}

	byConfig := &Agent{cfg: Config{ForceWeb: true}}
	require.True(t, byConfig.ShouldConsiderWeb(hits, false))

	perRequest := &Agent{}
	require.True(t, perRequest.ShouldConsiderWeb(hits, true))
}

func TestMaybeFetchWebSkipsWhenTimeExhausted(t *testing.T) {
	a := New(&fakeSearch{}, Config{})
	hits, attempted := a.MaybeFetchWeb(context.Background(), "q", 2*time.Second, false)
	require.Nil(t, hits)
	require.False(t, attempted)
}

func TestMaybeFetchWebSearchError(t *testing.T) {
	a := New(&fakeSearch{err: context.DeadlineExceeded}, Config{})
	hits, attempted := a.MaybeFetchWeb(context.Background(), "q", 10*time.Second, false)
	require.Nil(t, hits)
	require.True(t, attempted)
}

func TestMaybeFetchWebReturnsResults(t *testing.T) {
	a := New(&fakeSearch{results: []webtool.SearchResult{
		{Title: "T", URL: "http://u", Snippet: "S"},
	}}, Config{})
	hits, attempted := a.MaybeFetchWeb(context.Background(), "q", 10*time.Second, false)
	require.True(t, attempted)
	require.Len(t, hits, 1)
	require.Equal(t, Hit{Title: "T", URL: "http://u", Snippet: "S"}, hits[0])
}

func TestAggregateContexts(t *testing.T) {
	out := AggregateContexts("local context", []Hit{{Title: "T", URL: "http://x", Snippet: "s"}})
	require.Contains(t, out, "local context")
	require.Contains(t, out, "Web result: T")
	require.Contains(t, out, "http://x")
	require.Contains(t, out, "s")
}

func TestComputeConfidenceBounds(t *testing.T) {
	require.InDelta(t, 0.25, ComputeConfidence(nil, false), 0.001)
	require.LessOrEqual(t, ComputeConfidence(nil, false), 0.98)
	hits := make([]retrieval.Item, 8)
	for i := range hits {
		hits[i] = retrieval.Item{DocumentID: string(rune('a' + i))}
	}
	c := ComputeConfidence(hits, true)
	// 0.25+0.35+0.25+0.15 sums to 1.0, which the upper bound clamps to 0.98.
	require.InDelta(t, 0.98, c, 0.001)
}

func TestMaybeFetchWebPerRequestForceOverridesTimeGate(t *testing.T) {
	a := New(&fakeSearch{results: []webtool.SearchResult{
		{Title: "T", URL: "http://u", Snippet: "S"},
	}}, Config{})
	hits, attempted := a.MaybeFetchWeb(context.Background(), "q", 2*time.Second, true)
	require.True(t, attempted)
	require.Len(t, hits, 1)
}
