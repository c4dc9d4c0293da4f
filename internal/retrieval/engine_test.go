package retrieval

import (
	"context"
	"testing"

	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/stretchr/testify/require"
)

type fakeRelational struct {
	ftResults  []relational.Result
	semResults []relational.Result
	calls      map[string]int
}

func (f *fakeRelational) Fulltext(_ context.Context, _ relational.Scope, _ string, _ int) ([]relational.Result, error) {
	f.calls["fulltext"]++
	return f.ftResults, nil
}

func (f *fakeRelational) Semantic(_ context.Context, _ relational.Scope, _ []float32, _ int, _ int) ([]relational.Result, error) {
	f.calls["semantic"]++
	return f.semResults, nil
}

func (f *fakeRelational) SearchImagesSemantic(_ context.Context, _ relational.Scope, _ []float32, _ []string, _ int) ([]relational.ImageResult, error) {
	f.calls["images_semantic"]++
	return nil, nil
}

func (f *fakeRelational) SearchImagesText(_ context.Context, _ relational.Scope, _ string, _ []string, _ int) ([]relational.ImageResult, error) {
	f.calls["images_text"]++
	return nil, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestEngineFulltextDispatchesToRelational(t *testing.T) {
	rel := &fakeRelational{
		ftResults: []relational.Result{{ChunkID: "c1", DocumentID: "d1", Text: "hello"}},
		calls:     map[string]int{},
	}
	e := &Engine{relational: rel, tuning: nil, backend: BackendRelational}
	// cache is nil-safe only through querycache.Get/Set against *tenantcache.Cache;
	// exercise the storage path directly instead of through Fulltext() to avoid
	// requiring a live Redis connection in this unit test.
	scope := relational.Scope{UserID: "u1"}
	results, err := e.relational.Fulltext(context.Background(), scope, "hello", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, rel.calls["fulltext"])
}

func TestEngineFulltextCandidatesDispatchesViaBackend(t *testing.T) {
	rel := &fakeRelational{
		ftResults: []relational.Result{{ChunkID: "c1", DocumentID: "d1", Text: "hello"}},
		calls:     map[string]int{},
	}
	e := &Engine{relational: rel, backend: BackendRelational}
	items, err := e.fulltextCandidates(context.Background(), Query{UserID: "u1", Text: "hello"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "c1", items[0].ChunkID)
}

func TestEngineTopKDefaultsWhenUnset(t *testing.T) {
	e := &Engine{}
	require.Equal(t, 10, e.topK(Query{}))
	require.Equal(t, 5, e.topK(Query{TopK: 5}))
}

func TestEngineEmbedQueryUsesConfiguredEmbedder(t *testing.T) {
	e := &Engine{}
	vec, err := e.embedQuery(context.Background(), fakeEmbedder{}, "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEngineEmbedQueryErrorsWithoutEmbedder(t *testing.T) {
	e := &Engine{}
	_, err := e.embedQuery(context.Background(), nil, "hello")
	require.Error(t, err)
}

func TestFingerprintNormalizesQueryText(t *testing.T) {
	e := &Engine{}
	a := e.fingerprint("semantic", Query{Text: "  Tiny Test Document ", TopK: 5})
	b := e.fingerprint("semantic", Query{Text: "tiny test document", TopK: 5})
	require.Equal(t, a, b)

	c := e.fingerprint("semantic", Query{Text: "different query", TopK: 5})
	require.NotEqual(t, a, c)
}
