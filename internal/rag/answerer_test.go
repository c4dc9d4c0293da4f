package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/shadabshaukat/spaces-ai/internal/llm"
	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
	"github.com/stretchr/testify/require"
)

type fakeRetriever struct {
	hits []retrieval.Item
}

func (f *fakeRetriever) Semantic(context.Context, retrieval.Query) ([]retrieval.Item, error) { return f.hits, nil }
func (f *fakeRetriever) Fulltext(context.Context, retrieval.Query) ([]retrieval.Item, error) { return f.hits, nil }
func (f *fakeRetriever) Hybrid(context.Context, retrieval.Query) ([]retrieval.Item, error)   { return f.hits, nil }

type fakeCache struct{ data map[string]string }

func (f *fakeCache) Get(_ context.Context, scope, fp string, out any) bool {
	v, ok := f.data[scope+fp]
	if !ok {
		return false
	}
	if o, ok := out.(*cachedAnswer); ok {
		o.Text = v
	}
	return true
}
func (f *fakeCache) Set(_ context.Context, scope, fp string, val any) {
	if f.data == nil {
		f.data = map[string]string{}
	}
	if v, ok := val.(cachedAnswer); ok {
		f.data[scope+fp] = v.Text
	}
}

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Chat(context.Context, []llm.Message, string) (llm.Message, error) {
	if f.err != nil {
		return llm.Message{}, f.err
	}
	return llm.Message{Role: "assistant", Content: f.response}, nil
}

func TestAnswerDegradesOnNilProvider(t *testing.T) {
	hits := []retrieval.Item{{DocumentID: "d1", ChunkIndex: 0, Text: "hello world"}}
	a := New(&fakeRetriever{hits: hits}, &fakeCache{}, nil)
	ans, err := a.Ask(context.Background(), "what?", retrieval.Query{}, ModeHybrid, "scope1", "")
	require.NoError(t, err)
	require.False(t, ans.UsedLLM)
	require.Equal(t, "hello world", ans.Text)
}

func TestAnswerUsesLLMAndCaches(t *testing.T) {
	hits := []retrieval.Item{{DocumentID: "d1", ChunkIndex: 0, Text: "hello world"}}
	cache := &fakeCache{}
	a := New(&fakeRetriever{hits: hits}, cache, &fakeProvider{response: "the answer"})
	ans, err := a.Ask(context.Background(), "what?", retrieval.Query{}, ModeHybrid, "scope1", "")
	require.NoError(t, err)
	require.True(t, ans.UsedLLM)
	require.Equal(t, "the answer", ans.Text)

	// second call should hit the cache without needing the provider again
	a2 := New(&fakeRetriever{hits: hits}, cache, nil)
	ans2, err := a2.Ask(context.Background(), "what?", retrieval.Query{}, ModeHybrid, "scope1", "")
	require.NoError(t, err)
	require.True(t, ans2.UsedLLM)
	require.Equal(t, "the answer", ans2.Text)
}

type fakeSelector struct {
	byName map[string]*fakeProvider
}

func (f *fakeSelector) Provider(name string) (llm.Provider, error) {
	p, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

func TestAnswerHonorsPerRequestProvider(t *testing.T) {
	hits := []retrieval.Item{{DocumentID: "d1", ChunkIndex: 0, Text: "hello world"}}
	sel := &fakeSelector{byName: map[string]*fakeProvider{
		"anthropic": {response: "from anthropic"},
	}}
	a := New(&fakeRetriever{hits: hits}, &fakeCache{}, &fakeProvider{response: "from default"}).
		WithProviderSelector(sel)

	ans, err := a.Ask(context.Background(), "what?", retrieval.Query{}, ModeHybrid, "s1", "anthropic")
	require.NoError(t, err)
	require.Equal(t, "from anthropic", ans.Text)

	ans, err = a.Ask(context.Background(), "what?", retrieval.Query{}, ModeHybrid, "s2", "")
	require.NoError(t, err)
	require.Equal(t, "from default", ans.Text)

	// Unknown names fall back to the default rather than failing the turn.
	ans, err = a.Ask(context.Background(), "what?", retrieval.Query{}, ModeHybrid, "s3", "mystery")
	require.NoError(t, err)
	require.Equal(t, "from default", ans.Text)
}
