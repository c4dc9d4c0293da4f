package deepresearch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
)

type fakeEngine struct {
	fail map[string]bool
}

func (f *fakeEngine) Hybrid(_ context.Context, q retrieval.Query) ([]retrieval.Item, error) {
	if f.fail[q.Text] {
		return nil, errors.New("boom")
	}
	return []retrieval.Item{{DocumentID: q.Text}}, nil
}

func TestFanoutHybridContinuesPastOneFailure(t *testing.T) {
	e := &fakeEngine{fail: map[string]bool{"b": true}}
	out := fanoutHybrid(context.Background(), e, []string{"a", "b", "c"}, retrieval.Query{})
	require.Len(t, out, 2)
}
