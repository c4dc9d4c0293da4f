package urlingest

import (
	"context"

	"github.com/shadabshaukat/spaces-ai/internal/embedder"
)

// Retriever answers external-corpus queries by embedding the question and
// delegating to the vector-ordered Store lookup.
type Retriever struct {
	store    *Store
	embedder embedder.Embedder
}

func NewRetriever(store *Store, emb embedder.Embedder) *Retriever {
	return &Retriever{store: store, embedder: emb}
}

// Ask embeds query and returns the top-K external chunks scoped to the
// caller's conversation (and space, when set), as envelopes.
func (r *Retriever) Ask(ctx context.Context, sc Scope, query string, topK int) ([]Envelope, error) {
	vecs, err := r.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	var vec []float32
	if len(vecs) > 0 {
		vec = vecs[0]
	}
	return r.store.Retrieve(ctx, sc, vec, topK)
}
