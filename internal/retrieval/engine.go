// Package retrieval implements the hybrid (semantic + fulltext + image)
// retrieval engine: query planning, per-tenant result caching, dual-backend
// candidate fetch, and Reciprocal Rank Fusion.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/querycache"
	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/shadabshaukat/spaces-ai/internal/store/secondary"
	"github.com/shadabshaukat/spaces-ai/internal/tenantcache"
	"github.com/shadabshaukat/spaces-ai/internal/tuning"
)

// Backend selects which store answers candidate queries.
type Backend string

const (
	BackendRelational Backend = "relational"
	BackendSecondary  Backend = "secondary"
)

// revision kinds bumped by mutating writes and read back for cache scoping.
const (
	revKindText  = "text"
	revKindImage = "image"
)

// Embedder converts query text to a vector; satisfied by internal/embedder.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RelationalStore is the subset of *relational.Store the engine needs;
// narrowed to an interface so tests can substitute an in-memory fake.
type RelationalStore interface {
	Fulltext(ctx context.Context, scope relational.Scope, query string, k int) ([]relational.Result, error)
	Semantic(ctx context.Context, scope relational.Scope, queryVec []float32, k int, probes int) ([]relational.Result, error)
	SearchImagesSemantic(ctx context.Context, scope relational.Scope, queryVec []float32, tags []string, k int) ([]relational.ImageResult, error)
	SearchImagesText(ctx context.Context, scope relational.Scope, query string, tags []string, k int) ([]relational.ImageResult, error)
}

// SecondaryIndex is the subset of the chunks *secondary.Index the engine
// needs for text retrieval.
type SecondaryIndex interface {
	Search(ctx context.Context, vector []float32, userID, spaceID string, k int, recency *secondary.RecencyOptions) ([]secondary.Hit, error)
	SearchText(ctx context.Context, query, userID, spaceID string, k int) ([]secondary.Hit, error)
}

// SecondaryImageIndex is the subset of the images *secondary.Index the
// engine needs for cross-modal image retrieval.
type SecondaryImageIndex interface {
	Search(ctx context.Context, vector []float32, userID, spaceID string, k int, recency *secondary.RecencyOptions) ([]secondary.Hit, error)
	SearchImageText(ctx context.Context, query, userID, spaceID string, k int) ([]secondary.Hit, error)
}

// Engine answers semantic/fulltext/hybrid/image queries, checking the
// tenant cache before dispatching to storage.
type Engine struct {
	relational        RelationalStore
	secondary         SecondaryIndex
	secondaryImages   SecondaryImageIndex
	cache             *tenantcache.Cache
	tuning            *tuning.Tuning
	embedder          Embedder
	imageEmbedder     Embedder
	backend           Backend
	imageVectorWeight float64
	imageTextWeight   float64
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithBackend(b Backend) Option { return func(e *Engine) { e.backend = b } }

// WithImageEmbedder sets the cross-modal text embedder used to derive a
// vector from query text for text-to-image search.
func WithImageEmbedder(emb Embedder) Option { return func(e *Engine) { e.imageEmbedder = emb } }

// WithSecondaryImages sets the images collection's secondary index.
func WithSecondaryImages(idx SecondaryImageIndex) Option {
	return func(e *Engine) { e.secondaryImages = idx }
}

// WithImageWeights sets the additive function-score weights combining the
// KNN and caption-text legs of secondary-backend image search.
func WithImageWeights(vector, text float64) Option {
	return func(e *Engine) { e.imageVectorWeight, e.imageTextWeight = vector, text }
}

// New constructs an Engine. secondary may be nil when backend is
// relational-only.
func New(rel RelationalStore, sec SecondaryIndex, cache *tenantcache.Cache, tn *tuning.Tuning, emb Embedder, opts ...Option) *Engine {
	e := &Engine{
		relational:        rel,
		secondary:         sec,
		cache:             cache,
		tuning:            tn,
		embedder:          emb,
		backend:           BackendRelational,
		imageVectorWeight: 0.7,
		imageTextWeight:   0.3,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Query is the normalized request shared by all retrieval modes.
type Query struct {
	UserID  string
	SpaceID string
	Text    string
	TopK    int
}

func (q Query) scope() relational.Scope { return relational.Scope{UserID: q.UserID, SpaceID: q.SpaceID} }

func (e *Engine) topK(q Query) int {
	if q.TopK > 0 {
		return q.TopK
	}
	if e.tuning != nil {
		return int(e.tuning.DefaultTopK())
	}
	return 10
}

// fingerprint normalizes the query text (lowercased, whitespace-trimmed)
// so trivially different spellings of the same query share a cache entry.
func (e *Engine) fingerprint(mode string, q Query) string {
	return querycache.Fingerprint(mode, map[string]string{
		"q": strings.ToLower(strings.TrimSpace(q.Text)),
		"k": fmt.Sprintf("%d", e.topK(q)),
	})
}

// cacheScope builds the tenant cache scope for the given revision kind
// ("text" or "image"), so text and image queries invalidate independently
// of one another.
func (e *Engine) cacheScope(ctx context.Context, kind string, q Query) string {
	rev, _ := e.cache.GetRevision(ctx, kind, q.UserID, q.SpaceID)
	return tenantcache.Scope(q.UserID, q.SpaceID, rev)
}

// fulltextCandidates runs the lexical leg through whichever backend is
// configured: the relational tsvector query, or the secondary index's BM25
// fallback over its payload text-match filter.
func (e *Engine) fulltextCandidates(ctx context.Context, q Query) ([]Item, error) {
	switch e.backend {
	case BackendSecondary:
		if e.secondary == nil {
			return nil, apperr.New("retrieval.fulltextCandidates", apperr.Unavailable, fmt.Errorf("secondary backend not configured"))
		}
		hits, err := e.secondary.SearchText(ctx, q.Text, q.UserID, q.SpaceID, e.topK(q))
		if err != nil {
			return nil, err
		}
		return fromSecondaryHits(hits), nil
	default:
		results, err := e.relational.Fulltext(ctx, q.scope(), q.Text, e.topK(q))
		if err != nil {
			return nil, err
		}
		return toItems(results), nil
	}
}

// semanticCandidates runs the vector leg through whichever backend is
// configured, given an already-embedded query vector.
func (e *Engine) semanticCandidates(ctx context.Context, q Query, vec []float32) ([]Item, error) {
	switch e.backend {
	case BackendSecondary:
		if e.secondary == nil {
			return nil, apperr.New("retrieval.semanticCandidates", apperr.Unavailable, fmt.Errorf("secondary backend not configured"))
		}
		hits, err := e.secondary.Search(ctx, vec, q.UserID, q.SpaceID, e.topK(q), nil)
		if err != nil {
			log.Warn().Err(err).Msg("retrieval_secondary_vector_search_failed_falling_back_to_bm25")
			hits, err = e.secondary.SearchText(ctx, q.Text, q.UserID, q.SpaceID, e.topK(q))
		}
		if err != nil {
			return nil, err
		}
		return fromSecondaryHits(hits), nil
	default:
		var probes int
		if e.tuning != nil {
			probes = int(e.tuning.ANNProbes())
		}
		results, err := e.relational.Semantic(ctx, q.scope(), vec, e.topK(q), probes)
		if err != nil {
			return nil, err
		}
		return toItems(results), nil
	}
}

// Fulltext runs a lexical-only query against the configured backend.
func (e *Engine) Fulltext(ctx context.Context, q Query) ([]Item, error) {
	scope := e.cacheScope(ctx, revKindText, q)
	fp := e.fingerprint("fulltext", q)
	var cached []Item
	if querycache.Get(ctx, e.cache, querycache.KindResult, scope, fp, &cached) {
		return cached, nil
	}
	items, err := e.fulltextCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	querycache.Set(ctx, e.cache, querycache.KindResult, scope, fp, items)
	return items, nil
}

// Semantic runs an ANN-only query against the configured backend.
func (e *Engine) Semantic(ctx context.Context, q Query) ([]Item, error) {
	scope := e.cacheScope(ctx, revKindText, q)
	fp := e.fingerprint("semantic", q)
	var cached []Item
	if querycache.Get(ctx, e.cache, querycache.KindResult, scope, fp, &cached) {
		return cached, nil
	}
	vec, err := e.embedQuery(ctx, e.embedder, q.Text)
	if err != nil {
		return nil, err
	}
	items, err := e.semanticCandidates(ctx, q, vec)
	if err != nil {
		return nil, err
	}
	querycache.Set(ctx, e.cache, querycache.KindResult, scope, fp, items)
	return items, nil
}

// Hybrid fuses fulltext and semantic candidates via RRF, dispatching both
// legs through the deploy-time backend rather than always reading the
// relational store.
func (e *Engine) Hybrid(ctx context.Context, q Query) ([]Item, error) {
	scope := e.cacheScope(ctx, revKindText, q)
	fp := e.fingerprint("hybrid", q)
	var cached []Item
	if querycache.Get(ctx, e.cache, querycache.KindResult, scope, fp, &cached) {
		return cached, nil
	}

	ftItems, err := e.fulltextCandidates(ctx, q)
	if err != nil {
		return nil, err
	}
	vec, err := e.embedQuery(ctx, e.embedder, q.Text)
	if err != nil {
		log.Warn().Err(err).Msg("retrieval_embed_query_failed_falling_back_to_fulltext_only")
		querycache.Set(ctx, e.cache, querycache.KindResult, scope, fp, ftItems)
		return ftItems, nil
	}
	semItems, err := e.semanticCandidates(ctx, q, vec)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(ftItems, semItems, 60)
	if len(fused) > e.topK(q) {
		fused = fused[:e.topK(q)]
	}
	querycache.Set(ctx, e.cache, querycache.KindResult, scope, fp, fused)
	return fused, nil
}

func (e *Engine) embedQuery(ctx context.Context, emb Embedder, text string) ([]float32, error) {
	if emb == nil {
		return nil, apperr.New("retrieval.embedQuery", apperr.Unavailable, fmt.Errorf("no embedder configured"))
	}
	vecs, err := emb.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, apperr.New("retrieval.embedQuery", apperr.Unavailable, err)
	}
	if len(vecs) == 0 {
		return nil, apperr.New("retrieval.embedQuery", apperr.Internal, fmt.Errorf("embedder returned no vectors"))
	}
	return vecs[0], nil
}

func toItems(results []relational.Result) []Item {
	out := make([]Item, 0, len(results))
	for _, r := range results {
		out = append(out, Item{ChunkID: r.ChunkID, DocumentID: r.DocumentID, ChunkIndex: r.ChunkIndex, Text: r.Text, Score: r.Score})
	}
	return out
}

// fromSecondaryHits converts chunk hits from the secondary index into
// Items, carrying the document id/chunk index/text the payload now stores
// so fused results over the secondary backend aren't empty.
func fromSecondaryHits(hits []secondary.Hit) []Item {
	out := make([]Item, 0, len(hits))
	for _, h := range hits {
		out = append(out, Item{
			ChunkID:    h.ID,
			DocumentID: h.DocumentID,
			ChunkIndex: h.ChunkIndex,
			Text:       h.Text,
			Score:      h.Score,
		})
	}
	return out
}
