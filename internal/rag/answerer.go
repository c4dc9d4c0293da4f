// Package rag implements the RAG Answerer: retrieve, compose context, ask
// the configured LLM, and cache the answer keyed by the retrieved hits'
// fingerprint.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/llm"
	"github.com/shadabshaukat/spaces-ai/internal/querycache"
	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
)

// Mode selects the retrieval strategy used before answering.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeFulltext Mode = "fulltext"
	ModeHybrid   Mode = "hybrid"
)

// Retriever is the subset of *retrieval.Engine the answerer needs.
type Retriever interface {
	Semantic(ctx context.Context, q retrieval.Query) ([]retrieval.Item, error)
	Fulltext(ctx context.Context, q retrieval.Query) ([]retrieval.Item, error)
	Hybrid(ctx context.Context, q retrieval.Query) ([]retrieval.Item, error)
}

// AnswerCache is the subset of *tenantcache.Cache the answerer needs.
type AnswerCache interface {
	Get(ctx context.Context, scope, fingerprint string, out any) bool
	Set(ctx context.Context, scope, fingerprint string, val any)
}

// ProviderSelector resolves a per-request provider name to a client;
// satisfied by *providers.Registry.
type ProviderSelector interface {
	Provider(name string) (llm.Provider, error)
}

// Answerer composes retrieval hits into an LLM answer, degrading to raw
// context when the provider is unavailable or errors.
type Answerer struct {
	retriever Retriever
	cache     AnswerCache
	provider  llm.Provider
	selector  ProviderSelector
}

func New(retriever Retriever, cache AnswerCache, provider llm.Provider) *Answerer {
	return &Answerer{retriever: retriever, cache: cache, provider: provider}
}

// WithProviderSelector lets Ask honor a per-request provider name instead
// of always answering with the startup default.
func (a *Answerer) WithProviderSelector(sel ProviderSelector) *Answerer {
	a.selector = sel
	return a
}

// resolveProvider picks the per-request provider when a name is given and
// resolvable, falling back to the default client otherwise.
func (a *Answerer) resolveProvider(name string) llm.Provider {
	if name == "" || a.selector == nil {
		return a.provider
	}
	p, err := a.selector.Provider(name)
	if err != nil || p == nil {
		log.Warn().Err(err).Str("provider", name).Msg("rag_answerer_unknown_provider_using_default")
		return a.provider
	}
	return p
}

// Answer is the RAG Answerer's result.
type Answer struct {
	Text    string
	Hits    []retrieval.Item
	UsedLLM bool
}

type cachedAnswer struct {
	Text string `json:"text"`
}

// Ask retrieves hits for question in the given mode, composes context, and
// answers via the LLM, falling back to the joined context on any failure.
// providerName selects the LLM per request; empty means the default.
func (a *Answerer) Ask(ctx context.Context, question string, q retrieval.Query, mode Mode, scope, providerName string) (Answer, error) {
	hits, err := a.retrieve(ctx, q, mode)
	if err != nil {
		return Answer{}, err
	}
	context := composeContext(hits)

	key := answerCacheKey(question, hits, context)
	var cached cachedAnswer
	if a.cache != nil && a.cache.Get(ctx, scope, key, &cached) {
		return Answer{Text: cached.Text, Hits: hits, UsedLLM: true}, nil
	}

	provider := a.resolveProvider(providerName)
	if provider == nil {
		return Answer{Text: context, Hits: hits, UsedLLM: false}, nil
	}
	resp, err := provider.Chat(ctx, []llm.Message{
		{Role: "user", Content: question + "\n\nContext:\n" + context},
	}, "")
	if err != nil || resp.Content == "" {
		log.Warn().Err(err).Msg("rag_answerer_llm_failed_degrading_to_context")
		return Answer{Text: context, Hits: hits, UsedLLM: false}, nil
	}

	if a.cache != nil {
		a.cache.Set(ctx, scope, key, cachedAnswer{Text: resp.Content})
	}
	return Answer{Text: resp.Content, Hits: hits, UsedLLM: true}, nil
}

func (a *Answerer) retrieve(ctx context.Context, q retrieval.Query, mode Mode) ([]retrieval.Item, error) {
	switch mode {
	case ModeSemantic:
		return a.retriever.Semantic(ctx, q)
	case ModeFulltext:
		return a.retriever.Fulltext(ctx, q)
	default:
		return a.retriever.Hybrid(ctx, q)
	}
}

func composeContext(hits []retrieval.Item) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Text)
	}
	return strings.Join(parts, "\n\n")
}

// answerCacheKey hashes the lowercased question, the hit fingerprint
// ("{doc_id}-{chunk_index}" joined by ":"), and the composed context.
func answerCacheKey(question string, hits []retrieval.Item, context string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", strings.ToLower(question), fingerprint(hits), context)
	return hex.EncodeToString(h.Sum(nil))
}

func fingerprint(hits []retrieval.Item) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("%s-%d", h.DocumentID, h.ChunkIndex))
	}
	return querycache.Fingerprint("hits", map[string]string{"joined": strings.Join(parts, ":")})
}
