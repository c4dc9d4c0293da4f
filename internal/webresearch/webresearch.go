// Package webresearch decides when local retrieval needs supplementing with
// a web search, performs a bounded single web fetch, and folds the results
// into the context the Deep Research orchestrator synthesizes from.
package webresearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
	webtool "github.com/shadabshaukat/spaces-ai/internal/tools/web"
)

// Config bounds the agent's result count and sets the deployment-wide
// force-web default; callers can additionally force per request.
type Config struct {
	TopK     int
	ForceWeb bool
}

// Hit is one web search result, folded into the Deep Research context.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Agent wraps the SearXNG-backed search client and a page fetcher.
type Agent struct {
	search  Searcher
	fetcher *webtool.Fetcher
	cfg     Config
}

// Searcher is the subset of *web.SearchClient the agent needs.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]webtool.SearchResult, error)
}

// New builds an Agent from a SearXNG-backed search client and config.
func New(search Searcher, cfg Config) *Agent {
	return &Agent{search: search, fetcher: webtool.NewFetcher(webtool.WithTimeout(8 * time.Second)), cfg: cfg}
}

// ShouldConsiderWeb applies the weighted coverage/diversity/quality
// heuristic: true when forced (per request or by config), or when the
// combined score falls below 0.55.
func (a *Agent) ShouldConsiderWeb(hits []retrieval.Item, force bool) bool {
	if force || a.cfg.ForceWeb {
		return true
	}
	score := 0.35*coverage(hits) + 0.35*diversity(hits) + 0.30*semanticQuality(hits)
	return score < 0.55
}

func coverage(hits []retrieval.Item) float64 {
	return clamp01(float64(len(hits)) / 8.0)
}

func diversity(hits []retrieval.Item) float64 {
	docs := map[string]struct{}{}
	for _, h := range hits {
		docs[h.DocumentID] = struct{}{}
	}
	return clamp01(float64(len(docs)) / 5.0)
}

func semanticQuality(hits []retrieval.Item) float64 {
	if len(hits) == 0 {
		return 0
	}
	best := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > best {
			best = h.Score
		}
	}
	bestDistance := 1 - best
	return clamp01(1 - bestDistance)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MaybeFetchWeb issues one search-engine request within the shared
// deadline. Any error yields an empty list and webAttempted=true so the
// caller can still record that a web attempt was made.
func (a *Agent) MaybeFetchWeb(ctx context.Context, query string, remaining time.Duration, force bool) (hits []Hit, webAttempted bool) {
	if remaining < 5*time.Second && !(force || a.cfg.ForceWeb) {
		return nil, false
	}
	timeout := remaining
	if timeout > 8*time.Second {
		timeout = 8 * time.Second
	}
	if timeout < 3*time.Second {
		timeout = 3 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	topK := a.cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	results, err := a.search.Search(cctx, query, topK)
	if err != nil {
		log.Warn().Err(err).Msg("webresearch_search_failed")
		return nil, true
	}
	out := make([]Hit, 0, len(results))
	for _, r := range results {
		snippet := r.Snippet
		if snippet == "" {
			snippet = a.snippetFor(cctx, r.URL)
		}
		out = append(out, Hit{Title: r.Title, URL: r.URL, Snippet: snippet})
	}
	return out, true
}

func (a *Agent) snippetFor(ctx context.Context, url string) string {
	res, err := a.fetcher.FetchMarkdown(ctx, url)
	if err != nil || res == nil {
		return ""
	}
	md := strings.TrimSpace(res.Markdown)
	if len(md) > 300 {
		md = md[:300]
	}
	return md
}

// AggregateContexts appends one labeled envelope per web hit after the
// local context blocks.
func AggregateContexts(local string, hits []Hit) string {
	var b strings.Builder
	b.WriteString(local)
	for _, h := range hits {
		fmt.Fprintf(&b, "\n\nWeb result: %s (%s)\n%s", h.Title, h.URL, h.Snippet)
	}
	return b.String()
}

// ComputeConfidence scores how well the turn is grounded: base 0.25
// plus weighted coverage and diversity, plus 0.15 when web results
// contributed, clamped to [0.1, 0.98].
func ComputeConfidence(hits []retrieval.Item, webUsed bool) float64 {
	c := 0.25 + 0.35*coverage(hits) + 0.25*diversity(hits)
	if webUsed {
		c += 0.15
	}
	if c < 0.1 {
		c = 0.1
	}
	if c > 0.98 {
		c = 0.98
	}
	return c
}
