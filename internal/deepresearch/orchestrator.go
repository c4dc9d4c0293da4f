package deepresearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/convstore"
	"github.com/shadabshaukat/spaces-ai/internal/llm"
	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/shadabshaukat/spaces-ai/internal/urlingest"
	"github.com/shadabshaukat/spaces-ai/internal/webresearch"
)

// Config tunes one Orchestrator's turn pipeline.
type Config struct {
	DeepResearchTimeoutSeconds int
	LocalTopK                  int
	RetryLoops                 int
	MissingLoops               int
	MissingTopK                int
	ConfidenceFloor            float64
	RecencyBoost               float64
	HalfLifeDays               float64
	RelevanceMin               float64
	KeepMessages               int
	MaxReferences              int
}

func (c Config) normalized() Config {
	if c.DeepResearchTimeoutSeconds < 15 {
		c.DeepResearchTimeoutSeconds = 15
	}
	if c.LocalTopK <= 0 {
		c.LocalTopK = 8
	}
	if c.RetryLoops <= 0 {
		c.RetryLoops = 2
	}
	if c.MissingLoops <= 0 {
		c.MissingLoops = 1
	}
	if c.MissingTopK <= 0 {
		c.MissingTopK = 3
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = 0.55
	}
	if c.HalfLifeDays <= 0 {
		c.HalfLifeDays = 30
	}
	if c.RelevanceMin <= 0 {
		c.RelevanceMin = 0.08
	}
	if c.KeepMessages <= 0 {
		c.KeepMessages = 20
	}
	if c.MaxReferences <= 0 {
		c.MaxReferences = 8
	}
	return c
}

const systemPrompt = "You are the SpacesAI Deep Research assistant. Answer using only the supplied context; say so when context is insufficient."

// documentTimestamps fetches created_at for a batch of document ids, used
// to compute recency boosts. Implemented by *relational.Store.
type documentTimestamps interface {
	GetDocumentsByID(ctx context.Context, ids []string) (map[string]relational.Document, error)
}

// ProviderSelector resolves a per-request provider name to a client;
// satisfied by *providers.Registry.
type ProviderSelector interface {
	Provider(name string) (llm.Provider, error)
}

// Orchestrator runs the Deep Research turn pipeline over a conversation.
type Orchestrator struct {
	engine   hybridSearcher
	docs     documentTimestamps
	web      *webresearch.Agent
	external *urlingest.Retriever
	crawler  *urlingest.Crawler
	convs    *convstore.Store
	provider llm.Provider
	selector ProviderSelector
	cfg      Config
}

func New(engine hybridSearcher, docs documentTimestamps, web *webresearch.Agent, external *urlingest.Retriever, crawler *urlingest.Crawler, convs *convstore.Store, provider llm.Provider, cfg Config) *Orchestrator {
	return &Orchestrator{engine: engine, docs: docs, web: web, external: external, crawler: crawler, convs: convs, provider: provider, cfg: cfg.normalized()}
}

// WithProviderSelector lets a turn honor its request's provider name
// instead of always synthesizing with the startup default.
func (o *Orchestrator) WithProviderSelector(sel ProviderSelector) *Orchestrator {
	o.selector = sel
	return o
}

func (o *Orchestrator) resolveProvider(name string) llm.Provider {
	if name == "" || o.selector == nil {
		return o.provider
	}
	p, err := o.selector.Provider(name)
	if err != nil || p == nil {
		log.Warn().Err(err).Str("provider", name).Msg("deepresearch_unknown_provider_using_default")
		return o.provider
	}
	return p
}

// Result is what one Ask turn returns to the caller.
type Result struct {
	Answer            string
	References        []Reference
	Confidence        float64
	SourceConfidence  map[string]float64
	FollowupQuestions []string
	WebAttempted      bool
	ElapsedSeconds    float64
}

// AskRequest is one Deep Research turn's input. ForceWeb and Provider are
// per-request overrides of the deployment defaults.
type AskRequest struct {
	UserID         string
	SpaceID        string
	ConversationID string
	Question       string
	URLs           []string
	ForceWeb       bool
	Provider       string
}

// Ask runs one full turn of the Deep Research pipeline for the request's
// question against its conversation.
func (o *Orchestrator) Ask(ctx context.Context, req AskRequest) (Result, error) {
	userID, spaceID, question := req.UserID, req.SpaceID, req.Question
	prov := o.resolveProvider(req.Provider)
	start := time.Now()
	deadline := time.Duration(o.cfg.DeepResearchTimeoutSeconds) * time.Second
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	conv, err := o.convs.EnsureConversation(cctx, userID, spaceID, req.ConversationID, "")
	if err != nil {
		return Result{}, err
	}
	detail, err := o.convs.GetConversationDetail(cctx, userID, conv.ID)
	if err != nil {
		return Result{}, err
	}
	messages := trimMessages(stepsToMessages(detail.Steps), o.cfg.KeepMessages)

	if _, err := o.convs.AppendStep(cctx, userID, conv.ID, convstore.RoleUser, question, nil, nil); err != nil {
		return Result{}, err
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})

	recent := recentSnippet(messages, 8, 1000)
	seed := question + "\n\nConversation so far:\n" + recent

	if len(req.URLs) > 0 && o.crawler != nil {
		for _, u := range req.URLs {
			if _, err := o.crawler.Crawl(cctx, u, urlingest.CrawlOptions{UserID: userID, SpaceID: spaceID, ConversationID: conv.ID}); err != nil {
				log.Warn().Err(err).Str("url", u).Msg("deepresearch_url_ingest_failed")
			}
		}
	}

	subqueries := splitSubqueries(seed)
	baseQuery := retrieval.Query{UserID: userID, SpaceID: spaceID, TopK: o.cfg.LocalTopK}
	hits := fanoutHybrid(cctx, o.engine, subqueries, baseQuery)

	if coverageWeak(hits) {
		rewritten := o.rewriteQuery(cctx, prov, question, recent)
		if rewritten != "" {
			more, _ := o.engine.Hybrid(cctx, withText(baseQuery, rewritten))
			hits = append(hits, more...)
		}
	}

	var urlRefs []urlingest.Envelope
	if o.external != nil {
		urlRefs, _ = o.external.Ask(cctx, urlingest.Scope{UserID: userID, ConversationID: conv.ID, SpaceID: spaceID}, seed, 5)
	}
	localCtx := joinItems(hits)
	urlCtx := joinEnvelopes(urlRefs)

	var (
		webHits      []webresearch.Hit
		webAttempted bool
		confidence   float64
	)
	searchQuery := question
	for attempt := 0; attempt < o.cfg.RetryLoops; attempt++ {
		remaining := remainingTime(start, deadline)
		if o.web != nil && o.web.ShouldConsiderWeb(hits, req.ForceWeb) {
			webHits, webAttempted = o.web.MaybeFetchWeb(cctx, searchQuery, remaining, req.ForceWeb)
		}
		confidence = webresearch.ComputeConfidence(hits, webAttempted && len(webHits) > 0)

		if coverageWeak(hits) {
			missing := o.identifyMissing(cctx, prov, question, preview(localCtx+urlCtx, 800))
			if missing != "" {
				localCtx += "\nMissing concepts to cover: " + missing
			}
		}
		if confidence >= o.cfg.ConfidenceFloor && (localCtx != "" || urlCtx != "") {
			break
		}
		if rewritten := o.rewriteQuery(cctx, prov, searchQuery, recent); rewritten != "" {
			searchQuery = rewritten
		}
	}

	known := map[string]struct{}{}
	for loop := 0; loop < o.cfg.MissingLoops; loop++ {
		newMissing := o.newMissingConcepts(cctx, prov, question, preview(localCtx, 800), known)
		if len(newMissing) == 0 {
			break
		}
		for i, concept := range newMissing {
			if i >= o.cfg.MissingTopK {
				break
			}
			if remainingTime(start, deadline) <= 2*time.Second {
				break
			}
			known[concept] = struct{}{}
			more, _ := o.engine.Hybrid(cctx, withText(baseQuery, concept))
			hits = append(hits, more...)
		}
	}

	fullCtx := labelledBlocks(localCtx, urlCtx, webHits)
	draft := o.synthesize(cctx, prov, question, fullCtx, recent)
	answer := draft
	if answer == "" {
		answer = preview(fullCtx, 1200)
	}
	if draft != "" && len(hits) > 0 {
		if refined := o.refine(cctx, prov, question, draft, fullCtx, recent); refined != "" {
			answer = refined
		}
	}

	refs := rerankByRecency(hits, o.documentCreatedAt(cctx, hits), o.cfg.RecencyBoost, o.cfg.HalfLifeDays, o.cfg.MaxReferences)

	candidates := o.generateFollowups(cctx, prov, question, preview(fullCtx, 800), recent)
	followups := filterFollowups(candidates, question, recent, o.cfg.RelevanceMin)

	if _, err := o.convs.AppendStep(cctx, userID, conv.ID, convstore.RoleAssistant, answer, nil, nil); err != nil {
		return Result{}, err
	}

	return Result{
		Answer:     answer,
		References: refs,
		Confidence: confidence,
		SourceConfidence: map[string]float64{
			"local": boolToFloat(localCtx != ""),
			"url":   boolToFloat(urlCtx != ""),
			"web":   boolToFloat(len(webHits) > 0),
		},
		FollowupQuestions: followups,
		WebAttempted:      webAttempted,
		ElapsedSeconds:    time.Since(start).Seconds(),
	}, nil
}

// documentCreatedAt batch-fetches created_at for every document id involved
// in hits, used by the recency reranker.
func (o *Orchestrator) documentCreatedAt(ctx context.Context, hits []retrieval.Item) map[string]time.Time {
	out := map[string]time.Time{}
	if o.docs == nil || len(hits) == 0 {
		return out
	}
	seen := map[string]struct{}{}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocumentID]; ok {
			continue
		}
		seen[h.DocumentID] = struct{}{}
		ids = append(ids, h.DocumentID)
	}
	docs, err := o.docs.GetDocumentsByID(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("deepresearch_document_timestamp_lookup_failed")
		return out
	}
	for id, d := range docs {
		out[id] = d.CreatedAt
	}
	return out
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func withText(q retrieval.Query, text string) retrieval.Query {
	q.Text = text
	return q
}

func remainingTime(start time.Time, deadline time.Duration) time.Duration {
	elapsed := time.Since(start)
	if elapsed >= deadline {
		return 0
	}
	return deadline - elapsed
}

func stepsToMessages(steps []convstore.Step) []llm.Message {
	out := make([]llm.Message, 0, len(steps)+1)
	out = append(out, llm.Message{Role: "system", Content: systemPrompt})
	for _, st := range steps {
		out = append(out, llm.Message{Role: string(st.Role), Content: st.Content})
	}
	return out
}

// trimMessages keeps the system prompt plus the last max(40, 2*keep)
// non-system messages.
func trimMessages(messages []llm.Message, keep int) []llm.Message {
	limit := 40
	if 2*keep > limit {
		limit = 2 * keep
	}
	var system *llm.Message
	var rest []llm.Message
	for i := range messages {
		if messages[i].Role == "system" && system == nil {
			m := messages[i]
			system = &m
			continue
		}
		rest = append(rest, messages[i])
	}
	if len(rest) > limit {
		rest = rest[len(rest)-limit:]
	}
	out := make([]llm.Message, 0, len(rest)+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, rest...)
	return out
}

// recentSnippet joins the last n non-system messages and truncates to
// maxChars.
func recentSnippet(messages []llm.Message, n, maxChars int) string {
	var nonSystem []llm.Message
	for _, m := range messages {
		if m.Role != "system" {
			nonSystem = append(nonSystem, m)
		}
	}
	if len(nonSystem) > n {
		nonSystem = nonSystem[len(nonSystem)-n:]
	}
	parts := make([]string, 0, len(nonSystem))
	for _, m := range nonSystem {
		parts = append(parts, m.Content)
	}
	joined := strings.Join(parts, "\n")
	if len(joined) > maxChars {
		joined = joined[len(joined)-maxChars:]
	}
	return joined
}

func preview(s string, maxChars int) string {
	if len(s) > maxChars {
		return s[:maxChars]
	}
	return s
}

func joinItems(hits []retrieval.Item) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Text)
	}
	return strings.Join(parts, "\n\n")
}

func joinEnvelopes(envs []urlingest.Envelope) string {
	parts := make([]string, 0, len(envs))
	for _, e := range envs {
		parts = append(parts, fmt.Sprintf("[%s](%s)\n%s", e.Title, e.URL, e.Content))
	}
	return strings.Join(parts, "\n\n")
}

func labelledBlocks(localCtx, urlCtx string, webHits []webresearch.Hit) string {
	var b strings.Builder
	if localCtx != "" {
		b.WriteString("## Local\n")
		b.WriteString(localCtx)
	}
	if urlCtx != "" {
		b.WriteString("\n\n## External URLs\n")
		b.WriteString(urlCtx)
	}
	if len(webHits) > 0 {
		b.WriteString(webresearch.AggregateContexts("\n\n## Web", webHits))
	}
	return b.String()
}
