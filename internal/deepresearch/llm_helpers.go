package deepresearch

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/llm"
)

// chat is the shared degrade-on-failure LLM call against the turn's
// resolved provider: any error or empty response yields "".
func (o *Orchestrator) chat(ctx context.Context, prov llm.Provider, prompt string) string {
	if prov == nil {
		return ""
	}
	resp, err := prov.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, "")
	if err != nil {
		log.Warn().Err(err).Msg("deepresearch_llm_call_failed")
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

func (o *Orchestrator) rewriteQuery(ctx context.Context, prov llm.Provider, question, recent string) string {
	return o.chat(ctx, prov, "Rewrite this question into a single, more specific search query. Respond with only the query.\n\nQuestion: "+question+"\n\nRecent conversation:\n"+recent)
}

func (o *Orchestrator) identifyMissing(ctx context.Context, prov llm.Provider, question, contextPreview string) string {
	return o.chat(ctx, prov, "Given the question and the retrieved context below, name the concepts still missing needed to answer fully. Respond with a short comma-separated list, or an empty response if nothing is missing.\n\nQuestion: "+question+"\n\nContext:\n"+contextPreview)
}

func (o *Orchestrator) newMissingConcepts(ctx context.Context, prov llm.Provider, question, contextPreview string, known map[string]struct{}) []string {
	raw := o.identifyMissing(ctx, prov, question, contextPreview)
	if raw == "" {
		return nil
	}
	var out []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, seen := known[c]; seen {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (o *Orchestrator) synthesize(ctx context.Context, prov llm.Provider, question, fullCtx, recent string) string {
	return o.chat(ctx, prov, "Answer the question using only the context below. Be concise and cite nothing beyond what's given.\n\nQuestion: "+question+"\n\nRecent conversation:\n"+recent+"\n\nContext:\n"+fullCtx)
}

func (o *Orchestrator) refine(ctx context.Context, prov llm.Provider, question, draft, fullCtx, recent string) string {
	return o.chat(ctx, prov, "Refine this draft answer for accuracy and completeness against the context. Respond with only the improved answer.\n\nQuestion: "+question+"\n\nDraft:\n"+draft+"\n\nContext:\n"+fullCtx+"\n\nRecent conversation:\n"+recent)
}

func (o *Orchestrator) generateFollowups(ctx context.Context, prov llm.Provider, question, contextPreview, recent string) []string {
	raw := o.chat(ctx, prov, "Suggest up to 4 natural follow-up questions the user might ask next, one per line, no numbering.\n\nQuestion: "+question+"\n\nContext:\n"+contextPreview+"\n\nRecent conversation:\n"+recent)
	if raw == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
