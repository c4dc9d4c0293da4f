package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/convstore"
	"github.com/shadabshaukat/spaces-ai/internal/deepresearch"
	"github.com/shadabshaukat/spaces-ai/internal/observability"
	"github.com/shadabshaukat/spaces-ai/internal/rag"
	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/shadabshaukat/spaces-ai/internal/tuning"
)

// Retriever is the subset of *retrieval.Engine the API dispatches to.
type Retriever interface {
	Semantic(ctx context.Context, q retrieval.Query) ([]retrieval.Item, error)
	Fulltext(ctx context.Context, q retrieval.Query) ([]retrieval.Item, error)
	Hybrid(ctx context.Context, q retrieval.Query) ([]retrieval.Item, error)
	Image(ctx context.Context, q retrieval.ImageQuery) ([]retrieval.ImageHit, error)
}

// Answerer matches *rag.Answerer.
type Answerer interface {
	Ask(ctx context.Context, question string, q retrieval.Query, mode rag.Mode, scope, providerName string) (rag.Answer, error)
}

// Researcher matches *deepresearch.Orchestrator.
type Researcher interface {
	Ask(ctx context.Context, req deepresearch.AskRequest) (deepresearch.Result, error)
}

// Conversations is the subset of *convstore.Store the API needs.
type Conversations interface {
	EnsureConversation(ctx context.Context, userID, spaceID, id, title string) (convstore.Conversation, error)
	GetConversationDetail(ctx context.Context, userID, conversationID string) (convstore.Detail, error)
}

// Reindexer matches *retrieval.Indexer's reindex surface.
type Reindexer interface {
	ReindexDocument(ctx context.Context, docID, userID, spaceID string) (int, error)
}

// DocumentReader loads document metadata for result decoration and the
// document ids a bulk reindex replays.
type DocumentReader interface {
	GetDocumentsByID(ctx context.Context, ids []string) (map[string]relational.Document, error)
	ListDocumentIDs(ctx context.Context, sc relational.Scope) ([]string, error)
}

// SecondaryInfo is reported verbatim on GET /config.
type SecondaryInfo struct {
	Engine   string
	Distance string
}

// API owns the handlers. Construct with New and mount via Routes.
type API struct {
	retriever        Retriever
	answerer         Answerer
	research         Researcher
	convs            Conversations
	reindexer        Reindexer
	docs             DocumentReader
	tuning           *tuning.Tuning
	backend          string
	relationalMetric string
	secondary        SecondaryInfo
}

func New(retriever Retriever, answerer Answerer, research Researcher, convs Conversations,
	reindexer Reindexer, docs DocumentReader, tn *tuning.Tuning, backend, relationalMetric string, secondary SecondaryInfo) *API {
	return &API{
		retriever:        retriever,
		answerer:         answerer,
		research:         research,
		convs:            convs,
		reindexer:        reindexer,
		docs:             docs,
		tuning:           tn,
		backend:          backend,
		relationalMetric: relationalMetric,
		secondary:        secondary,
	}
}

// Routes mounts every endpoint on a new mux, each wrapped in a server span.
// Callers with an object store also mount the upload endpoint via
// MountUpload on the returned mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mount := func(pattern, op string, h http.HandlerFunc) {
		mux.Handle(pattern, observability.InstrumentHandler(op, h))
	}
	mount("POST /search", "search", a.handleSearch)
	mount("POST /image-search", "image-search", a.handleImageSearch)
	mount("POST /deep-research/start", "deep-research-start", a.handleResearchStart)
	mount("POST /deep-research/ask", "deep-research-ask", a.handleResearchAsk)
	mount("POST /admin/reindex", "admin-reindex", a.handleReindex)
	mount("GET /config", "config-get", a.handleConfigGet)
	mount("POST /config", "config-set", a.handleConfigSet)
	return mux
}

// userID reads the authenticated user injected by the out-of-scope auth
// middleware. Every tenant-scoped endpoint requires it.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	uid := userID(r)
	if uid == "" || strings.TrimSpace(req.Query) == "" {
		writeError(w, apperr.New("httpapi.search", apperr.InvalidArgument, fmt.Errorf("query and X-User-ID are required")))
		return
	}

	q := retrieval.Query{UserID: uid, SpaceID: req.SpaceID, Text: req.Query, TopK: req.TopK}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = "hybrid"
	}

	var (
		items   []retrieval.Item
		answer  string
		usedLLM *bool
		err     error
	)
	switch mode {
	case "semantic":
		items, err = a.retriever.Semantic(r.Context(), q)
	case "fulltext":
		items, err = a.retriever.Fulltext(r.Context(), q)
	case "hybrid":
		items, err = a.retriever.Hybrid(r.Context(), q)
	case "rag":
		scope := fmt.Sprintf("%s:%s:%s:%s:%d", req.LLMProvider, "hybrid", uid, req.SpaceID, req.TopK)
		var ans rag.Answer
		ans, err = a.answerer.Ask(r.Context(), req.Query, q, rag.ModeHybrid, scope, req.LLMProvider)
		if err == nil {
			items, answer, usedLLM = ans.Hits, ans.Text, &ans.UsedLLM
		}
	default:
		writeError(w, apperr.New("httpapi.search", apperr.InvalidArgument, fmt.Errorf("unknown mode %q", mode)))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	resp := SearchResponse{
		Mode:    mode,
		Hits:    a.decorateHits(r.Context(), items, mode),
		Answer:  answer,
		UsedLLM: usedLLM,
	}
	writeJSON(w, http.StatusOK, resp)
}

// decorateHits converts engine items to wire hits and attaches document
// metadata in one batched lookup.
func (a *API) decorateHits(ctx context.Context, items []retrieval.Item, mode string) []SearchHit {
	hits := make([]SearchHit, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.DocumentID)
	}
	var docs map[string]relational.Document
	if a.docs != nil {
		var err error
		docs, err = a.docs.GetDocumentsByID(ctx, ids)
		if err != nil {
			log.Warn().Err(err).Msg("httpapi_document_decorate_failed")
		}
	}
	for _, it := range items {
		h := SearchHit{
			ChunkID:    it.ChunkID,
			DocumentID: it.DocumentID,
			ChunkIndex: it.ChunkIndex,
			Content:    it.Text,
		}
		score := it.Score
		rank := score
		h.Rank = &rank
		if mode != "fulltext" {
			h.Distance = a.distanceOf(score)
		}
		if doc, ok := docs[it.DocumentID]; ok {
			h.FileName = doc.FileName
			h.FileType = doc.FileType
			h.Title = doc.FileName
		}
		hits = append(hits, h)
	}
	return hits
}

// distanceOf recovers a smaller-is-better distance from a hit's score. The
// secondary backend returns a [0,1] similarity, mapped as 1-clamp(s). The
// relational backend's score is derived from the native operator distance
// (1-d for cosine, -d for l2/ip), so the distance comes back untransformed
// by inverting that expression rather than clamping.
func (a *API) distanceOf(score float64) *float64 {
	var d float64
	if a.backend == "secondary" {
		d = 1 - clamp01(score)
		return &d
	}
	switch a.relationalMetric {
	case "l2", "ip":
		d = -score
	default:
		d = 1 - score
	}
	return &d
}

func (a *API) handleImageSearch(w http.ResponseWriter, r *http.Request) {
	var req ImageSearchRequest
	if !decode(w, r, &req) {
		return
	}
	uid := userID(r)
	if uid == "" {
		writeError(w, apperr.New("httpapi.imageSearch", apperr.InvalidArgument, fmt.Errorf("X-User-ID is required")))
		return
	}
	hits, err := a.retriever.Image(r.Context(), retrieval.ImageQuery{
		UserID:      uid,
		SpaceID:     req.SpaceID,
		QueryText:   req.Query,
		QueryVector: req.Vector,
		Tags:        req.Tags,
		TopK:        req.TopK,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]ImageSearchResult, 0, len(hits))
	for i, h := range hits {
		results = append(results, ImageSearchResult{
			Rank:         i + 1,
			DocID:        h.DocumentID,
			ImageID:      h.ImageID,
			ThumbnailURL: h.ThumbnailPath,
			Caption:      h.Caption,
			Tags:         h.Tags,
			Score:        h.Score,
			FileURL:      h.FilePath,
		})
	}
	writeJSON(w, http.StatusOK, ImageSearchResponse{Results: results, Count: len(results)})
}

func (a *API) handleResearchStart(w http.ResponseWriter, r *http.Request) {
	var req DeepResearchStartRequest
	if !decode(w, r, &req) {
		return
	}
	uid := userID(r)
	if uid == "" {
		writeError(w, apperr.New("httpapi.researchStart", apperr.InvalidArgument, fmt.Errorf("X-User-ID is required")))
		return
	}
	conv, err := a.convs.EnsureConversation(r.Context(), uid, req.SpaceID, uuid.NewString(), "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeepResearchStartResponse{ConversationID: conv.ID})
}

func (a *API) handleResearchAsk(w http.ResponseWriter, r *http.Request) {
	var req DeepResearchAskRequest
	if !decode(w, r, &req) {
		return
	}
	uid := userID(r)
	if uid == "" || req.ConversationID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, apperr.New("httpapi.researchAsk", apperr.InvalidArgument,
			fmt.Errorf("conversation_id, message, and X-User-ID are required")))
		return
	}

	res, err := a.research.Ask(r.Context(), deepresearch.AskRequest{
		UserID:         uid,
		SpaceID:        req.SpaceID,
		ConversationID: req.ConversationID,
		Question:       req.Message,
		URLs:           req.URLs,
		ForceWeb:       req.ForceWeb,
		Provider:       req.LLMProvider,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	messageCount := 0
	if detail, err := a.convs.GetConversationDetail(r.Context(), uid, req.ConversationID); err == nil {
		messageCount = len(detail.Steps)
	}

	refs := make([]DeepResearchReference, 0, len(res.References))
	for _, ref := range res.References {
		refs = append(refs, DeepResearchReference{
			ChunkID:    ref.ChunkID,
			DocumentID: ref.DocumentID,
			Content:    ref.Text,
			Score:      ref.Score,
		})
	}
	writeJSON(w, http.StatusOK, DeepResearchAskResponse{
		ConversationID:    req.ConversationID,
		Answer:            res.Answer,
		MessageCount:      messageCount,
		References:        refs,
		Confidence:        res.Confidence,
		SourceConfidence:  res.SourceConfidence,
		FollowupQuestions: res.FollowupQuestions,
		WebAttempted:      res.WebAttempted,
		ElapsedSeconds:    res.ElapsedSeconds,
	})
}

func (a *API) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	if !decode(w, r, &req) {
		return
	}
	uid := userID(r)
	if uid == "" {
		writeError(w, apperr.New("httpapi.reindex", apperr.InvalidArgument, fmt.Errorf("X-User-ID is required")))
		return
	}

	var docIDs []string
	switch {
	case req.DocID != "":
		docIDs = []string{req.DocID}
	case req.All || req.SpaceID != "":
		ids, err := a.docs.ListDocumentIDs(r.Context(), relational.Scope{UserID: uid, SpaceID: req.SpaceID})
		if err != nil {
			writeError(w, err)
			return
		}
		docIDs = ids
	default:
		writeError(w, apperr.New("httpapi.reindex", apperr.InvalidArgument,
			fmt.Errorf("one of doc_id, space_id, or all is required")))
		return
	}

	total := 0
	for _, id := range docIDs {
		n, err := a.reindexer.ReindexDocument(r.Context(), id, uid, req.SpaceID)
		if err != nil {
			writeError(w, err)
			return
		}
		total += n
	}
	writeJSON(w, http.StatusOK, ReindexResponse{ReindexedChunks: total})
}

func (a *API) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	snap := a.tuning.Snapshot()
	writeJSON(w, http.StatusOK, RuntimeConfigResponse{
		Backend:     a.backend,
		DefaultTopK: snap.DefaultTopK,
		ANNProbes:   snap.ANNProbes,
		Secondary: SecondaryInfoResult{
			Engine:        a.secondary.Engine,
			NumCandidates: snap.ANNNumCandidates,
			Distance:      a.secondary.Distance,
		},
	})
}

func (a *API) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	var req RuntimeConfigUpdate
	if !decode(w, r, &req) {
		return
	}
	if req.DefaultTopK != nil {
		if err := a.tuning.SetDefaultTopK(*req.DefaultTopK); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.ANNProbes != nil {
		if err := a.tuning.SetANNProbes(*req.ANNProbes); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.ANNNumCandidates != nil {
		if err := a.tuning.SetANNNumCandidates(*req.ANNNumCandidates); err != nil {
			writeError(w, err)
			return
		}
	}
	a.handleConfigGet(w, r)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, apperr.New("httpapi.decode", apperr.InvalidArgument, err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("httpapi_encode_failed")
	}
}

var kindStatus = map[apperr.Kind]int{
	apperr.InvalidArgument: http.StatusBadRequest,
	apperr.Unauthorized:    http.StatusUnauthorized,
	apperr.NotFound:        http.StatusNotFound,
	apperr.Conflict:        http.StatusConflict,
	apperr.Unavailable:     http.StatusServiceUnavailable,
	apperr.Internal:        http.StatusInternalServerError,
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: string(kind)})
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
