package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/chunker"
	"github.com/shadabshaukat/spaces-ai/internal/convstore"
	"github.com/shadabshaukat/spaces-ai/internal/deepresearch"
	"github.com/shadabshaukat/spaces-ai/internal/embedder"
	"github.com/shadabshaukat/spaces-ai/internal/objectstore"
	"github.com/shadabshaukat/spaces-ai/internal/rag"
	"github.com/shadabshaukat/spaces-ai/internal/retrieval"
	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/shadabshaukat/spaces-ai/internal/tuning"
)

type fakeRetriever struct {
	items     []retrieval.Item
	imageHits []retrieval.ImageHit
	lastQuery retrieval.Query
	err       error
}

func (f *fakeRetriever) Semantic(_ context.Context, q retrieval.Query) ([]retrieval.Item, error) {
	f.lastQuery = q
	return f.items, f.err
}
func (f *fakeRetriever) Fulltext(_ context.Context, q retrieval.Query) ([]retrieval.Item, error) {
	f.lastQuery = q
	return f.items, f.err
}
func (f *fakeRetriever) Hybrid(_ context.Context, q retrieval.Query) ([]retrieval.Item, error) {
	f.lastQuery = q
	return f.items, f.err
}
func (f *fakeRetriever) Image(_ context.Context, _ retrieval.ImageQuery) ([]retrieval.ImageHit, error) {
	return f.imageHits, f.err
}

type fakeAnswerer struct {
	answer       rag.Answer
	lastProvider string
}

func (f *fakeAnswerer) Ask(_ context.Context, _ string, _ retrieval.Query, _ rag.Mode, _ string, providerName string) (rag.Answer, error) {
	f.lastProvider = providerName
	return f.answer, nil
}

type fakeResearcher struct {
	result  deepresearch.Result
	lastReq deepresearch.AskRequest
}

func (f *fakeResearcher) Ask(_ context.Context, req deepresearch.AskRequest) (deepresearch.Result, error) {
	f.lastReq = req
	return f.result, nil
}

type fakeConversations struct {
	detail convstore.Detail
}

func (f *fakeConversations) EnsureConversation(_ context.Context, userID, spaceID, id, _ string) (convstore.Conversation, error) {
	return convstore.Conversation{ID: id, UserID: userID, SpaceID: spaceID}, nil
}
func (f *fakeConversations) GetConversationDetail(context.Context, string, string) (convstore.Detail, error) {
	return f.detail, nil
}

type fakeReindexer struct {
	perDoc int
	calls  int
}

func (f *fakeReindexer) ReindexDocument(context.Context, string, string, string) (int, error) {
	f.calls++
	return f.perDoc, nil
}

type fakeDocs struct {
	docs map[string]relational.Document
	ids  []string
}

func (f *fakeDocs) GetDocumentsByID(context.Context, []string) (map[string]relational.Document, error) {
	return f.docs, nil
}
func (f *fakeDocs) ListDocumentIDs(context.Context, relational.Scope) ([]string, error) {
	return f.ids, nil
}

type testFakes struct {
	retriever  *fakeRetriever
	answerer   *fakeAnswerer
	researcher *fakeResearcher
	reindexer  *fakeReindexer
}

func newTestAPI(t *testing.T) (*API, *testFakes) {
	t.Helper()
	f := &testFakes{
		retriever: &fakeRetriever{
			items: []retrieval.Item{{ChunkID: "d1#0", DocumentID: "d1", ChunkIndex: 0, Text: "hello", Score: 0.9}},
			imageHits: []retrieval.ImageHit{
				{DocumentID: "d1", ImageID: "i1", Caption: "a cat", Score: 0.8, ThumbnailPath: "/t/i1.jpg", FilePath: "/f/i1.jpg"},
			},
		},
		answerer:   &fakeAnswerer{},
		researcher: &fakeResearcher{result: deepresearch.Result{Answer: "deep", Confidence: 0.5, WebAttempted: true}},
		reindexer:  &fakeReindexer{perDoc: 3},
	}
	f.answerer.answer = rag.Answer{Text: "an answer", UsedLLM: true, Hits: f.retriever.items}
	api := New(
		f.retriever,
		f.answerer,
		f.researcher,
		&fakeConversations{detail: convstore.Detail{Steps: []convstore.Step{{}, {}}}},
		f.reindexer,
		&fakeDocs{
			docs: map[string]relational.Document{"d1": {ID: "d1", FileName: "doc.txt", FileType: "txt"}},
			ids:  []string{"d1", "d2"},
		},
		tuning.New(10, 16, 100),
		"secondary",
		"cosine",
		SecondaryInfo{Engine: "qdrant", Distance: "cosine"},
	)
	return api, f
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", "u1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchSemantic(t *testing.T) {
	api, f := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/search",
		SearchRequest{Query: "tiny test document", Mode: "semantic", TopK: 5, SpaceID: "s1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "semantic", resp.Mode)
	require.Len(t, resp.Hits, 1)
	require.Equal(t, "d1", resp.Hits[0].DocumentID)
	require.NotNil(t, resp.Hits[0].Distance)
	require.InDelta(t, 0.1, *resp.Hits[0].Distance, 1e-9)
	require.Equal(t, "doc.txt", resp.Hits[0].FileName)

	require.Equal(t, "u1", f.retriever.lastQuery.UserID)
	require.Equal(t, "s1", f.retriever.lastQuery.SpaceID)
	require.Equal(t, 5, f.retriever.lastQuery.TopK)
}

func TestSearchRAGMode(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/search",
		SearchRequest{Query: "q", Mode: "rag"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "an answer", resp.Answer)
	require.NotNil(t, resp.UsedLLM)
	require.True(t, *resp.UsedLLM)
}

func TestSearchRejectsMissingQuery(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/search", SearchRequest{Mode: "semantic"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/search", SearchRequest{Query: "q", Mode: "psychic"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageSearch(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/image-search",
		ImageSearchRequest{Query: "a cat", TopK: 3}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ImageSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, 1, resp.Results[0].Rank)
	require.Equal(t, "i1", resp.Results[0].ImageID)
	require.Equal(t, "/t/i1.jpg", resp.Results[0].ThumbnailURL)
}

func TestDeepResearchStartAndAsk(t *testing.T) {
	api, _ := newTestAPI(t)
	routes := api.Routes()

	rec := do(t, routes, http.MethodPost, "/deep-research/start", DeepResearchStartRequest{SpaceID: "s1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var started DeepResearchStartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.ConversationID)

	rec = do(t, routes, http.MethodPost, "/deep-research/ask",
		DeepResearchAskRequest{ConversationID: started.ConversationID, Message: "why?"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var asked DeepResearchAskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asked))
	require.Equal(t, "deep", asked.Answer)
	require.Equal(t, 2, asked.MessageCount)
	require.True(t, asked.WebAttempted)
}

func TestReindexSingleDoc(t *testing.T) {
	api, f := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/admin/reindex", ReindexRequest{DocID: "d1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReindexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.ReindexedChunks)
	require.Equal(t, 1, f.reindexer.calls)
}

func TestReindexAll(t *testing.T) {
	api, f := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/admin/reindex", ReindexRequest{All: true}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReindexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 6, resp.ReindexedChunks)
	require.Equal(t, 2, f.reindexer.calls)
}

func TestRuntimeConfigRoundTrip(t *testing.T) {
	api, _ := newTestAPI(t)
	routes := api.Routes()

	rec := do(t, routes, http.MethodGet, "/config", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg RuntimeConfigResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Equal(t, "secondary", cfg.Backend)
	require.Equal(t, "qdrant", cfg.Secondary.Engine)
	require.EqualValues(t, 10, cfg.DefaultTopK)

	topK := int64(25)
	rec = do(t, routes, http.MethodPost, "/config", RuntimeConfigUpdate{DefaultTopK: &topK}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.EqualValues(t, 25, cfg.DefaultTopK)
}

func TestRuntimeConfigRejectsOutOfBounds(t *testing.T) {
	api, _ := newTestAPI(t)
	topK := int64(10_000)
	rec := do(t, api.Routes(), http.MethodPost, "/config", RuntimeConfigUpdate{DefaultTopK: &topK}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, string(apperr.InvalidArgument), resp.Kind)
}

type fakeIngestor struct {
	doc    relational.Document
	chunks []relational.Chunk
}

func (f *fakeIngestor) IngestDocument(_ context.Context, doc relational.Document, chunks []relational.Chunk) error {
	f.doc, f.chunks = doc, chunks
	return nil
}

func TestUploadChunksEmbedsAndIngests(t *testing.T) {
	api, _ := newTestAPI(t)
	routes := api.Routes()

	objects, err := objectstore.NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	ingestor := &fakeIngestor{}
	api.MountUpload(routes, Uploader{
		Objects:  objects,
		Splitter: &chunker.Fixed{Size: 40, Overlap: 0},
		Embedder: embedder.NewDeterministic(16, true, 1),
		Ingestor: ingestor,
	})

	content := "Hello SpacesAI. This is a tiny test document for upload ingestion."
	rec := do(t, routes, http.MethodPost, "/upload",
		UploadRequest{Filename: "tiny.txt", FileType: "txt", Content: content, SpaceID: "s1"},
		map[string]string{"X-User-Email": "a@b.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.DocumentID)
	require.Greater(t, resp.Chunks, 1)

	require.Equal(t, resp.DocumentID, ingestor.doc.ID)
	require.Equal(t, "u1", ingestor.doc.UserID)
	require.Len(t, ingestor.chunks, resp.Chunks)
	for i, c := range ingestor.chunks {
		require.Equal(t, i, c.Index)
		require.Equal(t, fmt.Sprintf("%s#%d", resp.DocumentID, i), c.ID)
		require.NotEmpty(t, c.Embedding)
	}

	_, ok := objects.Get("a_b.com/tiny.txt")
	require.True(t, ok)
}

func TestUploadRejectsEmptyContent(t *testing.T) {
	api, _ := newTestAPI(t)
	routes := api.Routes()
	api.MountUpload(routes, Uploader{
		Splitter: &chunker.Fixed{Size: 40, Overlap: 0},
		Embedder: embedder.NewDeterministic(16, true, 1),
		Ingestor: &fakeIngestor{},
	})
	rec := do(t, routes, http.MethodPost, "/upload", UploadRequest{Filename: "f.txt"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRAGPassesProviderName(t *testing.T) {
	api, f := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/search",
		SearchRequest{Query: "q", Mode: "rag", LLMProvider: "anthropic"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "anthropic", f.answerer.lastProvider)
}

func TestDeepResearchAskForwardsForceWebAndProvider(t *testing.T) {
	api, f := newTestAPI(t)
	rec := do(t, api.Routes(), http.MethodPost, "/deep-research/ask",
		DeepResearchAskRequest{ConversationID: "c1", Message: "why?", ForceWeb: true, LLMProvider: "google"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, f.researcher.lastReq.ForceWeb)
	require.Equal(t, "google", f.researcher.lastReq.Provider)
	require.Equal(t, "why?", f.researcher.lastReq.Question)
	require.Equal(t, "u1", f.researcher.lastReq.UserID)
}

func TestDistanceOfPerBackendAndMetric(t *testing.T) {
	secondary := &API{backend: "secondary"}
	require.InDelta(t, 0.1, *secondary.distanceOf(0.9), 1e-9)
	// Out-of-range similarities clamp before mapping.
	require.InDelta(t, 0.0, *secondary.distanceOf(1.7), 1e-9)

	cosine := &API{backend: "relational", relationalMetric: "cosine"}
	require.InDelta(t, 0.25, *cosine.distanceOf(0.75), 1e-9)

	// L2/IP scores are negated native distances; no clamping applies.
	l2 := &API{backend: "relational", relationalMetric: "l2"}
	require.InDelta(t, 3.5, *l2.distanceOf(-3.5), 1e-9)

	ip := &API{backend: "relational", relationalMetric: "ip"}
	require.InDelta(t, 2.0, *ip.distanceOf(-2.0), 1e-9)
}
