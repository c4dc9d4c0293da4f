package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/chunker"
	"github.com/shadabshaukat/spaces-ai/internal/embedder"
	"github.com/shadabshaukat/spaces-ai/internal/objectstore"
	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
)

// maxUploadBytes bounds request bodies before any work happens; oversized
// uploads are rejected up front rather than queued.
const maxUploadBytes = 8 << 20

// UploadRequest is the body of POST /upload. File parsing is external to
// this service, so the boundary receives already-extracted text.
type UploadRequest struct {
	Filename string   `json:"filename"`
	FileType string   `json:"file_type,omitempty"`
	Content  string   `json:"content"`
	SpaceID  string   `json:"space_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// UploadResponse reports the stored document.
type UploadResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	ObjectURL  string `json:"object_url,omitempty"`
}

// Ingestor matches *retrieval.Indexer's ingest surface.
type Ingestor interface {
	IngestDocument(ctx context.Context, doc relational.Document, chunks []relational.Chunk) error
}

// Uploader bundles the collaborators the upload endpoint drives.
type Uploader struct {
	Objects  objectstore.Store
	Splitter chunker.Splitter
	Embedder embedder.Embedder
	Ingestor Ingestor
}

// MountUpload registers POST /upload on mux.
func (a *API) MountUpload(mux *http.ServeMux, up Uploader) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		a.handleUpload(w, r, up)
	}
	mux.Handle("POST /upload", http.MaxBytesHandler(http.HandlerFunc(handler), maxUploadBytes))
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request, up Uploader) {
	var req UploadRequest
	if !decode(w, r, &req) {
		return
	}
	uid := userID(r)
	email := strings.TrimSpace(r.Header.Get("X-User-Email"))
	if uid == "" || req.Filename == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, apperr.New("httpapi.upload", apperr.InvalidArgument,
			fmt.Errorf("filename, content, and X-User-ID are required")))
		return
	}

	var objectURL string
	if up.Objects != nil {
		var err error
		_, objectURL, err = up.Objects.SaveUpload(r.Context(), []byte(req.Content), req.Filename, email)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	texts := up.Splitter.Split(req.Content)
	if len(texts) == 0 {
		writeError(w, apperr.New("httpapi.upload", apperr.InvalidArgument, fmt.Errorf("no indexable text")))
		return
	}
	vectors, err := up.Embedder.EmbedBatch(r.Context(), texts)
	if err != nil {
		writeError(w, apperr.New("httpapi.upload", apperr.Unavailable, err))
		return
	}

	docID := uuid.NewString()
	doc := relational.Document{
		ID:        docID,
		UserID:    uid,
		SpaceID:   req.SpaceID,
		FileName:  req.Filename,
		FileType:  req.FileType,
		SourceURL: objectURL,
		Status:    "ready",
		CreatedAt: time.Now().UTC(),
		Tags:      req.Tags,
	}
	chunks := make([]relational.Chunk, 0, len(texts))
	for i, text := range texts {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		chunks = append(chunks, relational.Chunk{
			ID:         fmt.Sprintf("%s#%d", docID, i),
			DocumentID: docID,
			UserID:     uid,
			SpaceID:    req.SpaceID,
			Index:      i,
			Text:       text,
			Embedding:  vec,
		})
	}
	if err := up.Ingestor.IngestDocument(r.Context(), doc, chunks); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{DocumentID: docID, Chunks: len(chunks), ObjectURL: objectURL})
}
