package retrieval

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/shadabshaukat/spaces-ai/internal/store/secondary"
	"github.com/shadabshaukat/spaces-ai/internal/tenantcache"
)

// IndexerRelationalStore is the subset of *relational.Store the Indexer
// writes through: the authoritative store, always written first.
type IndexerRelationalStore interface {
	InsertDocument(ctx context.Context, d relational.Document) error
	InsertChunks(ctx context.Context, chunks []relational.Chunk) error
	ChunksForDocument(ctx context.Context, docID string) ([]relational.Chunk, error)
	DeleteDocumentCascade(ctx context.Context, docID, userID string) error
	InsertImageAsset(ctx context.Context, im relational.ImageAsset) error
	ImagesForDocument(ctx context.Context, docID string) ([]relational.ImageAsset, error)
}

// IndexerSecondaryChunks is the subset of the chunks *secondary.Index the
// Indexer mirrors writes into.
type IndexerSecondaryChunks interface {
	IndexChunks(ctx context.Context, docID, userID, spaceID string, chunks []secondary.ChunkVector) error
	DeleteDocument(ctx context.Context, docID, userID string) error
}

// IndexerSecondaryImages is the subset of the images *secondary.Index the
// Indexer mirrors writes into.
type IndexerSecondaryImages interface {
	IndexImageAsset(ctx context.Context, docID, userID, spaceID string, im secondary.ImageAsset) error
	DeleteDocument(ctx context.Context, docID, userID string) error
}

// Indexer is the dual-write/reindex coordinator that keeps the secondary
// ANN mirror and the per-tenant cache revisions in sync with the
// authoritative relational store. The relational write is always the
// source of truth; mirroring into the secondary index is best-effort
// (logged, never fatal) to match the original ingest_file_path's
// try/except-log semantics around its OpenSearch dual-write.
type Indexer struct {
	relational IndexerRelationalStore
	chunks     IndexerSecondaryChunks
	images     IndexerSecondaryImages
	cache      *tenantcache.Cache
}

// NewIndexer constructs an Indexer. chunks/images may be nil when no
// secondary mirror is configured; the relational write still succeeds and
// revisions still bump so cache invalidation keeps working relational-only.
func NewIndexer(rel IndexerRelationalStore, chunks IndexerSecondaryChunks, images IndexerSecondaryImages, cache *tenantcache.Cache) *Indexer {
	return &Indexer{relational: rel, chunks: chunks, images: images, cache: cache}
}

// IngestDocument inserts a document and its chunks relationally, mirrors
// the chunks into the secondary index, and bumps the tenant's text
// revision so cached text/hybrid/semantic results stop matching.
func (ix *Indexer) IngestDocument(ctx context.Context, doc relational.Document, chunks []relational.Chunk) error {
	if err := ix.relational.InsertDocument(ctx, doc); err != nil {
		return err
	}
	if err := ix.relational.InsertChunks(ctx, chunks); err != nil {
		return err
	}
	ix.mirrorChunks(ctx, doc.ID, doc.UserID, doc.SpaceID, chunks)
	ix.bumpRevision(ctx, revKindText, doc.UserID, doc.SpaceID)
	return nil
}

// IngestImage inserts one image asset relationally, mirrors it into the
// images collection, and bumps both the image and text revisions — an
// uploaded image can be surfaced by both image search and RAG/DeepResearch
// context, so both caches must invalidate together.
func (ix *Indexer) IngestImage(ctx context.Context, im relational.ImageAsset) error {
	if err := ix.relational.InsertImageAsset(ctx, im); err != nil {
		return err
	}
	ix.mirrorImage(ctx, im)
	ix.bumpRevision(ctx, revKindImage, im.UserID, im.SpaceID)
	ix.bumpRevision(ctx, revKindText, im.UserID, im.SpaceID)
	return nil
}

// DeleteDocument removes a document (and its chunks/images) from the
// authoritative store, issues a delete-by-query against both secondary
// collections, and bumps both revisions.
func (ix *Indexer) DeleteDocument(ctx context.Context, docID, userID, spaceID string) error {
	if err := ix.relational.DeleteDocumentCascade(ctx, docID, userID); err != nil {
		return err
	}
	if ix.chunks != nil {
		if err := ix.chunks.DeleteDocument(ctx, docID, userID); err != nil {
			log.Warn().Err(err).Str("doc_id", docID).Msg("indexer_secondary_chunk_delete_failed")
		}
	}
	if ix.images != nil {
		if err := ix.images.DeleteDocument(ctx, docID, userID); err != nil {
			log.Warn().Err(err).Str("doc_id", docID).Msg("indexer_secondary_image_delete_failed")
		}
	}
	ix.bumpRevision(ctx, revKindImage, userID, spaceID)
	ix.bumpRevision(ctx, revKindText, userID, spaceID)
	return nil
}

// ReindexDocument rebuilds the secondary mirror for one document from the
// authoritative relational store and reports how many chunks were replayed,
// without touching revisions (a bulk reindex repopulates the same data the
// cache already reflects; it doesn't invalidate anything).
func (ix *Indexer) ReindexDocument(ctx context.Context, docID, userID, spaceID string) (int, error) {
	chunks, err := ix.relational.ChunksForDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	ix.mirrorChunks(ctx, docID, userID, spaceID, chunks)

	images, err := ix.relational.ImagesForDocument(ctx, docID)
	if err != nil {
		return len(chunks), err
	}
	for _, im := range images {
		ix.mirrorImage(ctx, im)
	}
	return len(chunks), nil
}

func (ix *Indexer) mirrorChunks(ctx context.Context, docID, userID, spaceID string, chunks []relational.Chunk) {
	if ix.chunks == nil || len(chunks) == 0 {
		return
	}
	vectors := make([]secondary.ChunkVector, 0, len(chunks))
	now := time.Now()
	for _, c := range chunks {
		vectors = append(vectors, secondary.ChunkVector{Index: c.Index, Text: c.Text, Vector: c.Embedding, CreatedAt: now})
	}
	if err := ix.chunks.IndexChunks(ctx, docID, userID, spaceID, vectors); err != nil {
		log.Warn().Err(err).Str("doc_id", docID).Msg("indexer_secondary_chunk_mirror_failed")
	}
}

func (ix *Indexer) mirrorImage(ctx context.Context, im relational.ImageAsset) {
	if ix.images == nil {
		return
	}
	err := ix.images.IndexImageAsset(ctx, im.DocumentID, im.UserID, im.SpaceID, secondary.ImageAsset{
		ImageID:       im.ID,
		Vector:        im.Embedding,
		Caption:       im.Caption,
		FilePath:      im.Path,
		ThumbnailPath: im.ThumbnailPath,
		Tags:          im.Tags,
		CreatedAt:     im.CreatedAt,
	})
	if err != nil {
		log.Warn().Err(err).Str("image_id", im.ID).Msg("indexer_secondary_image_mirror_failed")
	}
}

func (ix *Indexer) bumpRevision(ctx context.Context, kind, userID, spaceID string) {
	if ix.cache == nil {
		return
	}
	if _, err := ix.cache.BumpRevision(ctx, kind, userID, spaceID); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("indexer_bump_revision_failed")
	}
}
