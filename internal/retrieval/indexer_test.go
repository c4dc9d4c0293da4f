package retrieval

import (
	"context"
	"testing"

	"github.com/shadabshaukat/spaces-ai/internal/store/relational"
	"github.com/shadabshaukat/spaces-ai/internal/store/secondary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexerRelational struct {
	calls              map[string]int
	chunksForDocument  []relational.Chunk
	imagesForDocument  []relational.ImageAsset
	deleteErr          error
}

func (f *fakeIndexerRelational) InsertDocument(_ context.Context, _ relational.Document) error {
	f.calls["insert_document"]++
	return nil
}

func (f *fakeIndexerRelational) InsertChunks(_ context.Context, _ []relational.Chunk) error {
	f.calls["insert_chunks"]++
	return nil
}

func (f *fakeIndexerRelational) ChunksForDocument(_ context.Context, _ string) ([]relational.Chunk, error) {
	f.calls["chunks_for_document"]++
	return f.chunksForDocument, nil
}

func (f *fakeIndexerRelational) DeleteDocumentCascade(_ context.Context, _, _ string) error {
	f.calls["delete_cascade"]++
	return f.deleteErr
}

func (f *fakeIndexerRelational) InsertImageAsset(_ context.Context, _ relational.ImageAsset) error {
	f.calls["insert_image"]++
	return nil
}

func (f *fakeIndexerRelational) ImagesForDocument(_ context.Context, _ string) ([]relational.ImageAsset, error) {
	f.calls["images_for_document"]++
	return f.imagesForDocument, nil
}

type fakeIndexerChunks struct {
	calls        map[string]int
	lastChunks   []secondary.ChunkVector
}

func (f *fakeIndexerChunks) IndexChunks(_ context.Context, _, _, _ string, chunks []secondary.ChunkVector) error {
	f.calls["index_chunks"]++
	f.lastChunks = chunks
	return nil
}

func (f *fakeIndexerChunks) DeleteDocument(_ context.Context, _, _ string) error {
	f.calls["delete_document"]++
	return nil
}

type fakeIndexerImages struct {
	calls      map[string]int
	lastImages []secondary.ImageAsset
}

func (f *fakeIndexerImages) IndexImageAsset(_ context.Context, _, _, _ string, im secondary.ImageAsset) error {
	f.calls["index_image"]++
	f.lastImages = append(f.lastImages, im)
	return nil
}

func (f *fakeIndexerImages) DeleteDocument(_ context.Context, _, _ string) error {
	f.calls["delete_document"]++
	return nil
}

func newTestIndexer() (*Indexer, *fakeIndexerRelational, *fakeIndexerChunks, *fakeIndexerImages) {
	rel := &fakeIndexerRelational{calls: map[string]int{}}
	chunks := &fakeIndexerChunks{calls: map[string]int{}}
	images := &fakeIndexerImages{calls: map[string]int{}}
	ix := NewIndexer(rel, chunks, images, nil)
	return ix, rel, chunks, images
}

func TestIngestDocumentWritesRelationalThenMirrorsChunks(t *testing.T) {
	ix, rel, chunks, _ := newTestIndexer()
	doc := relational.Document{ID: "d1", UserID: "u1", SpaceID: "s1"}
	cs := []relational.Chunk{{ID: "d1#0", DocumentID: "d1", Index: 0, Text: "hello", Embedding: []float32{0.1}}}

	err := ix.IngestDocument(context.Background(), doc, cs)
	require.NoError(t, err)
	require.Equal(t, 1, rel.calls["insert_document"])
	require.Equal(t, 1, rel.calls["insert_chunks"])
	require.Equal(t, 1, chunks.calls["index_chunks"])
	require.Len(t, chunks.lastChunks, 1)
	require.Equal(t, "hello", chunks.lastChunks[0].Text)
}

func TestIngestDocumentSkipsMirrorWithNoSecondaryConfigured(t *testing.T) {
	rel := &fakeIndexerRelational{calls: map[string]int{}}
	ix := NewIndexer(rel, nil, nil, nil)
	doc := relational.Document{ID: "d1", UserID: "u1"}
	cs := []relational.Chunk{{ID: "d1#0", DocumentID: "d1", Index: 0, Text: "hello"}}
	err := ix.IngestDocument(context.Background(), doc, cs)
	require.NoError(t, err)
	require.Equal(t, 1, rel.calls["insert_chunks"])
}

func TestIngestImageMirrorsIntoImagesCollection(t *testing.T) {
	ix, rel, _, images := newTestIndexer()
	im := relational.ImageAsset{ID: "img1", DocumentID: "d1", UserID: "u1", SpaceID: "s1", Caption: "a cat", Path: "p.png"}

	err := ix.IngestImage(context.Background(), im)
	require.NoError(t, err)
	require.Equal(t, 1, rel.calls["insert_image"])
	require.Equal(t, 1, images.calls["index_image"])
	require.Len(t, images.lastImages, 1)
	require.Equal(t, "img1", images.lastImages[0].ImageID)
	require.Equal(t, "a cat", images.lastImages[0].Caption)
}

func TestDeleteDocumentIssuesSecondaryDeleteForBothCollections(t *testing.T) {
	ix, rel, chunks, images := newTestIndexer()
	err := ix.DeleteDocument(context.Background(), "d1", "u1", "s1")
	require.NoError(t, err)
	require.Equal(t, 1, rel.calls["delete_cascade"])
	require.Equal(t, 1, chunks.calls["delete_document"])
	require.Equal(t, 1, images.calls["delete_document"])
}

func TestDeleteDocumentStopsOnRelationalFailure(t *testing.T) {
	rel := &fakeIndexerRelational{calls: map[string]int{}, deleteErr: assert.AnError}
	chunks := &fakeIndexerChunks{calls: map[string]int{}}
	images := &fakeIndexerImages{calls: map[string]int{}}
	ix := NewIndexer(rel, chunks, images, nil)

	err := ix.DeleteDocument(context.Background(), "d1", "u1", "s1")
	require.Error(t, err)
	require.Equal(t, 0, chunks.calls["delete_document"])
	require.Equal(t, 0, images.calls["delete_document"])
}

func TestReindexDocumentReplaysChunksAndImages(t *testing.T) {
	ix, rel, chunks, images := newTestIndexer()
	rel.chunksForDocument = []relational.Chunk{{ID: "d1#0", DocumentID: "d1", Index: 0, Text: "hello"}}
	rel.imagesForDocument = []relational.ImageAsset{{ID: "img1", DocumentID: "d1", Caption: "a cat"}}

	n, err := ix.ReindexDocument(context.Background(), "d1", "u1", "s1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, rel.calls["chunks_for_document"])
	require.Equal(t, 1, rel.calls["images_for_document"])
	require.Equal(t, 1, chunks.calls["index_chunks"])
	require.Equal(t, 1, images.calls["index_image"])
}
