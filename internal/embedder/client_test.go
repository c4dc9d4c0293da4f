package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadabshaukat/spaces-ai/internal/config"
)

func embedServer(t *testing.T, check func(r *http.Request, body map[string]any), dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(r, body)
		}
		n := 1
		if in, ok := body["input"].([]any); ok {
			n = len(in)
		} else if imgs, ok := body["images"].([]any); ok {
			n = len(imgs)
		}
		data := make([]map[string]any, n)
		for i := range data {
			vec := make([]float32, dims)
			vec[0] = float32(i) + 0.5
			data[i] = map[string]any{"embedding": vec}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
	}))
}

func TestEmbedBatchReturnsOneVectorPerInput(t *testing.T) {
	ts := embedServer(t, func(r *http.Request, body map[string]any) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "bge-small", body["model"])
	}, 4)
	defer ts.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: ts.URL, Path: "/v1/embeddings", Model: "bge-small", TextDimensions: 4}, ts.Client())
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	require.Len(t, vecs[0], 4)
}

func TestEmbedBatchEmptyInputIsNoOp(t *testing.T) {
	c := NewClient(config.EmbeddingConfig{BaseURL: "http://localhost:1", Path: "/x"}, nil)
	vecs, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestAuthHeadersMapWinsOverLegacyPair(t *testing.T) {
	ts := embedServer(t, func(r *http.Request, _ map[string]any) {
		require.Equal(t, "Token abc", r.Header.Get("Authorization"))
		require.Equal(t, "xyz", r.Header.Get("x-api-key"))
	}, 2)
	defer ts.Close()

	c := NewClient(config.EmbeddingConfig{
		BaseURL:   ts.URL,
		Path:      "/v1/embeddings",
		Model:     "m",
		APIHeader: "Authorization",
		APIKey:    "legacy",
		Headers:   map[string]string{"Authorization": "Token abc", "x-api-key": "xyz"},
	}, ts.Client())
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
}

func TestLegacyAuthorizationBearer(t *testing.T) {
	ts := embedServer(t, func(r *http.Request, _ map[string]any) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
	}, 2)
	defer ts.Close()

	c := NewClient(config.EmbeddingConfig{
		BaseURL: ts.URL, Path: "/v1/embeddings", Model: "m",
		APIHeader: "Authorization", APIKey: "secret",
	}, ts.Client())
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
}

func TestEmbedImageTextsUsesImageModelAndPath(t *testing.T) {
	ts := embedServer(t, func(r *http.Request, body map[string]any) {
		require.Equal(t, "/v1/image-embeddings", r.URL.Path)
		require.Equal(t, "clip-vit", body["model"])
	}, 8)
	defer ts.Close()

	c := NewClient(config.EmbeddingConfig{
		BaseURL: ts.URL, Path: "/v1/embeddings", Model: "text-model",
		ImageModel: "clip-vit", ImageDimensions: 8,
	}, ts.Client())
	vecs, err := c.EmbedImageTexts(context.Background(), []string{"a red bicycle"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, vecs[0], 8)
}

func TestEmbedImagePathsEncodesFiles(t *testing.T) {
	var gotImages int
	ts := embedServer(t, func(r *http.Request, body map[string]any) {
		imgs := body["images"].([]any)
		gotImages = len(imgs)
		require.NotEmpty(t, imgs[0].(string))
	}, 8)
	defer ts.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4e, 0x47}, 0o644))

	c := NewClient(config.EmbeddingConfig{BaseURL: ts.URL, Model: "m", ImageDimensions: 8}, ts.Client())
	vecs, err := c.EmbedImagePaths(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Equal(t, 1, gotImages)
}

func TestEmbedBatchCountMismatchIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1]}]}`))
	}))
	defer ts.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: ts.URL, Path: "/e", Model: "m"}, ts.Client())
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestDeterministicEmbedderIsDeterministic(t *testing.T) {
	e := NewDeterministic(32, true, 7)
	a, err := e.EmbedBatch(context.Background(), []string{"same input"})
	require.NoError(t, err)
	b, err := e.EmbedBatch(context.Background(), []string{"same input"})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a[0], 32)
}

func TestCrossModalTextAdapter(t *testing.T) {
	ts := embedServer(t, nil, 8)
	defer ts.Close()

	inner := NewClient(config.EmbeddingConfig{BaseURL: ts.URL, Model: "m", ImageDimensions: 8}, ts.Client())
	adapter := &CrossModalText{Inner: inner, Model: "clip-text"}
	vecs, err := adapter.EmbedBatch(context.Background(), []string{"query"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Equal(t, 8, adapter.Dimension())
	require.Equal(t, "clip-text", adapter.Name())
}
