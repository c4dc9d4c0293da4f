package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/shadabshaukat/spaces-ai/internal/config"
)

// Client calls the configured HTTP embedding service. It implements both
// Embedder (text endpoint) and ImageEmbedder (cross-modal endpoints).
//
// Requests are serialized: some self-hosted embedding servers crash under
// concurrent batches, and the contract only promises a pure function, not
// reentrancy.
type Client struct {
	cfg  config.EmbeddingConfig
	http *http.Client
	mu   sync.Mutex
}

func NewClient(cfg config.EmbeddingConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) Name() string   { return c.cfg.Model }
func (c *Client) Dimension() int { return c.cfg.TextDimensions }

func (c *Client) ImageDimension() int { return c.cfg.ImageDimensions }

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.EmbedBatch(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint unreachable: %w", err)
	}
	return nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.post(ctx, c.textPath(), c.cfg.Model, map[string]any{
		"model": c.cfg.Model,
		"input": texts,
	}, len(texts))
}

func (c *Client) EmbedImageTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return c.post(ctx, c.imageTextPath(), c.imageModel(), map[string]any{
		"model": c.imageModel(),
		"input": texts,
	}, len(texts))
}

func (c *Client) EmbedImagePaths(ctx context.Context, paths []string) ([][]float32, error) {
	images := make([]string, len(paths))
	for i, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read image %s: %w", p, err)
		}
		images[i] = base64.StdEncoding.EncodeToString(b)
	}
	return c.post(ctx, c.imagePath(), c.imageModel(), map[string]any{
		"model":  c.imageModel(),
		"images": images,
	}, len(paths))
}

func (c *Client) textPath() string {
	return c.cfg.Path
}

func (c *Client) imagePath() string {
	if c.cfg.ImagePath != "" {
		return c.cfg.ImagePath
	}
	return "/v1/image-embeddings"
}

func (c *Client) imageTextPath() string {
	if c.cfg.ImageTextPath != "" {
		return c.cfg.ImageTextPath
	}
	return c.imagePath()
}

func (c *Client) imageModel() string {
	if c.cfg.ImageModel != "" {
		return c.cfg.ImageModel
	}
	return c.cfg.Model
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) post(ctx context.Context, path, model string, payload map[string]any, want int) ([][]float32, error) {
	if want == 0 {
		return nil, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuthHeaders(req)

	c.mu.Lock()
	resp, err := c.http.Do(req)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedding %s (%s): %s: %s", path, model, resp.Status, truncate(respBody, 200))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %s: %w", truncate(respBody, 200), err)
	}
	if len(parsed.Data) != want {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(parsed.Data), want)
	}
	out := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		out[i] = parsed.Data[i].Embedding
	}
	return out, nil
}

// setAuthHeaders applies the explicit headers map first, then the legacy
// api_header/api_key pair for any header the map did not already set.
func (c *Client) setAuthHeaders(req *http.Request) {
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if c.cfg.APIHeader == "" || c.cfg.APIKey == "" {
		return
	}
	if req.Header.Get(c.cfg.APIHeader) != "" {
		return
	}
	if c.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	} else {
		req.Header.Set(c.cfg.APIHeader, c.cfg.APIKey)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
