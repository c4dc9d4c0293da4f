// Package web holds the outbound web clients shared by the web research
// agent and the external URL ingestor: a SearXNG search client and a page
// fetcher.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// SearchResult is one parsed search-engine hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchConfig bounds request rate and retries against the SearXNG instance.
// Public instances ban aggressive clients, so the defaults stay slow.
type SearchConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Timeout           time.Duration
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RequestsPerSecond: 0.5,
		BurstSize:         2,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		Timeout:           12 * time.Second,
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

// SearchClient queries a SearXNG instance, preferring its JSON API and
// falling back to scraping the HTML results page when JSON is disabled.
type SearchClient struct {
	http    *http.Client
	baseURL string
	cfg     SearchConfig
	limiter *tokenBucket
}

func NewSearchClient(searxngURL string, cfg SearchConfig) *SearchClient {
	if cfg.RequestsPerSecond <= 0 {
		cfg = DefaultSearchConfig()
	}
	refill := time.Duration(float64(time.Second) / cfg.RequestsPerSecond)
	return &SearchClient{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimSuffix(searxngURL, "/"),
		cfg:     cfg,
		limiter: newTokenBucket(cfg.BurstSize, refill),
	}
}

// Search returns up to max results for query, retrying transient failures
// with exponential backoff.
func (c *SearchClient) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if max <= 0 || max > 10 {
		max = 5
	}
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.BaseDelay * (1 << (attempt - 1))
			if delay > c.cfg.MaxDelay {
				delay = c.cfg.MaxDelay
			}
			// Jitter up to half the delay, seeded off the clock.
			delay += time.Duration(time.Now().UnixNano() % int64(delay/2+1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		results, err := c.searchJSON(ctx, query, max)
		if err == nil && len(results) > 0 {
			return results, nil
		}
		if err != nil {
			lastErr = err
		}
		results, err = c.searchHTML(ctx, query, max)
		if err == nil && len(results) > 0 {
			return results, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return nil, fmt.Errorf("search failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *SearchClient) get(ctx context.Context, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[int(time.Now().UnixNano())%len(userAgents)])
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("searxng http %d", resp.StatusCode)
	}
	return resp, nil
}

func (c *SearchClient) searchJSON(ctx context.Context, query string, max int) ([]SearchResult, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	resp, err := c.get(ctx, v)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, max)
	for _, r := range parsed.Results {
		if len(out) >= max {
			break
		}
		out = append(out, SearchResult{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Snippet: strings.TrimSpace(r.Content),
		})
	}
	return out, nil
}

func (c *SearchClient) searchHTML(ctx context.Context, query string, max int) ([]SearchResult, error) {
	v := url.Values{}
	v.Set("q", query)
	resp, err := c.get(ctx, v)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var out []SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attrValue(n, "href"); strings.HasPrefix(href, "http") {
				if _, dup := seen[href]; !dup {
					seen[href] = struct{}{}
					title := strings.TrimSpace(textContent(n))
					if title == "" {
						if u, err := url.Parse(href); err == nil {
							title = u.Host + u.Path
						}
					}
					out = append(out, SearchResult{Title: title, URL: href})
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return out, nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// tokenBucket throttles outbound search requests.
type tokenBucket struct {
	mu       sync.Mutex
	capacity int
	tokens   int
	refillAt time.Time
	refill   time.Duration
}

func newTokenBucket(capacity int, refill time.Duration) *tokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &tokenBucket{capacity: capacity, tokens: capacity, refillAt: time.Now(), refill: refill}
}

func (tb *tokenBucket) take() (ok bool, retryIn time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	if now.After(tb.refillAt) {
		added := int(now.Sub(tb.refillAt) / tb.refill)
		if added > 0 {
			tb.tokens += added
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.refillAt = tb.refillAt.Add(time.Duration(added) * tb.refill)
		}
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}
	wait := time.Until(tb.refillAt)
	if wait <= 0 {
		wait = tb.refill
	}
	return false, wait
}

func (tb *tokenBucket) wait(ctx context.Context) error {
	for {
		ok, retryIn := tb.take()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryIn):
		}
	}
}
