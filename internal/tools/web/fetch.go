package web

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

// Page is a fetched and cleaned web page.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// Fetcher downloads a page and reduces it to readable Markdown: article
// extraction via readability first, whole-document conversion as fallback.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 10 * time.Second},
		maxBytes: 2 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchMarkdown fetches rawURL and converts it to Markdown. Non-HTML text
// is returned as-is; binary content types are rejected.
func (f *Fetcher) FetchMarkdown(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[int(time.Now().UnixNano())%len(userAgents)])
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.1")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: http %d", rawURL, resp.StatusCode)
	}

	finalURL := resp.Request.URL.String()
	ctype, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	decoded, err := decodeToUTF8(body, ctype, params["charset"])
	if err != nil {
		return nil, err
	}

	switch {
	case ctype == "text/html" || ctype == "application/xhtml+xml":
		return f.htmlToPage(finalURL, string(decoded))
	case strings.HasPrefix(ctype, "text/"):
		return &Page{URL: finalURL, Markdown: strings.TrimSpace(string(decoded))}, nil
	default:
		return nil, fmt.Errorf("fetch %s: unsupported content type %q", rawURL, ctype)
	}
}

func (f *Fetcher) htmlToPage(finalURL, rawHTML string) (*Page, error) {
	content := rawHTML
	title := ""
	if base, err := url.Parse(finalURL); err == nil {
		if art, err := readability.FromReader(strings.NewReader(rawHTML), base); err == nil && strings.TrimSpace(art.Content) != "" {
			content = art.Content
			title = strings.TrimSpace(art.Title)
		}
	}

	md, err := htmltomarkdown.ConvertString(content, converter.WithDomain(origin(finalURL)))
	if err != nil {
		return nil, fmt.Errorf("html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}
	return &Page{URL: finalURL, Title: title, Markdown: md}, nil
}

func decodeToUTF8(b []byte, ctype, charsetLabel string) ([]byte, error) {
	if charsetLabel == "" || strings.EqualFold(charsetLabel, "utf-8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(charsetLabel, strings.NewReader(string(b)))
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", charsetLabel, err)
	}
	return io.ReadAll(r)
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
