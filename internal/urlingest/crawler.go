package urlingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/publicsuffix"

	"github.com/shadabshaukat/spaces-ai/internal/apperr"
	"github.com/shadabshaukat/spaces-ai/internal/chunker"
	"github.com/shadabshaukat/spaces-ai/internal/embedder"
)

const maxFetchBytes = 200 * 1024

// CrawlOptions bounds one ingestion run.
type CrawlOptions struct {
	MaxDepth int
	MaxPages int
	UserID   string
	SpaceID  string
	ConversationID string
}

func (o CrawlOptions) normalized() CrawlOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 1
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 10
	}
	return o
}

// Crawler performs bounded BFS ingestion of external URLs.
type Crawler struct {
	store    *Store
	embedder embedder.Embedder
	splitter chunker.Splitter
	client   *http.Client
}

func NewCrawler(store *Store, emb embedder.Embedder, splitter chunker.Splitter) *Crawler {
	if splitter == nil {
		splitter = &chunker.Fixed{Size: 1200, Overlap: 150}
	}
	return &Crawler{store: store, embedder: emb, splitter: splitter, client: &http.Client{Timeout: 15 * time.Second}}
}

type queued struct {
	url   string
	depth int
	parent string
}

// Crawl walks seedURL breadth-first, following only same-registered-domain
// links, up to MaxDepth/MaxPages, persisting chunked+embedded pages into
// ConversationExternalDoc.
func (c *Crawler) Crawl(ctx context.Context, seedURL string, opts CrawlOptions) (int, error) {
	opts = opts.normalized()
	rootDomain, err := registeredDomain(seedURL)
	if err != nil {
		return 0, apperr.New("urlingest.Crawl", apperr.InvalidArgument, err)
	}

	visited := map[string]bool{}
	queue := []queued{{url: seedURL, depth: 0}}
	pages := 0

	for len(queue) > 0 && pages < opts.MaxPages {
		item := queue[0]
		queue = queue[1:]
		if visited[item.url] {
			continue
		}
		visited[item.url] = true

		body, contentType, err := c.fetch(ctx, item.url)
		if err != nil {
			log.Warn().Err(err).Str("url", item.url).Msg("urlingest_fetch_failed")
			continue
		}
		if !strings.HasPrefix(contentType, "text/html") {
			continue
		}

		title, text, links := extractHTML(body)
		text = collapseWhitespace(text)
		if text == "" {
			continue
		}

		if err := c.persistPage(ctx, item, opts, title, text); err != nil {
			log.Warn().Err(err).Str("url", item.url).Msg("urlingest_persist_failed")
			continue
		}
		pages++

		if item.depth >= opts.MaxDepth {
			continue
		}
		for _, link := range links {
			abs := resolveLink(item.url, link)
			if abs == "" || visited[abs] {
				continue
			}
			dom, err := registeredDomain(abs)
			if err != nil || dom != rootDomain {
				continue
			}
			queue = append(queue, queued{url: abs, depth: item.depth + 1, parent: item.url})
		}
	}
	return pages, nil
}

func (c *Crawler) fetch(ctx context.Context, rawURL string) (body []byte, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "spaces-ai-urlingest/1.0")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	contentType = resp.Header.Get("Content-Type")
	limited := io.LimitReader(resp.Body, maxFetchBytes)
	b, err := io.ReadAll(limited)
	if err != nil {
		return nil, contentType, err
	}
	return b, contentType, nil
}

func (c *Crawler) persistPage(ctx context.Context, item queued, opts CrawlOptions, title, text string) error {
	chunks := c.splitter.Split(text)
	if len(chunks) == 0 {
		return nil
	}
	vectors, err := c.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return apperr.New("urlingest.persistPage", apperr.Internal, err)
	}
	for i, chunk := range chunks {
		var vec []float32
		if i < len(vectors) {
			vec = vectors[i]
		}
		doc := ExternalDoc{
			ID:             docID(opts.UserID, opts.ConversationID, item.url, i),
			UserID:         opts.UserID,
			SpaceID:        opts.SpaceID,
			ConversationID: opts.ConversationID,
			URL:            item.url,
			ParentURL:      item.parent,
			Depth:          item.depth,
			ChunkIndex:     i,
			Title:          title,
			Content:        chunk,
			Snippet:        snippetOf(chunk),
			ContentHash:    contentHash(chunk),
			Embedding:      vec,
		}
		if err := c.store.Upsert(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func docID(userID, conversationID, url string, chunkIndex int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", userID, conversationID, url, chunkIndex)
	return hex.EncodeToString(h.Sum(nil))
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func snippetOf(s string) string {
	if len(s) > 240 {
		return s[:240]
	}
	return s
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// extractHTML strips script/style/noscript and returns the page title,
// the remaining visible text, and the hrefs of every anchor tag.
func extractHTML(body []byte) (title, text string, links []string) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", "", nil
	}
	var b strings.Builder
	var walk func(n *html.Node)
	skip := map[string]bool{"script": true, "style": true, "noscript": true}
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = n.FirstChild.Data
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					links = append(links, attr.Val)
				}
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, b.String(), links
}

func resolveLink(base, href string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(refURL)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func registeredDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", apperr.New("urlingest.registeredDomain", apperr.InvalidArgument, fmt.Errorf("no host in %q", rawURL))
	}
	dom, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// IP literals and single-label hosts have no public-suffix entry;
		// fall back to the bare host.
		return host, nil
	}
	return dom, nil
}
