package urlingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollapseWhitespace(t *testing.T) {
	require.Equal(t, "a b c", collapseWhitespace("a\n\n  b\t\tc  "))
}

func TestResolveLinkRelative(t *testing.T) {
	require.Equal(t, "https://example.com/foo/bar", resolveLink("https://example.com/foo/", "bar"))
}

func TestResolveLinkRejectsNonHTTP(t *testing.T) {
	require.Equal(t, "", resolveLink("https://example.com", "mailto:a@b.com"))
}

func TestRegisteredDomain(t *testing.T) {
	dom, err := registeredDomain("https://docs.example.co.uk/path")
	require.NoError(t, err)
	require.Equal(t, "example.co.uk", dom)
}

func TestExtractHTMLStripsScriptAndCollectsLinks(t *testing.T) {
	body := []byte(`<html><head><title>Hi</title><style>body{}</style></head>
<body><script>evil()</script><p>Hello <a href="/a">world</a></p></body></html>`)
	title, text, links := extractHTML(body)
	require.Equal(t, "Hi", title)
	require.Contains(t, text, "Hello")
	require.NotContains(t, text, "evil")
	require.Contains(t, links, "/a")
}

func TestDocIDDeterministic(t *testing.T) {
	a := docID("u1", "c1", "https://x", 0)
	b := docID("u1", "c1", "https://x", 0)
	require.Equal(t, a, b)
	c := docID("u1", "c1", "https://x", 1)
	require.NotEqual(t, a, c)
}

func TestCrawlOptionsNormalized(t *testing.T) {
	o := CrawlOptions{}.normalized()
	require.Equal(t, 1, o.MaxDepth)
	require.Equal(t, 10, o.MaxPages)
}
