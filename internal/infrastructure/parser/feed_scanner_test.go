package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/scanner"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Sample AI Blog</title>
  <link>https://blog.example.com</link>
  <item>
    <title>Fresh release</title>
    <link>https://blog.example.com/posts/fresh/?utm_source=rss</link>
    <guid>fresh-1</guid>
    <description>Short teaser.</description>
    <dc:creator>Grace Hopper</dc:creator>
    <category>releases</category>
    <category>llm</category>
    <pubDate>Mon, 10 Mar 2025 12:00:00 +0000</pubDate>
  </item>
  <item>
    <link>https://blog.example.com/posts/untitled</link>
    <description><![CDATA[<h2>Heading From Body</h2><p>Body text.</p>]]></description>
    <pubDate>Mon, 10 Mar 2025 08:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Stale post</title>
    <link>https://blog.example.com/posts/stale</link>
    <description>Old news.</description>
    <pubDate>Mon, 03 Mar 2025 12:00:00 +0000</pubDate>
  </item>
  <item>
    <title>No link</title>
    <description>Nowhere to go.</description>
    <pubDate>Mon, 10 Mar 2025 12:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Empty body</title>
    <link>https://blog.example.com/posts/empty</link>
    <pubDate>Mon, 10 Mar 2025 12:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFeedScannerScan(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t, http.StatusOK, sampleRSS)
	src := domain.Source{Kind: domain.SourceKindFeed, ID: "blog", Name: "Sample", Endpoint: server.URL}

	res := NewFeedScanner(server.Client(), nil).Scan(context.Background(), scanner.Request{
		Source: src,
		Cutoff: time.Date(2025, time.March, 9, 0, 0, 0, 0, time.UTC),
	})

	require.Empty(t, res.Errors)
	require.Len(t, res.Items, 2)

	first := res.Items[0]
	assert.Equal(t, "Fresh release", first.Title)
	assert.Equal(t, "Short teaser.", first.Content)
	assert.Equal(t, "Grace Hopper", first.Author)
	assert.Equal(t, domain.SourceKindFeed, first.SourceKind)
	assert.Equal(t, "blog", first.SourceID)
	assert.Equal(t, domain.ItemID("https://blog.example.com/posts/fresh", "", ""), first.ItemID)
	assert.Equal(t, "releases,llm", first.SourceMetadata["tags"])
	assert.Equal(t, "Sample AI Blog", first.SourceMetadata["feed_title"])
	assert.True(t, first.PublishedAt.Equal(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)))

	assert.Equal(t, "Heading From Body", res.Items[1].Title)
}

func TestFeedScannerHTTPError(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t, http.StatusNotFound, "")
	res := NewFeedScanner(server.Client(), nil).Scan(context.Background(), scanner.Request{
		Source: domain.Source{Kind: domain.SourceKindFeed, ID: "gone", Endpoint: server.URL},
	})

	assert.Empty(t, res.Items)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, scanner.ErrorKindHTTPStatus, res.Errors[0].ErrorKind)
	assert.Equal(t, "gone", res.Errors[0].SourceID)
}

func TestFeedScannerParseError(t *testing.T) {
	t.Parallel()

	server := newFeedServer(t, http.StatusOK, "this is not a feed")
	res := NewFeedScanner(server.Client(), nil).Scan(context.Background(), scanner.Request{
		Source: domain.Source{Kind: domain.SourceKindFeed, ID: "junk", Endpoint: server.URL},
	})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, scanner.ErrorKindParse, res.Errors[0].ErrorKind)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"2025-03-10":                      time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		"2025-03-10 08:15:00":             time.Date(2025, time.March, 10, 8, 15, 0, 0, time.UTC),
		"Mon, 10 Mar 2025 12:00:00 +0200": time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, ok := parseDate(raw)
		require.True(t, ok, raw)
		assert.True(t, got.Equal(want), "%s: got %v", raw, got)
	}

	_, ok := parseDate("yesterday-ish")
	assert.False(t, ok)
}
