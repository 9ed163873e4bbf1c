package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/scanner"
)

type fakeScanner struct {
	kind domain.SourceKind
	scan func(ctx context.Context, req scanner.Request) scanner.Result
}

func (f fakeScanner) Kind() domain.SourceKind { return f.kind }

func (f fakeScanner) Scan(ctx context.Context, req scanner.Request) scanner.Result {
	return f.scan(ctx, req)
}

func itemsFor(src domain.Source, n int) []domain.RawItem {
	items := make([]domain.RawItem, n)
	for i := range items {
		items[i] = domain.RawItem{SourceKind: src.Kind, SourceID: src.ID, ItemID: src.ID + string(rune('a'+i))}
	}
	return items
}

func TestStrategySourceOneFailingSource(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(fakeScanner{kind: domain.SourceKindFeed, scan: func(_ context.Context, req scanner.Request) scanner.Result {
		if req.Source.ID == "broken" {
			return scanner.Result{Errors: []domain.CollectionError{
				scanner.NewError(req.Source, scanner.ErrorKindRequest, errors.New("connection refused")),
			}}
		}
		return scanner.Result{Items: itemsFor(req.Source, 2)}
	}})

	sources := []domain.Source{
		{Kind: domain.SourceKindFeed, ID: "one"},
		{Kind: domain.SourceKindFeed, ID: "broken"},
		{Kind: domain.SourceKindFeed, ID: "three"},
		{Kind: domain.SourceKindFeed, ID: "four"},
	}

	out := NewStrategySource(reg, time.Second, nil).Collect(context.Background(), sources, time.Time{})

	require.Len(t, out.Items, 6)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "broken", out.Errors[0].SourceID)
}

func TestStrategySourceKeepsDeclarationOrder(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(fakeScanner{kind: domain.SourceKindFeed, scan: func(_ context.Context, req scanner.Request) scanner.Result {
		// Earlier sources finish last.
		if req.Source.ID == "first" {
			time.Sleep(30 * time.Millisecond)
		}
		return scanner.Result{Items: itemsFor(req.Source, 1)}
	}})

	sources := []domain.Source{
		{Kind: domain.SourceKindFeed, ID: "first"},
		{Kind: domain.SourceKindFeed, ID: "second"},
	}
	out := NewStrategySource(reg, time.Second, nil).Collect(context.Background(), sources, time.Time{})

	require.Len(t, out.Items, 2)
	assert.Equal(t, "first", out.Items[0].SourceID)
	assert.Equal(t, "second", out.Items[1].SourceID)
}

func TestStrategySourceTimeoutDoesNotCancelOthers(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(fakeScanner{kind: domain.SourceKindFeed, scan: func(ctx context.Context, req scanner.Request) scanner.Result {
		if req.Source.ID == "slow" {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return scanner.Result{}
		}
		return scanner.Result{Items: itemsFor(req.Source, 3)}
	}})

	sources := []domain.Source{
		{Kind: domain.SourceKindFeed, ID: "slow"},
		{Kind: domain.SourceKindFeed, ID: "fast"},
	}
	out := NewStrategySource(reg, 20*time.Millisecond, nil).Collect(context.Background(), sources, time.Time{})

	require.Len(t, out.Items, 3)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, scanner.ErrorKindTimeout, out.Errors[0].ErrorKind)
	assert.Equal(t, "slow", out.Errors[0].SourceID)
}

func TestStrategySourceUnknownKindAndPanic(t *testing.T) {
	t.Parallel()

	reg := scanner.NewRegistry()
	reg.Register(fakeScanner{kind: domain.SourceKindFeed, scan: func(context.Context, scanner.Request) scanner.Result {
		panic("bad feed")
	}})

	sources := []domain.Source{
		{Kind: domain.SourceKindMailbox, ID: "inbox"},
		{Kind: domain.SourceKindFeed, ID: "boom"},
	}
	out := NewStrategySource(reg, time.Second, nil).Collect(context.Background(), sources, time.Time{})

	assert.Empty(t, out.Items)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, scanner.ErrorKindUnknownKind, out.Errors[0].ErrorKind)
	assert.Equal(t, domain.SourceKindMailbox, out.Errors[0].SourceKind)
	assert.Equal(t, scanner.ErrorKindPanic, out.Errors[1].ErrorKind)
}

const arxivPageOne = `
<dl>
  <dt><span class="list-identifier"><a href="/abs/2511.00001">arXiv:2511.00001</a></span></dt>
  <dd>
    <div class="list-date">Date: 8 Nov 2025</div>
    <div class="list-title mathjax">Title: First Paper</div>
    <p class="mathjax">Abstract: first.</p>
  </dd>
  <dt><span class="list-identifier"><a href="/abs/2511.00002">arXiv:2511.00002</a></span></dt>
  <dd>
    <div class="list-date">Date: 8 Nov 2025</div>
    <div class="list-title mathjax">Title: Second Paper</div>
    <p class="mathjax">Abstract: second.</p>
  </dd>
</dl>`

func TestStrategySourceTimeoutKeepsParsedPages(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("skip") != "0" {
			<-r.Context().Done()
			return
		}
		_, _ = w.Write([]byte(arxivPageOne))
	}))
	defer server.Close()

	sc := NewArxivScanner(server.Client(), nil)
	sc.pageSize = 2
	reg := scanner.NewRegistry()
	reg.Register(sc)

	sources := []domain.Source{{
		Kind:     domain.SourceKindArxiv,
		ID:       "arxiv-ai",
		Name:     "cs.AI",
		Endpoint: server.URL + "/list/cs.AI",
	}}
	cutoff := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

	out := NewStrategySource(reg, 300*time.Millisecond, nil).Collect(context.Background(), sources, cutoff)

	require.Len(t, out.Items, 2)
	assert.Equal(t, "First Paper", out.Items[0].Title)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, scanner.ErrorKindTimeout, out.Errors[0].ErrorKind)
	assert.Equal(t, "arxiv-ai", out.Errors[0].SourceID)
}

func TestStrategySourceAbandonsScannerAfterGrace(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	reg := scanner.NewRegistry()
	reg.Register(fakeScanner{kind: domain.SourceKindFeed, scan: func(_ context.Context, req scanner.Request) scanner.Result {
		<-release
		return scanner.Result{Items: itemsFor(req.Source, 1)}
	}})

	src := NewStrategySource(reg, 20*time.Millisecond, nil)
	src.grace = 20 * time.Millisecond

	out := src.Collect(context.Background(), []domain.Source{{Kind: domain.SourceKindFeed, ID: "stuck"}}, time.Time{})

	assert.Empty(t, out.Items)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, scanner.ErrorKindTimeout, out.Errors[0].ErrorKind)
}
