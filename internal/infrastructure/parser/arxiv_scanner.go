package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/scanner"
)

const (
	arxivBaseURL = "https://arxiv.org"
	// arxivMaxPages stops runaway paging on listings that never get old enough.
	arxivMaxPages = 20
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivScanner walks an arXiv category listing page by page and keeps the
// entries announced at or after the cutoff.
type ArxivScanner struct {
	client   *http.Client
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

var _ scanner.Scanner = (*ArxivScanner)(nil)

// NewArxivScanner wires an HTTP client; pageSize defaults to 200.
func NewArxivScanner(client *http.Client, log *slog.Logger) *ArxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ArxivScanner{client: client, logger: log, pageSize: 200, now: time.Now}
}

// Kind identifies the strategy inside the registry.
func (a *ArxivScanner) Kind() domain.SourceKind {
	return domain.SourceKindArxiv
}

// Scan pages through the listing until entries fall before the cutoff.
// A failing page ends the scan but keeps whatever earlier pages produced.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) scanner.Result {
	src := req.Source
	var result scanner.Result
	seen := map[string]struct{}{}

	for page, skip := 0, 0; page < arxivMaxPages; page, skip = page+1, skip+a.pageSize {
		pageURL, err := buildPageURL(src.Endpoint, skip, a.pageSize)
		if err != nil {
			result.Errors = append(result.Errors, scanner.NewError(src, scanner.ErrorKindInvalidInput, err))
			return result
		}

		doc, err := a.fetchDocument(ctx, pageURL)
		if err != nil {
			a.logger.Warn("fetch listing failed", "source_id", src.ID, "page", page, "error", err)
			result.Errors = append(result.Errors, scanner.NewError(src, classifyFetchError(ctx, err), err))
			return result
		}

		pageItems, shouldContinue := a.extractItems(doc, req.Cutoff, src)
		for _, item := range pageItems {
			if _, ok := seen[item.ItemID]; ok {
				continue
			}
			seen[item.ItemID] = struct{}{}
			result.Items = append(result.Items, item)
		}

		if !shouldContinue {
			break
		}
	}

	a.logger.Debug("listing processed", "source_id", src.ID, "items", len(result.Items))
	return result
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := fetch(ctx, a.client, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (a *ArxivScanner) extractItems(doc *goquery.Document, cutoff time.Time, src domain.Source) ([]domain.RawItem, bool) {
	var (
		collected    []domain.RawItem
		continueScan = true
		processed    int
	)

	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		dd := dt.Next()
		processed++

		item, ok := parseEntry(dt, dd, src, a.now)
		if !ok {
			return true
		}

		// Listings carry announcement days only, so compare whole days.
		if item.PublishedAt.Before(cutoff.UTC().Truncate(24 * time.Hour)) {
			continueScan = false
			return false
		}
		collected = append(collected, item)
		return true
	})

	if processed < a.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseEntry(dt, dd *goquery.Selection, src domain.Source, now func() time.Time) (domain.RawItem, bool) {
	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")
	if href == "" {
		return domain.RawItem{}, false
	}
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	arxivID := strings.TrimSpace(link.Text())
	if arxivID == "" {
		arxivID = href[strings.LastIndex(href, "/abs/")+len("/abs/"):]
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	abstract := dd.Find("p.mathjax").First().Text()
	abstract = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(abstract), "Abstract:"))
	if abstract == "" {
		return domain.RawItem{}, false
	}
	if title == "" {
		title = extractTitle(abstract)
	}

	authors := strings.TrimSpace(dd.Find(".list-authors").First().Text())
	authors = strings.Join(strings.Fields(strings.TrimPrefix(authors, "Authors:")), " ")

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	publishedAt := now().UTC()
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			publishedAt = parsed
		}
	}

	return domain.RawItem{
		SourceKind:  domain.SourceKindArxiv,
		SourceID:    src.ID,
		ItemID:      domain.ItemID(href, title, abstract),
		Title:       title,
		Content:     abstract,
		Author:      authors,
		PublishedAt: publishedAt,
		URL:         href,
		SourceMetadata: map[string]string{
			"arxiv_id": arxivID,
			"category": src.Name,
		},
	}, true
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
