package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/scanner"
)

// dateLayouts are tried, in order, when gofeed could not parse an entry date.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FeedScanner collects RSS, Atom and JSON feeds.
type FeedScanner struct {
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// NewFeedScanner wires an HTTP client; a nil client gets a 30 second timeout.
func NewFeedScanner(client *http.Client, log *slog.Logger) *FeedScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &FeedScanner{client: client, logger: log, now: time.Now}
}

// Kind identifies the strategy inside the registry.
func (f *FeedScanner) Kind() domain.SourceKind {
	return domain.SourceKindFeed
}

// Scan fetches one feed and returns every entry published at or after the cutoff.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) scanner.Result {
	src := req.Source
	log := f.logger.With("source_id", src.ID, "source_name", src.Name)

	body, err := fetch(ctx, f.client, src.Endpoint)
	if err != nil {
		log.Warn("fetch feed failed", "error", err)
		return scanner.Result{Errors: []domain.CollectionError{
			scanner.NewError(src, classifyFetchError(ctx, err), err),
		}}
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		log.Warn("parse feed failed", "error", err)
		return scanner.Result{Errors: []domain.CollectionError{
			scanner.NewError(src, scanner.ErrorKindParse, fmt.Errorf("parse feed: %w", err)),
		}}
	}

	items := make([]domain.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		item, ok := f.toRawItem(src, feed, entry)
		if !ok {
			continue
		}
		if item.PublishedAt.Before(req.Cutoff) {
			continue
		}
		items = append(items, item)
	}

	log.Debug("feed processed", "entries", len(feed.Items), "items", len(items))
	return scanner.Result{Items: items}
}

func (f *FeedScanner) toRawItem(src domain.Source, feed *gofeed.Feed, entry *gofeed.Item) (domain.RawItem, bool) {
	link := entryLink(entry)
	if link == "" {
		return domain.RawItem{}, false
	}

	content := longest(entry.Content, entry.Description)
	if strings.TrimSpace(content) == "" {
		return domain.RawItem{}, false
	}

	title := strings.TrimSpace(entry.Title)
	if title == "" {
		title = extractTitle(content)
	}

	item := domain.RawItem{
		SourceKind:  domain.SourceKindFeed,
		SourceID:    src.ID,
		ItemID:      domain.ItemID(link, title, content),
		Title:       title,
		Content:     content,
		Author:      entryAuthor(feed, entry),
		PublishedAt: f.publishedAt(entry),
		URL:         link,
		SourceMetadata: map[string]string{
			"feed_name":  src.Name,
			"feed_title": feed.Title,
			"entry_id":   entry.GUID,
			"tags":       strings.Join(entry.Categories, ","),
		},
	}
	return item, true
}

// entryLink prefers the explicit link, falling back to an http GUID.
func entryLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	for _, link := range entry.Links {
		if link = strings.TrimSpace(link); link != "" {
			return link
		}
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

func entryAuthor(feed *gofeed.Feed, entry *gofeed.Item) string {
	for _, person := range entry.Authors {
		if person != nil && strings.TrimSpace(person.Name) != "" {
			return strings.TrimSpace(person.Name)
		}
	}
	if entry.DublinCoreExt != nil {
		for _, creator := range entry.DublinCoreExt.Creator {
			if strings.TrimSpace(creator) != "" {
				return strings.TrimSpace(creator)
			}
		}
	}
	for _, person := range feed.Authors {
		if person != nil && strings.TrimSpace(person.Name) != "" {
			return strings.TrimSpace(person.Name)
		}
	}
	return ""
}

// publishedAt normalises the many date shapes feeds use. An unparsable date
// is treated as now so the entry is kept rather than failed.
func (f *FeedScanner) publishedAt(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	for _, raw := range []string{entry.Published, entry.Updated} {
		if parsed, ok := parseDate(raw); ok {
			return parsed
		}
	}
	f.logger.Debug("unparsable entry date, using now", "title", entry.Title)
	return f.now().UTC()
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func longest(candidates ...string) string {
	var best string
	for _, c := range candidates {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}
