package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

type fakeSummarizer struct {
	calls     atomic.Int64
	inFlight  atomic.Int64
	maxFlight atomic.Int64
	fn        func(ctx context.Context, req ports.SummaryRequest) (ports.Summary, error)
}

func (f *fakeSummarizer) Summarize(ctx context.Context, req ports.SummaryRequest) (ports.Summary, error) {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxFlight.Load()
		if current <= seen || f.maxFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.fn == nil {
		return validSummary(req.Item.Title), nil
	}
	return f.fn(ctx, req)
}

type fakeEmbedder struct {
	fn func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.fn(ctx, text)
}

type fakeCollector struct {
	fn func(ctx context.Context, sources []domain.Source, cutoff time.Time) ports.Collection
}

func (f *fakeCollector) Collect(ctx context.Context, sources []domain.Source, cutoff time.Time) ports.Collection {
	return f.fn(ctx, sources, cutoff)
}

type finishedRun struct {
	status   domain.RunStatus
	counters domain.RunCounters
	message  string
}

// fakeStore records writes and fails the item ids listed in failIDs.
type fakeStore struct {
	mu        sync.Mutex
	items     map[string]domain.ProcessedItem
	failIDs   map[string]bool
	batchErr  error
	createErr error
	created   []domain.PipelineRun
	finished  map[string]finishedRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:    map[string]domain.ProcessedItem{},
		failIDs:  map[string]bool{},
		finished: map[string]finishedRun{},
	}
}

func (s *fakeStore) UpsertItems(_ context.Context, items []domain.ProcessedItem) (ports.WriteReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchErr != nil {
		return ports.WriteReport{}, s.batchErr
	}
	var report ports.WriteReport
	for _, item := range items {
		if s.failIDs[item.ItemID] {
			report.Failures = append(report.Failures, ports.ItemWriteFailure{
				ItemID: item.ItemID,
				Err:    errors.New("violates check constraint"),
			})
			continue
		}
		s.items[item.ItemID] = item
		report.Written++
	}
	return report, nil
}

func (s *fakeStore) CreateRun(_ context.Context, run domain.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, run)
	return nil
}

func (s *fakeStore) FinishRun(_ context.Context, runID string, status domain.RunStatus, counters domain.RunCounters, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[runID] = finishedRun{status: status, counters: counters, message: message}
	return nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	n.messages = append(n.messages, digest)
	return n.err
}

func validSummary(title string) ports.Summary {
	score := 0.8
	if title == "" {
		title = "Generated title"
	}
	return ports.Summary{
		Title:          title,
		Summary:        "A summary of " + title,
		KeyPoints:      []string{"one", "two", "three"},
		Topics:         []string{"LLMs", "Research"},
		ArticleType:    "news",
		RelevanceScore: &score,
	}
}

func rawItem(id string, kind domain.SourceKind, sourceID string, content string, published time.Time) domain.RawItem {
	return domain.RawItem{
		SourceKind:  kind,
		SourceID:    sourceID,
		ItemID:      id,
		Title:       "Title " + id,
		Content:     content,
		PublishedAt: published,
		URL:         "https://example.com/" + id,
	}
}

func rawBatch(n int, base time.Time) []domain.RawItem {
	items := make([]domain.RawItem, n)
	for i := range items {
		id := fmt.Sprintf("item-%02d", i)
		items[i] = rawItem(id, domain.SourceKindFeed, "feed", "content "+id, base.Add(-time.Duration(i)*time.Minute))
	}
	return items
}

func processedBatch(n int) []domain.ProcessedItem {
	items := make([]domain.ProcessedItem, n)
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	for i := range items {
		items[i] = domain.ProcessedItem{
			ItemID:       fmt.Sprintf("item-%02d", i),
			Title:        "t",
			Summary:      "s",
			KeyPoints:    []string{"a", "b", "c"},
			Topics:       []string{"LLMs"},
			ArticleType:  domain.ArticleTypeNews,
			OriginalURLs: []string{"https://example.com"},
			SourceKinds:  []domain.SourceKind{domain.SourceKindFeed},
			PublishedAt:  base.Add(-time.Duration(i) * time.Hour),
			ProcessedAt:  base,
		}
	}
	return items
}
