package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

func newTestEnricher(t *testing.T, s ports.Summarizer, e ports.Embedder, cfg EnricherConfig) *Enricher {
	t.Helper()
	enricher, err := NewEnricher(s, e, cfg, nil)
	require.NoError(t, err)
	return enricher
}

func TestEnrichDropsItemsThatNeverValidate(t *testing.T) {
	t.Parallel()

	failing := map[string]bool{"Title item-03": true, "Title item-17": true, "Title item-40": true}
	summarizer := &fakeSummarizer{fn: func(_ context.Context, req ports.SummaryRequest) (ports.Summary, error) {
		time.Sleep(2 * time.Millisecond)
		s := validSummary(req.Item.Title)
		if failing[req.Item.Title] {
			s.KeyPoints = []string{"only one"}
		}
		return s, nil
	}}

	items := rawBatch(45, time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
	outcomes, err := newTestEnricher(t, summarizer, nil, EnricherConfig{Concurrency: 5, MaxRetries: 2}).
		Enrich(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, outcomes, 45)
	processed := Processed(outcomes)
	assert.Len(t, processed, 42)
	assert.LessOrEqual(t, summarizer.maxFlight.Load(), int64(5))
	// 42 succeed on the first call, 3 exhaust all three attempts.
	assert.Equal(t, int64(42+3*3), summarizer.calls.Load())

	inputIDs := map[string]bool{}
	for _, item := range items {
		inputIDs[item.ItemID] = true
	}
	for _, item := range processed {
		assert.True(t, inputIDs[item.ItemID], "unknown item id %s", item.ItemID)
	}

	dropped := 0
	for _, o := range outcomes {
		if o.Dropped {
			dropped++
			assert.Equal(t, 3, o.Attempts)
			assert.Contains(t, o.Reason, "key_points")
		}
	}
	assert.Equal(t, 3, dropped)
}

func TestEnrichRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	summarizer := &fakeSummarizer{fn: func(_ context.Context, req ports.SummaryRequest) (ports.Summary, error) {
		if attempts.Add(1) < 3 {
			return ports.Summary{}, errors.New("upstream 503")
		}
		return validSummary(req.Item.Title), nil
	}}

	items := rawBatch(1, time.Now())
	outcomes, err := newTestEnricher(t, summarizer, nil, EnricherConfig{MaxRetries: 2}).
		Enrich(context.Background(), items)
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Dropped)
	assert.Equal(t, 3, outcomes[0].Attempts)
	require.NotNil(t, outcomes[0].Item)
	assert.Equal(t, items[0].ItemID, outcomes[0].Item.ItemID)
}

func TestEnrichFiltersUnknownTopics(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{fn: func(_ context.Context, req ports.SummaryRequest) (ports.Summary, error) {
		s := validSummary(req.Item.Title)
		s.Topics = []string{"Cooking", "llms", "Open Source", "Research", "NLP"}
		s.ArticleType = "Tutorial"
		s.RelevanceScore = nil
		return s, nil
	}}

	outcomes, err := newTestEnricher(t, summarizer, nil, EnricherConfig{}).
		Enrich(context.Background(), rawBatch(1, time.Now()))
	require.NoError(t, err)

	item := outcomes[0].Item
	require.NotNil(t, item)
	assert.Equal(t, []string{"LLMs", "Open Source", "Research"}, item.Topics)
	assert.Equal(t, domain.ArticleTypeTutorial, item.ArticleType)
	assert.InDelta(t, 0.5, item.RelevanceScore, 1e-9)
}

func TestEnrichAllUnknownTopicsIsDropped(t *testing.T) {
	t.Parallel()

	summarizer := &fakeSummarizer{fn: func(_ context.Context, req ports.SummaryRequest) (ports.Summary, error) {
		s := validSummary(req.Item.Title)
		s.Topics = []string{"Gardening"}
		return s, nil
	}}

	outcomes, err := newTestEnricher(t, summarizer, nil, EnricherConfig{MaxRetries: 1}).
		Enrich(context.Background(), rawBatch(1, time.Now()))
	require.NoError(t, err)

	assert.True(t, outcomes[0].Dropped)
	assert.Equal(t, 2, outcomes[0].Attempts)
	assert.Empty(t, Processed(outcomes))
}

func TestEnrichEmbedding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		embed   func(context.Context, string) ([]float32, error)
		wantLen int
	}{
		{
			name:    "attached",
			embed:   func(context.Context, string) ([]float32, error) { return make([]float32, 4), nil },
			wantLen: 4,
		},
		{
			name:  "failure leaves it unset",
			embed: func(context.Context, string) ([]float32, error) { return nil, errors.New("quota exceeded") },
		},
		{
			name:  "wrong dimension is discarded",
			embed: func(context.Context, string) ([]float32, error) { return make([]float32, 3), nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var embedded string
			embedder := &fakeEmbedder{fn: func(ctx context.Context, text string) ([]float32, error) {
				embedded = text
				return tt.embed(ctx, text)
			}}
			outcomes, err := newTestEnricher(t, &fakeSummarizer{}, embedder, EnricherConfig{EmbeddingDimensions: 4}).
				Enrich(context.Background(), rawBatch(1, time.Now()))
			require.NoError(t, err)

			item := outcomes[0].Item
			require.NotNil(t, item, "embedding problems never drop the item")
			assert.Len(t, item.Embedding, tt.wantLen)
			assert.True(t, strings.HasPrefix(embedded, item.Title+"\n\n"))
		})
	}
}

func TestEnrichOriginalURLsNeverEmpty(t *testing.T) {
	t.Parallel()

	item := rawBatch(1, time.Now())[0]
	item.URL = ""
	item.SourceID = "inbox-42"

	outcomes, err := newTestEnricher(t, &fakeSummarizer{}, nil, EnricherConfig{}).
		Enrich(context.Background(), []domain.RawItem{item})
	require.NoError(t, err)

	require.NotNil(t, outcomes[0].Item)
	assert.Equal(t, []string{"inbox-42"}, outcomes[0].Item.OriginalURLs)
	assert.Equal(t, []domain.SourceKind{domain.SourceKindFeed}, outcomes[0].Item.SourceKinds)
}

func TestBuildPromptTruncatesContent(t *testing.T) {
	t.Parallel()

	item := rawBatch(1, time.Now())[0]
	item.Title = ""
	item.Content = strings.Repeat("é", 50)

	prompt, err := buildPrompt(item, 10)
	require.NoError(t, err)

	assert.Contains(t, prompt, "ARTICLE TITLE: No title")
	assert.Contains(t, prompt, strings.Repeat("é", 10)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("é", 11))
	assert.Contains(t, prompt, "AI Safety")
}

func TestNewEnricherRequiresSummarizer(t *testing.T) {
	t.Parallel()

	_, err := NewEnricher(nil, nil, EnricherConfig{}, nil)
	assert.ErrorIs(t, err, ErrSummarizerRequired)
}
