package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

// Enrichment defaults.
const (
	DefaultConcurrency         = 5
	DefaultMaxRetries          = 2
	DefaultRetryDelay          = 500 * time.Millisecond
	DefaultEmbeddingDimensions = 1536
	defaultRelevance           = 0.5
	minKeyPoints               = 3
	maxKeyPoints               = 5
	maxTopics                  = 3
)

// EnricherConfig tunes the enrichment stage. Zero values take the defaults,
// except MaxRetries and RetryDelay where zero means none.
type EnricherConfig struct {
	Concurrency         int
	MaxRetries          int
	RetryDelay          time.Duration
	MaxContentRunes     int
	EmbeddingDimensions int
}

func (c EnricherConfig) withDefaults() EnricherConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.MaxContentRunes <= 0 {
		c.MaxContentRunes = DefaultMaxContentRunes
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	return c
}

// Outcome is the result of enriching one item: either Item is set, or the
// item was dropped after Attempts tries for Reason.
type Outcome struct {
	ItemID   string
	Item     *domain.ProcessedItem
	Dropped  bool
	Reason   string
	Attempts int
}

// Enricher turns deduplicated raw items into processed items by calling the
// summarization service, with bounded concurrency and retries.
type Enricher struct {
	summarizer ports.Summarizer
	embedder   ports.Embedder
	cfg        EnricherConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewEnricher wires a summarizer and an optional embedder.
func NewEnricher(summarizer ports.Summarizer, embedder ports.Embedder, cfg EnricherConfig, log *slog.Logger) (*Enricher, error) {
	if summarizer == nil {
		return nil, ErrSummarizerRequired
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{
		summarizer: summarizer,
		embedder:   embedder,
		cfg:        cfg.withDefaults(),
		logger:     log,
		now:        time.Now,
	}, nil
}

// Enrich processes every item on a worker pool. The returned outcomes are in
// input order, one per item. The error is non-nil only when the pool itself
// could not be started.
func (e *Enricher) Enrich(ctx context.Context, items []domain.RawItem) ([]Outcome, error) {
	if len(items) == 0 {
		return nil, nil
	}

	pool, err := ants.NewPool(e.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create enrichment pool: %w", err)
	}
	defer pool.Release()

	outcomes := make([]Outcome, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outcomes[i] = e.enrichOne(ctx, items[i])
		}
		if submitErr := pool.Submit(task); submitErr != nil {
			wg.Done()
			outcomes[i] = Outcome{ItemID: items[i].ItemID, Dropped: true, Reason: fmt.Sprintf("submit: %v", submitErr)}
		}
	}
	wg.Wait()

	dropped := 0
	for _, o := range outcomes {
		if o.Dropped {
			dropped++
		}
	}
	e.logger.Info("enrichment complete",
		"input", len(items),
		"processed", len(items)-dropped,
		"dropped", dropped)
	return outcomes, nil
}

// Processed returns the successful items of a set of outcomes, in order.
func Processed(outcomes []Outcome) []domain.ProcessedItem {
	out := make([]domain.ProcessedItem, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Dropped && o.Item != nil {
			out = append(out, *o.Item)
		}
	}
	return out
}

func (e *Enricher) enrichOne(ctx context.Context, item domain.RawItem) (out Outcome) {
	out.ItemID = item.ItemID
	log := e.logger.With("item_id", item.ItemID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("enrichment panicked", "panic", r)
			out = Outcome{ItemID: item.ItemID, Dropped: true, Reason: fmt.Sprintf("panic: %v", r), Attempts: out.Attempts}
		}
	}()

	prompt, err := buildPrompt(item, e.cfg.MaxContentRunes)
	if err != nil {
		return Outcome{ItemID: item.ItemID, Dropped: true, Reason: fmt.Sprintf("build prompt: %v", err)}
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		out.Attempts = attempt
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		summary, err := e.summarizer.Summarize(ctx, ports.SummaryRequest{Item: item, Prompt: prompt})
		if err == nil {
			var processed domain.ProcessedItem
			processed, err = e.toProcessed(item, summary)
			if err == nil {
				e.attachEmbedding(ctx, log, &processed)
				out.Item = &processed
				return out
			}
		}

		lastErr = err
		if attempt <= e.cfg.MaxRetries {
			log.Warn("enrichment attempt failed, retrying",
				"attempt", attempt,
				"validation", isValidation(err),
				"error", err)
			if !sleepCtx(ctx, e.cfg.RetryDelay) {
				lastErr = ctx.Err()
				break
			}
		}
	}

	log.Warn("item dropped after retries", "attempts", out.Attempts, "error", lastErr)
	out.Dropped = true
	if lastErr != nil {
		out.Reason = lastErr.Error()
	}
	return out
}

// toProcessed validates a structured result and builds the processed item.
func (e *Enricher) toProcessed(item domain.RawItem, s ports.Summary) (domain.ProcessedItem, error) {
	if err := validateSummary(&s); err != nil {
		return domain.ProcessedItem{}, err
	}
	articleType, _ := domain.ParseArticleType(s.ArticleType)

	relevance := defaultRelevance
	if s.RelevanceScore != nil {
		relevance = *s.RelevanceScore
	}

	kinds := item.MergedFromSources
	if len(kinds) == 0 {
		kinds = []domain.SourceKind{item.SourceKind}
	}

	return domain.ProcessedItem{
		ItemID:         item.ItemID,
		Title:          strings.TrimSpace(s.Title),
		Summary:        strings.TrimSpace(s.Summary),
		KeyPoints:      s.KeyPoints,
		Topics:         s.Topics,
		ArticleType:    articleType,
		RelevanceScore: relevance,
		OriginalURLs:   originalURLs(item),
		SourceKinds:    append([]domain.SourceKind(nil), kinds...),
		PublishedAt:    item.PublishedAt,
		ProcessedAt:    e.now().UTC(),
	}, nil
}

// validateSummary checks a structured result in place: unknown topics are
// dropped and key points are trimmed before counting.
func validateSummary(s *ports.Summary) error {
	if strings.TrimSpace(s.Title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "empty"}
	}
	if strings.TrimSpace(s.Summary) == "" {
		return &domain.ValidationError{Field: "summary", Reason: "empty"}
	}

	points := make([]string, 0, len(s.KeyPoints))
	for _, p := range s.KeyPoints {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
	}
	if len(points) < minKeyPoints || len(points) > maxKeyPoints {
		return &domain.ValidationError{
			Field:  "key_points",
			Reason: fmt.Sprintf("want %d-%d, got %d", minKeyPoints, maxKeyPoints, len(points)),
		}
	}
	s.KeyPoints = points

	topics := domain.FilterTopics(s.Topics)
	if len(topics) == 0 {
		return &domain.ValidationError{Field: "topics", Reason: fmt.Sprintf("no known category in %v", s.Topics)}
	}
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	s.Topics = topics

	if _, ok := domain.ParseArticleType(s.ArticleType); !ok {
		return &domain.ValidationError{Field: "article_type", Reason: fmt.Sprintf("unknown value %q", s.ArticleType)}
	}

	if s.RelevanceScore != nil && (*s.RelevanceScore < 0 || *s.RelevanceScore > 1) {
		return &domain.ValidationError{Field: "relevance_score", Reason: fmt.Sprintf("%v outside [0,1]", *s.RelevanceScore)}
	}
	return nil
}

func (e *Enricher) attachEmbedding(ctx context.Context, log *slog.Logger, item *domain.ProcessedItem) {
	if e.embedder == nil {
		return
	}
	vector, err := e.embedder.Embed(ctx, item.Title+"\n\n"+item.Summary)
	if err != nil {
		log.Warn("embedding failed, continuing without", "error", err)
		return
	}
	if len(vector) != e.cfg.EmbeddingDimensions {
		log.Warn("embedding has wrong dimension, discarding",
			"got", len(vector), "want", e.cfg.EmbeddingDimensions)
		return
	}
	item.Embedding = vector
}

// originalURLs never returns an empty list: items without any URL fall back
// to their source id.
func originalURLs(item domain.RawItem) []string {
	if len(item.AllURLs) > 0 {
		return append([]string(nil), item.AllURLs...)
	}
	if strings.TrimSpace(item.URL) != "" {
		return []string{item.URL}
	}
	return []string{item.SourceID}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// isValidation reports whether err is a schema failure rather than a call failure.
func isValidation(err error) bool {
	return errors.Is(err, domain.ErrValidation)
}
