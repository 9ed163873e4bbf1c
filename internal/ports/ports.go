package ports

import (
	"context"
	"time"

	"NewsAggregator/internal/domain"
)

// Collection is the fan-in of every source collector for one run.
type Collection struct {
	Items  []domain.RawItem
	Errors []domain.CollectionError
}

// Collector runs all configured sources and combines what they returned.
// It never fails as a whole; per-source failures come back as Errors.
type Collector interface {
	Collect(ctx context.Context, sources []domain.Source, cutoff time.Time) Collection
}

// SummaryRequest is one call to the external summarization service. Prompt
// is already rendered from the item; Item is passed for logging and tracing.
type SummaryRequest struct {
	Item   domain.RawItem
	Prompt string
}

// Summary is the structured result returned by the summarization service,
// before validation against the topic and article-type vocabularies.
type Summary struct {
	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	Topics         []string `json:"topics"`
	ArticleType    string   `json:"article_type"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
}

// Summarizer turns article content into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (Summary, error)
}

// Embedder produces a fixed-length vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ItemStore persists processed items. UpsertItems writes each item in its
// own savepoint and reports how many were written; a non-nil error means the
// batch could not be attempted or committed at all.
type ItemStore interface {
	UpsertItems(ctx context.Context, items []domain.ProcessedItem) (WriteReport, error)
}

// WriteReport summarises a batch upsert.
type WriteReport struct {
	Written  int
	Failures []ItemWriteFailure
}

// ItemWriteFailure records one item whose write was rolled back.
type ItemWriteFailure struct {
	ItemID string
	Err    error
}

// RunStore keeps pipeline run bookkeeping.
type RunStore interface {
	CreateRun(ctx context.Context, run domain.PipelineRun) error
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, counters domain.RunCounters, errMessage string) error
}

// ItemFilter narrows item queries.
type ItemFilter struct {
	Limit        int
	Offset       int
	Topic        string
	ArticleType  domain.ArticleType
	MinRelevance float64
}

// Item query bounds.
const (
	DefaultItemLimit = 20
	MaxItemLimit     = 100
)

// Normalized clamps paging to the accepted range.
func (f ItemFilter) Normalized() ItemFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultItemLimit
	case f.Limit > MaxItemLimit:
		f.Limit = MaxItemLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.MinRelevance < 0 {
		f.MinRelevance = 0
	}
	return f
}

// ItemReader serves read-only item queries.
type ItemReader interface {
	ListItems(ctx context.Context, filter ItemFilter) ([]domain.ProcessedItem, error)
	CountItems(ctx context.Context, filter ItemFilter) (int, error)
	GetItem(ctx context.Context, itemID string) (domain.ProcessedItem, error)
}

// RunReader serves run history.
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]domain.PipelineRun, error)
}

// RunObserver receives measurements from a pipeline run.
type RunObserver interface {
	ObserveStage(stage string, elapsed time.Duration)
	ObserveCollection(items int, errs []domain.CollectionError)
	ObserveEnrichment(processed, dropped int)
	ObservePersistence(written, failed int)
	ObserveRun(status domain.RunStatus)
}

// Notifier announces a finished run digest to a chat channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
