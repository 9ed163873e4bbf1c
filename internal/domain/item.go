package domain

import "time"

// SourceKind identifies the family of upstream a source belongs to.
type SourceKind string

const (
	SourceKindFeed    SourceKind = "feed"
	SourceKindArxiv   SourceKind = "arxiv"
	SourceKindMailbox SourceKind = "mailbox"
)

// Source is one configured upstream, read once at run start.
type Source struct {
	Kind     SourceKind
	ID       string
	Name     string
	Endpoint string
}

// RawItem is an article as fetched, before enrichment.
type RawItem struct {
	SourceKind     SourceKind
	SourceID       string
	ItemID         string
	Title          string
	Content        string
	Author         string
	PublishedAt    time.Time
	URL            string
	SourceMetadata map[string]string

	// Merge tracking, filled by the deduplicator. A single-source item
	// carries its own kind, id and url here.
	MergedFromSources []SourceKind
	MergedFromIDs     []string
	AllURLs           []string
}

// ArticleType is the coarse classification assigned during enrichment.
type ArticleType string

const (
	ArticleTypeNews     ArticleType = "news"
	ArticleTypeTutorial ArticleType = "tutorial"
)

// ArticleTypes lists every accepted article type.
var ArticleTypes = []ArticleType{ArticleTypeNews, ArticleTypeTutorial}

// ProcessedItem is an enriched article ready for storage.
type ProcessedItem struct {
	ItemID         string
	Title          string
	Summary        string
	KeyPoints      []string
	Topics         []string
	ArticleType    ArticleType
	RelevanceScore float64
	OriginalURLs   []string
	SourceKinds    []SourceKind
	PublishedAt    time.Time
	ProcessedAt    time.Time
	Embedding      []float32

	// Populated by storage reads only.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CollectionError is a non-fatal failure recorded while collecting one source.
type CollectionError struct {
	SourceKind   SourceKind `json:"source_kind"`
	SourceID     string     `json:"source_id"`
	ErrorKind    string     `json:"error_kind"`
	ErrorMessage string     `json:"error_message"`
	Timestamp    time.Time  `json:"timestamp"`
}

// RunStatus enumerates the states of a persisted pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunCounters are the per-run totals written when a run finishes.
type RunCounters struct {
	ItemsCollected   int
	ItemsProcessed   int
	ItemsPersisted   int
	CollectionErrors int
}

// PipelineRun is the persisted bookkeeping record of one run.
type PipelineRun struct {
	RunID        string
	RunDate      time.Time
	Status       RunStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	Counters     RunCounters
	ErrorMessage string
}

// Duration returns the wall time of a finished run, or zero while running.
func (r PipelineRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
