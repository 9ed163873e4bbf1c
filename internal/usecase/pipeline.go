package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

// digestSize is how many items the chat announcement lists.
const digestSize = 5

// PipelineDeps wires all stages into the orchestration pipeline.
type PipelineDeps struct {
	Collector    ports.Collector
	Sources      []domain.Source
	Deduplicator *Deduplicator
	Enricher     *Enricher
	Writer       *Writer
	Publisher    *Publisher
	Notifier     ports.Notifier
	Observer     ports.RunObserver
	Logger       *slog.Logger
}

// Pipeline sequences collection, deduplication, enrichment, persistence and
// publication. It is built once and is safe to run repeatedly; every run
// gets its own RunState.
type Pipeline struct {
	collector    ports.Collector
	sources      []domain.Source
	deduplicator *Deduplicator
	enricher     *Enricher
	writer       *Writer
	publisher    *Publisher
	notifier     ports.Notifier
	observer     ports.RunObserver
	logger       *slog.Logger
	now          func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Collector == nil {
		return nil, ErrCollectorRequired
	}
	if deps.Enricher == nil {
		return nil, ErrSummarizerRequired
	}
	if deps.Writer == nil {
		return nil, ErrStoreRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dedup := deps.Deduplicator
	if dedup == nil {
		dedup = NewDeduplicator(logger)
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = NewPublisher()
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Pipeline{
		collector:    deps.Collector,
		sources:      append([]domain.Source(nil), deps.Sources...),
		deduplicator: dedup,
		enricher:     deps.Enricher,
		writer:       deps.Writer,
		publisher:    publisher,
		notifier:     deps.Notifier,
		observer:     observer,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// RunState is the working state of one pipeline execution. Each stage fills
// only its own fields.
type RunState struct {
	RunID        string
	RunDate      time.Time
	BackfillDays int
	Cutoff       time.Time

	RawItems          []domain.RawItem
	CollectionErrors  []domain.CollectionError
	DeduplicatedItems []domain.RawItem
	Outcomes          []Outcome
	ProcessedItems    []domain.ProcessedItem
	PersistedCount    int
	Payload           *Payload

	Status domain.RunStatus
}

// Cutoff returns the oldest publish time a run collects: midnight UTC of the
// run date, moved back by the backfill window.
func Cutoff(runDate time.Time, backfillDays int) time.Time {
	day := runDate.UTC().Truncate(24 * time.Hour)
	return day.AddDate(0, 0, -backfillDays)
}

// NewRunID builds a sortable, unique run identifier.
func NewRunID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("run_%s_%s", at.UTC().Format("20060102_150405"), suffix)
}

// Run executes one pass of the pipeline. Absorbed failures show up in the
// returned state; an error is returned only for a *StageFatalError or an
// invalid request, in which case the state holds whatever was produced.
func (p *Pipeline) Run(ctx context.Context, backfillDays int) (*RunState, error) {
	if backfillDays < 0 {
		return nil, ErrNegativeBackfill
	}

	runDate := p.now().UTC()
	state := &RunState{
		RunID:        NewRunID(runDate),
		RunDate:      runDate,
		BackfillDays: backfillDays,
		Cutoff:       Cutoff(runDate, backfillDays),
		Status:       domain.RunStatusRunning,
	}
	log := p.logger.With("run_id", state.RunID)
	log.Info("pipeline run started",
		"backfill_days", backfillDays,
		"cutoff", state.Cutoff.Format(time.RFC3339),
		"sources", len(p.sources))

	if err := p.execute(ctx, log, state); err != nil {
		state.Status = domain.RunStatusFailed
		p.observer.ObserveRun(state.Status)
		log.Error("pipeline run failed", "error", err)
		return state, err
	}

	state.Status = domain.RunStatusCompleted
	p.observer.ObserveRun(state.Status)
	log.Info("pipeline run completed",
		"collected", len(state.RawItems),
		"deduplicated", len(state.DeduplicatedItems),
		"processed", len(state.ProcessedItems),
		"persisted", state.PersistedCount,
		"collection_errors", len(state.CollectionErrors))

	p.announce(ctx, log, state)
	return state, nil
}

func (p *Pipeline) execute(ctx context.Context, log *slog.Logger, state *RunState) error {
	// Collection.
	start := time.Now()
	collection := p.collector.Collect(ctx, p.sources, state.Cutoff)
	state.RawItems = collection.Items
	state.CollectionErrors = collection.Errors
	p.observer.ObserveStage(StageCollect, time.Since(start))
	p.observer.ObserveCollection(len(state.RawItems), state.CollectionErrors)
	for _, ce := range state.CollectionErrors {
		log.Warn("source failed",
			"source_id", ce.SourceID,
			"source_kind", ce.SourceKind,
			"error_kind", ce.ErrorKind,
			"error", ce.ErrorMessage)
	}
	if err := stageGate(ctx, StageCollect); err != nil {
		return err
	}

	// Deduplication.
	start = time.Now()
	state.DeduplicatedItems = p.deduplicator.Deduplicate(state.RawItems)
	p.observer.ObserveStage(StageDedup, time.Since(start))

	// Enrichment.
	start = time.Now()
	outcomes, err := p.enricher.Enrich(ctx, state.DeduplicatedItems)
	if err != nil {
		return &StageFatalError{Stage: StageEnrich, Err: err}
	}
	state.Outcomes = outcomes
	state.ProcessedItems = Processed(outcomes)
	p.observer.ObserveStage(StageEnrich, time.Since(start))
	p.observer.ObserveEnrichment(len(state.ProcessedItems), len(outcomes)-len(state.ProcessedItems))
	if err := stageGate(ctx, StageEnrich); err != nil {
		return err
	}

	// Persistence.
	start = time.Now()
	persisted, err := p.writer.Persist(ctx, PersistRequest{
		RunID:            state.RunID,
		RunDate:          state.RunDate,
		ItemsCollected:   len(state.RawItems),
		CollectionErrors: len(state.CollectionErrors),
		Items:            state.ProcessedItems,
	})
	state.PersistedCount = persisted.Persisted
	p.observer.ObserveStage(StagePersist, time.Since(start))
	p.observer.ObservePersistence(persisted.Persisted, len(persisted.Failures))
	if err != nil {
		return err
	}

	// Publication.
	start = time.Now()
	payload := p.publisher.Publish(PublishInput{
		RunID:            state.RunID,
		RunDate:          state.RunDate,
		Items:            state.ProcessedItems,
		PersistedCount:   state.PersistedCount,
		CollectionErrors: state.CollectionErrors,
	})
	state.Payload = &payload
	p.observer.ObserveStage(StagePublish, time.Since(start))
	return nil
}

// stageGate stops the run between stages once the caller has given up.
func stageGate(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return &StageFatalError{Stage: stage, Err: err}
	}
	return nil
}

// announce posts a short digest of a finished run. Failures are only logged.
func (p *Pipeline) announce(ctx context.Context, log *slog.Logger, state *RunState) {
	if p.notifier == nil || state.Payload == nil || len(state.Payload.Items) == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(*state.Payload, digestSize)); err != nil {
		log.Warn("publish digest failed", "error", err)
	}
}

func buildDigestMessage(payload Payload, limit int) string {
	items := payload.Items
	if len(items) > limit {
		items = items[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "News digest %s: %d items, %d source errors\n\n",
		payload.Meta.RunDate.Format("2006-01-02"),
		payload.Stats.TotalItems,
		payload.Stats.CollectionErrors)
	for _, item := range items {
		url := ""
		if len(item.URLs) > 0 {
			url = item.URLs[0]
		}
		fmt.Fprintf(&b, "- %s\n[%s] relevance %.2f\n%s\n\n",
			item.Title,
			strings.Join(item.Topics, ", "),
			item.RelevanceScore,
			url)
	}
	return strings.TrimRight(b.String(), "\n")
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration) {}
func (nopObserver) ObserveCollection(int, []domain.CollectionError) {}
func (nopObserver) ObserveEnrichment(int, int) {}
func (nopObserver) ObservePersistence(int, int) {}
func (nopObserver) ObserveRun(domain.RunStatus) {}
