package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

// PersistRequest carries the items of one run and the counters recorded
// on its run record.
type PersistRequest struct {
	RunID            string
	RunDate          time.Time
	ItemsCollected   int
	CollectionErrors int
	Items            []domain.ProcessedItem
}

// PersistResult reports what the writer managed to store.
type PersistResult struct {
	Persisted int
	Failures  []ports.ItemWriteFailure
}

// Writer stores processed items and keeps the run record in step.
type Writer struct {
	items  ports.ItemStore
	runs   ports.RunStore
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter wires the item and run stores.
func NewWriter(items ports.ItemStore, runs ports.RunStore, log *slog.Logger) (*Writer, error) {
	if items == nil || runs == nil {
		return nil, ErrStoreRequired
	}
	if log == nil {
		log = slog.Default()
	}
	return &Writer{items: items, runs: runs, logger: log, now: time.Now}, nil
}

// Persist opens the run record, upserts every item and closes the record.
// Individual item failures only lower the persisted count; a *StageFatalError
// is returned when the store cannot be used at all.
func (w *Writer) Persist(ctx context.Context, req PersistRequest) (PersistResult, error) {
	log := w.logger.With("run_id", req.RunID)

	run := domain.PipelineRun{
		RunID:     req.RunID,
		RunDate:   req.RunDate,
		Status:    domain.RunStatusRunning,
		StartedAt: w.now().UTC(),
	}
	if err := w.runs.CreateRun(ctx, run); err != nil {
		log.Error("create run record failed", "error", err)
		return PersistResult{}, &StageFatalError{Stage: StagePersist, Err: fmt.Errorf("create run: %w", err)}
	}

	counters := domain.RunCounters{
		ItemsCollected:   req.ItemsCollected,
		ItemsProcessed:   len(req.Items),
		CollectionErrors: req.CollectionErrors,
	}

	var report ports.WriteReport
	if len(req.Items) > 0 {
		var err error
		report, err = w.items.UpsertItems(ctx, req.Items)
		if err != nil {
			log.Error("item batch failed", "error", err)
			w.finish(ctx, log, req.RunID, domain.RunStatusFailed, counters, err.Error())
			return PersistResult{}, &StageFatalError{Stage: StagePersist, Err: fmt.Errorf("upsert items: %w", err)}
		}
	}

	for _, failure := range report.Failures {
		log.Warn("item write rolled back", "item_id", failure.ItemID, "error", failure.Err)
	}
	counters.ItemsPersisted = report.Written
	result := PersistResult{Persisted: report.Written, Failures: report.Failures}

	if err := ctx.Err(); err != nil {
		w.finish(ctx, log, req.RunID, domain.RunStatusFailed, counters, "run cancelled: "+err.Error())
		return result, &StageFatalError{Stage: StagePersist, Err: err}
	}

	w.finish(ctx, log, req.RunID, domain.RunStatusCompleted, counters, "")
	log.Info("persistence complete",
		"items", len(req.Items),
		"persisted", report.Written,
		"failed", len(report.Failures))
	return result, nil
}

// finish closes the run record even when ctx is already cancelled.
func (w *Writer) finish(ctx context.Context, log *slog.Logger, runID string, status domain.RunStatus, counters domain.RunCounters, message string) {
	if err := w.runs.FinishRun(context.WithoutCancel(ctx), runID, status, counters, message); err != nil {
		log.Error("finish run record failed", "status", status, "error", err)
	}
}
