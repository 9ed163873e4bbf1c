package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrCollectorRequired is returned when a pipeline is built without a collector.
	ErrCollectorRequired = errors.New("collector is required")
	// ErrSummarizerRequired is returned when a pipeline is built without a summarizer.
	ErrSummarizerRequired = errors.New("summarizer is required")
	// ErrStoreRequired is returned when a pipeline is built without item or run storage.
	ErrStoreRequired = errors.New("item and run stores are required")
	// ErrNegativeBackfill rejects a backfill window below zero days.
	ErrNegativeBackfill = errors.New("backfill window must not be negative")
)

// Stage names used in logs, metrics and StageFatalError.
const (
	StageCollect = "collect"
	StageDedup   = "deduplicate"
	StageEnrich  = "enrich"
	StagePersist = "persist"
	StagePublish = "publish"
)

// StageFatalError means a stage could not proceed at all and the run was aborted.
type StageFatalError struct {
	Stage string
	Err   error
}

func (e *StageFatalError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageFatalError) Unwrap() error {
	return e.Err
}
