package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
	"NewsAggregator/internal/scanner"
)

// DefaultSourceTimeout bounds a single source when none is configured.
const DefaultSourceTimeout = 30 * time.Second

// timeoutGrace is how long a timed-out scanner gets to hand back what it
// parsed before its result is abandoned.
const timeoutGrace = 2 * time.Second

// StrategySource fans out to the registered scanner strategies, one
// goroutine per configured source, and fans their results back in.
type StrategySource struct {
	registry *scanner.Registry
	timeout  time.Duration
	grace    time.Duration
	logger   *slog.Logger
}

var _ ports.Collector = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with a per-source time budget.
func NewStrategySource(reg *scanner.Registry, timeout time.Duration, log *slog.Logger) *StrategySource {
	if reg == nil {
		reg = scanner.NewRegistry()
	}
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &StrategySource{registry: reg, timeout: timeout, grace: timeoutGrace, logger: log}
}

// Collect runs every source concurrently. Each source writes into its own
// slot; slots are concatenated in declaration order once all have finished.
func (s *StrategySource) Collect(ctx context.Context, sources []domain.Source, cutoff time.Time) ports.Collection {
	s.logger.Debug("collect", "sources", len(sources), "cutoff", cutoff.Format(time.RFC3339))

	slots := make([]scanner.Result, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			slots[i] = s.collectOne(ctx, src, cutoff)
			return nil
		})
	}
	_ = g.Wait()

	var out ports.Collection
	for i, slot := range slots {
		s.logger.Debug("source finished",
			"source_id", sources[i].ID,
			"source_kind", sources[i].Kind,
			"items", len(slot.Items),
			"errors", len(slot.Errors))
		out.Items = append(out.Items, slot.Items...)
		out.Errors = append(out.Errors, slot.Errors...)
	}
	return out
}

func (s *StrategySource) collectOne(ctx context.Context, src domain.Source, cutoff time.Time) scanner.Result {
	strategy, err := s.registry.Resolve(src.Kind)
	if err != nil {
		s.logger.Warn("no scanner for source", "source_id", src.ID, "source_kind", src.Kind)
		return scanner.Result{Errors: []domain.CollectionError{
			scanner.NewError(src, scanner.ErrorKindUnknownKind, err),
		}}
	}

	sourceCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan scanner.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- scanner.Result{Errors: []domain.CollectionError{
					scanner.NewError(src, scanner.ErrorKindPanic, fmt.Errorf("scanner panicked: %v", r)),
				}}
			}
		}()
		done <- strategy.Scan(sourceCtx, scanner.Request{Source: src, Cutoff: cutoff})
	}()

	select {
	case res := <-done:
		return res
	case <-sourceCtx.Done():
		timeoutErr := scanner.NewError(src, scanner.ErrorKindTimeout, fmt.Errorf("source %s: %w", src.ID, sourceCtx.Err()))

		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case res := <-done:
			s.logger.Warn("source timed out", "source_id", src.ID, "timeout", s.timeout, "partial_items", len(res.Items))
			return withTimeout(res, timeoutErr)
		case <-timer.C:
			s.logger.Warn("source timed out", "source_id", src.ID, "timeout", s.timeout, "partial_items", 0)
			return scanner.Result{Errors: []domain.CollectionError{timeoutErr}}
		}
	}
}

// withTimeout keeps a late result's items and makes sure it reports the timeout once.
func withTimeout(res scanner.Result, timeoutErr domain.CollectionError) scanner.Result {
	for _, e := range res.Errors {
		if e.ErrorKind == scanner.ErrorKindTimeout {
			return res
		}
	}
	res.Errors = append(res.Errors, timeoutErr)
	return res
}
