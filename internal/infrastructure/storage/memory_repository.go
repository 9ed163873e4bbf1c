package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

// MemoryRepository keeps items and runs in process memory. It honours the
// same upsert rules as the Postgres repository and is used when no database
// is configured.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]domain.ProcessedItem
	runs  map[string]domain.PipelineRun
	now   func() time.Time
}

var (
	_ ports.ItemStore  = (*MemoryRepository)(nil)
	_ ports.RunStore   = (*MemoryRepository)(nil)
	_ ports.ItemReader = (*MemoryRepository)(nil)
	_ ports.RunReader  = (*MemoryRepository)(nil)
)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: map[string]domain.ProcessedItem{},
		runs:  map[string]domain.PipelineRun{},
		now:   time.Now,
	}
}

func (m *MemoryRepository) UpsertItems(ctx context.Context, items []domain.ProcessedItem) (ports.WriteReport, error) {
	if err := ctx.Err(); err != nil {
		return ports.WriteReport{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var report ports.WriteReport
	for _, item := range items {
		if err := checkItem(item); err != nil {
			report.Failures = append(report.Failures, ports.ItemWriteFailure{ItemID: item.ItemID, Err: err})
			continue
		}

		stored := cloneItem(item)
		stored.CreatedAt = now
		stored.UpdatedAt = now
		if existing, ok := m.items[item.ItemID]; ok {
			stored.CreatedAt = existing.CreatedAt
			if existing.PublishedAt.Before(stored.PublishedAt) {
				stored.PublishedAt = existing.PublishedAt
			}
		}
		m.items[item.ItemID] = stored
		report.Written++
	}
	return report, nil
}

func (m *MemoryRepository) CreateRun(ctx context.Context, run domain.PipelineRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run.Status = domain.RunStatusRunning
	run.CompletedAt = nil
	m.runs[run.RunID] = run
	return nil
}

func (m *MemoryRepository) FinishRun(_ context.Context, runID string, status domain.RunStatus, counters domain.RunCounters, errMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	completed := m.now().UTC()
	run.Status = status
	run.Counters = counters
	run.ErrorMessage = errMessage
	run.CompletedAt = &completed
	m.runs[runID] = run
	return nil
}

func (m *MemoryRepository) ListItems(_ context.Context, filter ports.ItemFilter) ([]domain.ProcessedItem, error) {
	filter = filter.Normalized()
	matched := m.matching(filter)
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := min(filter.Offset+filter.Limit, len(matched))
	return matched[filter.Offset:end], nil
}

func (m *MemoryRepository) CountItems(_ context.Context, filter ports.ItemFilter) (int, error) {
	return len(m.matching(filter.Normalized())), nil
}

func (m *MemoryRepository) GetItem(_ context.Context, itemID string) (domain.ProcessedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[itemID]
	if !ok {
		return domain.ProcessedItem{}, domain.ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (m *MemoryRepository) ListRuns(_ context.Context, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 || limit > ports.MaxItemLimit {
		limit = ports.DefaultItemLimit
	}

	m.mu.RLock()
	runs := make([]domain.PipelineRun, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].RunID > runs[j].RunID
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MemoryRepository) matching(filter ports.ItemFilter) []domain.ProcessedItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.ProcessedItem, 0, len(m.items))
	for _, item := range m.items {
		if item.RelevanceScore < filter.MinRelevance {
			continue
		}
		if filter.Topic != "" && !slices.Contains(item.Topics, filter.Topic) {
			continue
		}
		if filter.ArticleType != "" && item.ArticleType != filter.ArticleType {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out
}

func cloneItem(item domain.ProcessedItem) domain.ProcessedItem {
	item.KeyPoints = slices.Clone(item.KeyPoints)
	item.Topics = slices.Clone(item.Topics)
	item.OriginalURLs = slices.Clone(item.OriginalURLs)
	item.SourceKinds = slices.Clone(item.SourceKinds)
	item.Embedding = slices.Clone(item.Embedding)
	return item
}
