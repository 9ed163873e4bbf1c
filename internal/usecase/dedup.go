package usecase

import (
	"log/slog"
	"slices"
	"sort"
	"strings"

	"NewsAggregator/internal/domain"
)

// Deduplicator merges raw items that share an identity key.
type Deduplicator struct {
	logger *slog.Logger
}

// NewDeduplicator builds a deduplicator; a nil logger discards output.
func NewDeduplicator(log *slog.Logger) *Deduplicator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Deduplicator{logger: log}
}

// Deduplicate returns one canonical item per ItemID, newest first.
//
// Duplicates keep the longest content and the earliest publish time, and
// record every source they were seen in. The display source is the first
// one in input order. Running Deduplicate on its own output is a no-op.
func (d *Deduplicator) Deduplicate(items []domain.RawItem) []domain.RawItem {
	if len(items) == 0 {
		return nil
	}

	order := make([]string, 0, len(items))
	groups := make(map[string][]domain.RawItem, len(items))
	for _, item := range items {
		if _, ok := groups[item.ItemID]; !ok {
			order = append(order, item.ItemID)
		}
		groups[item.ItemID] = append(groups[item.ItemID], item)
	}

	out := make([]domain.RawItem, 0, len(order))
	merged := 0
	for _, id := range order {
		group := groups[id]
		if len(group) > 1 {
			merged += len(group) - 1
			d.logger.Debug("merged duplicates", "item_id", id, "count", len(group))
		}
		out = append(out, mergeGroup(group))
	}

	sortNewestFirst(out)

	d.logger.Info("deduplication complete",
		"input", len(items),
		"output", len(out),
		"merged", merged)
	return out
}

// mergeGroup folds items sharing an ItemID into one. The result depends on
// group order only through the display source.
func mergeGroup(group []domain.RawItem) domain.RawItem {
	richest := group[0]
	for _, item := range group[1:] {
		if richer(item, richest) {
			richest = item
		}
	}

	merged := richest
	merged.SourceKind = group[0].SourceKind
	merged.SourceID = group[0].SourceID
	merged.SourceMetadata = mergeMetadata(group)

	var (
		kinds []domain.SourceKind
		ids   []string
		urls  []string
	)
	for _, item := range group {
		if item.PublishedAt.Before(merged.PublishedAt) {
			merged.PublishedAt = item.PublishedAt
		}
		k, i, u := tracking(item)
		kinds = append(kinds, k...)
		ids = append(ids, i...)
		urls = append(urls, u...)
	}

	merged.MergedFromSources = uniqueSorted(kinds)
	merged.MergedFromIDs = uniqueSorted(ids)
	merged.AllURLs = uniqueSorted(urls)
	if merged.URL == "" && len(merged.AllURLs) > 0 {
		merged.URL = merged.AllURLs[0]
	}
	return merged
}

// richer orders candidates for the canonical body: longer content first,
// then a total order on the remaining fields so ties never depend on input order.
func richer(a, b domain.RawItem) bool {
	if len(a.Content) != len(b.Content) {
		return len(a.Content) > len(b.Content)
	}
	if a.Content != b.Content {
		return a.Content < b.Content
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	if a.SourceKind != b.SourceKind {
		return a.SourceKind < b.SourceKind
	}
	if a.SourceID != b.SourceID {
		return a.SourceID < b.SourceID
	}
	return a.URL < b.URL
}

// tracking returns the merge-tracking sets of an item, treating an item
// that was never merged as having been seen in its own source only.
func tracking(item domain.RawItem) ([]domain.SourceKind, []string, []string) {
	kinds := item.MergedFromSources
	if len(kinds) == 0 {
		kinds = []domain.SourceKind{item.SourceKind}
	}
	ids := item.MergedFromIDs
	if len(ids) == 0 {
		ids = []string{item.SourceID}
	}
	urls := item.AllURLs
	if len(urls) == 0 && strings.TrimSpace(item.URL) != "" {
		urls = []string{item.URL}
	}
	return kinds, ids, urls
}

func uniqueSorted[T ~string](values []T) []T {
	out := make([]T, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// metadataKeySep separates a "<kind>:<id>" prefix from the original key.
const metadataKeySep = "/"

// mergeMetadata keeps the richest item's metadata as-is and files every
// duplicate's metadata under "<kind>:<id>/<key>". Richer items win key
// collisions, so the result does not depend on group order.
func mergeMetadata(group []domain.RawItem) map[string]string {
	if len(group) == 1 {
		return cloneMetadata(group[0].SourceMetadata)
	}

	ranked := slices.Clone(group)
	slices.SortStableFunc(ranked, func(a, b domain.RawItem) int {
		switch {
		case richer(a, b):
			return -1
		case richer(b, a):
			return 1
		default:
			return 0
		}
	})

	out := cloneMetadata(ranked[0].SourceMetadata)
	for _, item := range ranked {
		prefix := string(item.SourceKind) + ":" + item.SourceID + metadataKeySep
		for k, v := range item.SourceMetadata {
			key := k
			if !strings.Contains(k, metadataKeySep) {
				key = prefix + k
			}
			if out == nil {
				out = make(map[string]string)
			}
			if _, ok := out[key]; !ok {
				out[key] = v
			}
		}
	}
	return out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortNewestFirst(items []domain.RawItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ItemID < items[j].ItemID
	})
}
