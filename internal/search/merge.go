package search

import (
	"math"
	"sort"
)

// ScoreFunc ranks items in the merged view. The default is the engagement
// proxy primary+secondary; callers may plug in their own weighting.
type ScoreFunc func(item *Item) float64

// DefaultScore is the engagement proxy used when no ScoreFunc is supplied.
func DefaultScore(item *Item) float64 {
	return float64(item.Metrics.Primary + item.Metrics.Secondary)
}

// Merge deduplicates and ranks items across provider results into one
// aggregate view. It is a pure function of its inputs.
//
// Items from non-failed results are collected keyed by Item.ID. When the same
// id is returned by two providers, exactly one copy is kept: the one from the
// provider that appears first in the caller-declared priority order. Fields
// are never combined across duplicates. The deduplicated set is sorted by
// score descending, then createdAt descending, then id ascending as a final
// deterministic tie-break, and truncated to limit (limit <= 0 means no cap).
func Merge(results map[ProviderID]*ProviderResult, priority []ProviderID, limit int, score ScoreFunc) *AggregateResult {
	if score == nil {
		score = DefaultScore
	}

	order := mergeOrder(results, priority)

	seen := make(map[string]struct{})
	var items []Item
	var providersUsed []ProviderID
	totalFetched := 0
	duplicateCount := 0

	for _, id := range order {
		result := results[id]
		if result == nil || result.Status == StatusFailed {
			continue
		}
		providersUsed = append(providersUsed, id)
		totalFetched += len(result.Items)
		for _, item := range result.Items {
			if _, dup := seen[item.ID]; dup {
				duplicateCount++
				continue
			}
			seen[item.ID] = struct{}{}
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		si, sj := score(&items[i]), score(&items[j])
		if si != sj {
			return si > sj
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	uniqueCount := len(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	overlap := 0.0
	if totalFetched > 0 {
		overlap = roundOneDecimal(float64(duplicateCount) / float64(totalFetched) * 100)
	}

	return &AggregateResult{
		Items:           items,
		ProviderResults: results,
		Analytics: GlobalAnalytics{
			TotalFetched:      totalFetched,
			UniqueCount:       uniqueCount,
			DuplicateCount:    duplicateCount,
			OverlapPercentage: overlap,
			ProvidersUsed:     providersUsed,
		},
	}
}

// mergeOrder returns the providers in the declared priority order, followed
// by any providers present in results but absent from the declaration, in
// lexical order so the tie-break stays deterministic.
func mergeOrder(results map[ProviderID]*ProviderResult, priority []ProviderID) []ProviderID {
	order := make([]ProviderID, 0, len(results))
	declared := make(map[ProviderID]struct{}, len(priority))
	for _, id := range priority {
		if _, ok := results[id]; ok {
			order = append(order, id)
			declared[id] = struct{}{}
		}
	}

	var rest []ProviderID
	for id := range results {
		if _, ok := declared[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(order, rest...)
}

func roundOneDecimal(v float64) float64 {
	return math.Round(v*10) / 10
}
