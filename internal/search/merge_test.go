package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successResult(provider ProviderID, items ...Item) *ProviderResult {
	return &ProviderResult{
		Provider:  provider,
		Status:    StatusSuccess,
		Items:     items,
		Analytics: ProviderAnalytics{Fetched: len(items)},
	}
}

func testItem(id string, provider ProviderID, primary, secondary int64, createdAt time.Time) Item {
	return Item{
		ID:           id,
		Provider:     provider,
		AuthorHandle: "someone",
		CreatedAt:    createdAt,
		Metrics:      Metrics{Primary: primary, Secondary: secondary},
		Text:         "item " + id,
	}
}

func TestMergeOverlapAnalytics(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Provider A returns 8 items, provider B returns 5, of which 3 share ids
	// with A's set.
	var aItems []Item
	for i := 0; i < 8; i++ {
		aItems = append(aItems, testItem(fmt.Sprintf("item-%d", i), "alpha", int64(100-i), 0, base.Add(time.Duration(i)*time.Minute)))
	}
	bItems := []Item{
		testItem("item-0", "beta", 5, 0, base),
		testItem("item-1", "beta", 5, 0, base),
		testItem("item-2", "beta", 5, 0, base),
		testItem("item-20", "beta", 50, 0, base),
		testItem("item-21", "beta", 40, 0, base),
	}

	results := map[ProviderID]*ProviderResult{
		"alpha": successResult("alpha", aItems...),
		"beta":  successResult("beta", bItems...),
	}

	aggregate := Merge(results, []ProviderID{"alpha", "beta"}, 10, nil)

	assert.Len(t, aggregate.Items, 10)
	assert.Equal(t, 13, aggregate.Analytics.TotalFetched)
	assert.Equal(t, 10, aggregate.Analytics.UniqueCount)
	assert.Equal(t, 3, aggregate.Analytics.DuplicateCount)
	assert.InDelta(t, 23.1, aggregate.Analytics.OverlapPercentage, 0.001)
	assert.Equal(t, []ProviderID{"alpha", "beta"}, aggregate.Analytics.ProvidersUsed)
}

func TestMergeIsIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	results := map[ProviderID]*ProviderResult{
		"alpha": successResult("alpha",
			testItem("x", "alpha", 10, 2, base),
			testItem("y", "alpha", 7, 1, base.Add(time.Hour)),
		),
		"beta": successResult("beta",
			testItem("x", "beta", 3, 0, base),
			testItem("z", "beta", 9, 0, base),
		),
	}

	first := Merge(results, []ProviderID{"alpha", "beta"}, 0, nil)
	second := Merge(results, []ProviderID{"alpha", "beta"}, 0, nil)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Analytics, second.Analytics)
}

func TestMergeSingleProviderHasNoDuplicates(t *testing.T) {
	base := time.Now().UTC()
	results := map[ProviderID]*ProviderResult{
		"alpha": successResult("alpha",
			testItem("a", "alpha", 1, 0, base),
			testItem("b", "alpha", 2, 0, base),
			testItem("c", "alpha", 3, 0, base),
		),
	}

	aggregate := Merge(results, []ProviderID{"alpha"}, 0, nil)

	assert.Equal(t, 0, aggregate.Analytics.DuplicateCount)
	assert.Equal(t, 0.0, aggregate.Analytics.OverlapPercentage)
	assert.Equal(t, 3, aggregate.Analytics.UniqueCount)
}

func TestMergePriorityDecidesDuplicateWinner(t *testing.T) {
	base := time.Now().UTC()
	results := map[ProviderID]*ProviderResult{
		"alpha": successResult("alpha", testItem("shared", "alpha", 10, 0, base)),
		"beta":  successResult("beta", testItem("shared", "beta", 999, 0, base)),
	}

	aggregate := Merge(results, []ProviderID{"alpha", "beta"}, 0, nil)
	require.Len(t, aggregate.Items, 1)
	// The priority-first provider's copy survives; fields are never combined.
	assert.Equal(t, ProviderID("alpha"), aggregate.Items[0].Provider)
	assert.Equal(t, int64(10), aggregate.Items[0].Metrics.Primary)

	reversed := Merge(results, []ProviderID{"beta", "alpha"}, 0, nil)
	require.Len(t, reversed.Items, 1)
	assert.Equal(t, ProviderID("beta"), reversed.Items[0].Provider)
}

func TestMergeSkipsFailedProviders(t *testing.T) {
	base := time.Now().UTC()
	results := map[ProviderID]*ProviderResult{
		"alpha": successResult("alpha", testItem("a", "alpha", 1, 0, base)),
		"beta":  failedResult("beta", NewAuthFailure("key rejected")),
	}

	aggregate := Merge(results, []ProviderID{"alpha", "beta"}, 0, nil)

	assert.Len(t, aggregate.Items, 1)
	assert.Equal(t, []ProviderID{"alpha"}, aggregate.Analytics.ProvidersUsed)
	assert.Equal(t, 1, aggregate.Analytics.TotalFetched)
	// The failed envelope is still reported per provider.
	require.Contains(t, aggregate.ProviderResults, ProviderID("beta"))
	assert.Equal(t, StatusFailed, aggregate.ProviderResults["beta"].Status)
}

func TestMergeOrdering(t *testing.T) {
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	results := map[ProviderID]*ProviderResult{
		"alpha": successResult("alpha",
			testItem("low", "alpha", 1, 0, newer),
			testItem("high", "alpha", 50, 10, older),
			testItem("tie-old", "alpha", 5, 5, older),
			testItem("tie-new", "alpha", 5, 5, newer),
		),
	}

	aggregate := Merge(results, []ProviderID{"alpha"}, 0, nil)

	got := make([]string, 0, len(aggregate.Items))
	for _, item := range aggregate.Items {
		got = append(got, item.ID)
	}
	// Score descending, then createdAt descending on ties.
	assert.Equal(t, []string{"high", "tie-new", "tie-old", "low"}, got)
}

func TestMergeCustomScoreFunc(t *testing.T) {
	base := time.Now().UTC()
	results := map[ProviderID]*ProviderResult{
		"alpha": successResult("alpha",
			testItem("a", "alpha", 100, 0, base),
			testItem("b", "alpha", 1, 0, base),
		),
	}

	// Invert the ranking: lowest primary first.
	invert := func(item *Item) float64 { return -float64(item.Metrics.Primary) }
	aggregate := Merge(results, []ProviderID{"alpha"}, 0, invert)

	require.Len(t, aggregate.Items, 2)
	assert.Equal(t, "b", aggregate.Items[0].ID)
}

func TestMergeLimit(t *testing.T) {
	base := time.Now().UTC()
	var items []Item
	for i := 0; i < 6; i++ {
		items = append(items, testItem(fmt.Sprintf("i%d", i), "alpha", int64(i), 0, base))
	}
	results := map[ProviderID]*ProviderResult{"alpha": successResult("alpha", items...)}

	capped := Merge(results, []ProviderID{"alpha"}, 4, nil)
	assert.Len(t, capped.Items, 4)
	// UniqueCount reflects the deduplicated set before truncation.
	assert.Equal(t, 6, capped.Analytics.UniqueCount)

	uncapped := Merge(results, []ProviderID{"alpha"}, 0, nil)
	assert.Len(t, uncapped.Items, 6)
}
