package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedStrategy(name string, subs []SubItem, err error) Strategy {
	return Strategy{
		Name: name,
		Fetch: func(ctx context.Context, item *Item, max int) ([]SubItem, error) {
			return subs, err
		},
	}
}

func noSleep(c *Cascade) *Cascade {
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestEnrichFallsThroughFailedStrategies(t *testing.T) {
	want := []SubItem{{ID: "r1", AuthorHandle: "replier", EngagementScore: 3}}

	c := noSleep(NewCascade([]Strategy{
		fixedStrategy("broken", nil, errors.New("upstream 500")),
		fixedStrategy("empty", nil, nil),
		fixedStrategy("working", want, nil),
	}, time.Second, testLogger()))

	items := []Item{{ID: "parent"}}
	enriched, err := c.Enrich(context.Background(), items, 1, 10)
	require.NoError(t, err)

	require.Len(t, enriched[0].SubItems, 1)
	assert.Equal(t, "r1", enriched[0].SubItems[0].ID)
	assert.Equal(t, "parent", enriched[0].SubItems[0].ParentItemID)
}

func TestEnrichFirstNonEmptyStrategyWins(t *testing.T) {
	var fallbackCalls int
	c := noSleep(NewCascade([]Strategy{
		fixedStrategy("primary", []SubItem{{ID: "from-primary"}}, nil),
		{
			Name: "fallback",
			Fetch: func(ctx context.Context, item *Item, max int) ([]SubItem, error) {
				fallbackCalls++
				return []SubItem{{ID: "from-fallback"}}, nil
			},
		},
	}, 0, testLogger()))

	enriched, err := c.Enrich(context.Background(), []Item{{ID: "parent"}}, 1, 10)
	require.NoError(t, err)
	require.Len(t, enriched[0].SubItems, 1)
	assert.Equal(t, "from-primary", enriched[0].SubItems[0].ID)
	assert.Zero(t, fallbackCalls, "later strategies must not run once one succeeds")
}

func TestEnrichExhaustedStrategiesLeaveEmptySlice(t *testing.T) {
	c := noSleep(NewCascade([]Strategy{
		fixedStrategy("broken", nil, errors.New("nope")),
		fixedStrategy("empty", nil, nil),
	}, 0, testLogger()))

	enriched, err := c.Enrich(context.Background(), []Item{{ID: "parent"}}, 1, 10)
	require.NoError(t, err)
	// Empty but present: the caller can tell "enriched with nothing" apart
	// from "never enriched".
	assert.NotNil(t, enriched[0].SubItems)
	assert.Empty(t, enriched[0].SubItems)
}

func TestEnrichRanksFiltersAndTruncatesSubItems(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	subs := []SubItem{
		{ID: "parent"}, // the parent itself must be dropped
		{ID: "low", EngagementScore: 1, CreatedAt: base},
		{ID: "high", EngagementScore: 9, CreatedAt: base},
		{ID: "tie-new", EngagementScore: 5, CreatedAt: base.Add(time.Hour)},
		{ID: "tie-old", EngagementScore: 5, CreatedAt: base},
	}

	c := noSleep(NewCascade([]Strategy{fixedStrategy("only", subs, nil)}, 0, testLogger()))

	enriched, err := c.Enrich(context.Background(), []Item{{ID: "parent"}}, 1, 3)
	require.NoError(t, err)

	got := make([]string, 0, len(enriched[0].SubItems))
	for _, sub := range enriched[0].SubItems {
		got = append(got, sub.ID)
	}
	assert.Equal(t, []string{"high", "tie-new", "tie-old"}, got)
}

func TestEnrichOnlyTopItems(t *testing.T) {
	var fetched []string
	c := noSleep(NewCascade([]Strategy{{
		Name: "recording",
		Fetch: func(ctx context.Context, item *Item, max int) ([]SubItem, error) {
			fetched = append(fetched, item.ID)
			return []SubItem{{ID: item.ID + "-sub"}}, nil
		},
	}}, 0, testLogger()))

	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	enriched, err := c.Enrich(context.Background(), items, 2, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, fetched)
	assert.Len(t, enriched[0].SubItems, 1)
	assert.Len(t, enriched[1].SubItems, 1)
	assert.Nil(t, enriched[2].SubItems)
	assert.Nil(t, enriched[3].SubItems)
}

func TestEnrichSleepsBetweenCandidates(t *testing.T) {
	c := NewCascade([]Strategy{fixedStrategy("only", []SubItem{{ID: "s"}}, nil)}, 2*time.Second, testLogger())

	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	items := []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	_, err := c.Enrich(context.Background(), items, 3, 10)
	require.NoError(t, err)

	// No pause before the first candidate, one between each pair after.
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, sleeps)
}

func TestEnrichStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c := NewCascade([]Strategy{{
		Name: "only",
		Fetch: func(ctx context.Context, item *Item, max int) ([]SubItem, error) {
			// Cancel while the first candidate is being enriched; the loop
			// must notice before touching the second.
			cancel()
			return []SubItem{{ID: item.ID + "-sub"}}, nil
		},
	}}, 0, testLogger())
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	items := []Item{{ID: "a"}, {ID: "b"}}
	enriched, err := c.Enrich(ctx, items, 2, 10)

	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, enriched[0].SubItems, 1)
	assert.Nil(t, enriched[1].SubItems)
}
