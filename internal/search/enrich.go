package search

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Cascade enriches top-ranked items with sub-items through an ordered list of
// fallback strategies. Enrichment is the most rate-limit-sensitive path, so
// candidates are processed strictly sequentially with a politeness interval
// between them; parallelising this loop would burn the shared quota.
type Cascade struct {
	strategies []Strategy
	politeness time.Duration
	logger     *logrus.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewCascade creates a cascade over the given strategies, attempted in order.
func NewCascade(strategies []Strategy, politeness time.Duration, logger *logrus.Logger) *Cascade {
	return &Cascade{
		strategies: strategies,
		politeness: politeness,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Enrich attaches sub-items to the first maxItems entries of items, in the
// order produced by Merge. For each candidate the strategies run in order;
// the first one returning a non-empty sequence wins. A strategy error is
// logged and falls through to the next strategy. Exhausting every strategy
// leaves the candidate with an empty subItems slice, which is a valid
// terminal state. Cancellation is observed between candidates; the error
// returned is ctx.Err() in that case, with the already-enriched items.
func (c *Cascade) Enrich(ctx context.Context, items []Item, maxItems, maxSubItems int) ([]Item, error) {
	if maxItems > len(items) {
		maxItems = len(items)
	}

	for i := 0; i < maxItems; i++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		if i > 0 && c.politeness > 0 {
			if err := c.sleep(ctx, c.politeness); err != nil {
				return items, err
			}
		}

		items[i].SubItems = c.enrichOne(ctx, &items[i], maxSubItems)
	}
	return items, nil
}

func (c *Cascade) enrichOne(ctx context.Context, item *Item, maxSubItems int) []SubItem {
	for _, strategy := range c.strategies {
		subs, err := strategy.Fetch(ctx, item, maxSubItems)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"strategy": strategy.Name,
				"item":     item.ID,
			}).WithError(err).Debug("Enrichment strategy failed, falling through")
			continue
		}
		subs = prepareSubItems(item, subs, maxSubItems)
		if len(subs) > 0 {
			return subs
		}
	}
	return []SubItem{}
}

// prepareSubItems drops the parent itself, ranks by engagement score
// descending with createdAt descending as tie-break, and truncates.
func prepareSubItems(parent *Item, subs []SubItem, max int) []SubItem {
	filtered := make([]SubItem, 0, len(subs))
	for _, sub := range subs {
		if sub.ID == parent.ID {
			continue
		}
		if sub.ParentItemID == "" {
			sub.ParentItemID = parent.ID
		}
		filtered = append(filtered, sub)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].EngagementScore != filtered[j].EngagementScore {
			return filtered[i].EngagementScore > filtered[j].EngagementScore
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if max > 0 && len(filtered) > max {
		filtered = filtered[:max]
	}
	return filtered
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
