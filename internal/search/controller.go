package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamlens/streamlens/internal/cache"
)

// ControllerConfig tunes the controller's persistence and enrichment bounds.
type ControllerConfig struct {
	// Owner namespaces the persisted keys, e.g. a user id.
	Owner string
	// ParamsTTL and ResultTTL bound how long the last request and result stay
	// retrievable.
	ParamsTTL time.Duration
	ResultTTL time.Duration
	// ProgressTTL is the staleness threshold: a Searching record older than
	// this is treated as abandoned during reconciliation.
	ProgressTTL time.Duration
	// CompletionGrace is the window during which a cached result counts as
	// the completion of a still-Searching progress record (the race between
	// completion and reload).
	CompletionGrace time.Duration
	// MaxEnrichItems / MaxSubItemsPerItem bound the enrichment cascade.
	MaxEnrichItems     int
	MaxSubItemsPerItem int
	// Priority is the provider order used as the dedup tie-break.
	Priority []ProviderID
	// Score overrides the default ranking function when non-nil.
	Score ScoreFunc
}

// storedResult is the persisted shape of a completed search, carrying enough
// metadata for reconciliation to match it against a progress record.
type storedResult struct {
	SearchID    string           `json:"searchId"`
	CompletedAt time.Time        `json:"completedAt"`
	Aggregate   *AggregateResult `json:"aggregate"`
}

// Controller is the top-level state machine. It owns the progress record and
// the rate limiter state: at most one search is in flight per controller, and
// a new submit cancels the previous one before anything else happens.
type Controller struct {
	orchestrator *Orchestrator
	cascade      *Cascade
	store        cache.Store
	logger       *logrus.Logger
	cfg          ControllerConfig

	mu       sync.Mutex
	searchID string
	cancel   context.CancelFunc
	now      func() time.Time
}

// NewController wires a controller over an orchestrator, cascade and store.
func NewController(orchestrator *Orchestrator, cascade *Cascade, store cache.Store, cfg ControllerConfig, logger *logrus.Logger) *Controller {
	if cfg.Owner == "" {
		cfg.Owner = "default"
	}
	return &Controller{
		orchestrator: orchestrator,
		cascade:      cascade,
		store:        store,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Submit runs a search end to end: it cancels any in-flight search, persists
// a Searching progress record, fans out to the providers, merges, enriches,
// persists the aggregate and marks the record Completed. On cancellation the
// partial result is discarded, not persisted. When every provider fails the
// record transitions to Error and the aggregate-level error is returned.
func (c *Controller) Submit(ctx context.Context, req *Request) (*Result, error) {
	runCtx, searchID := c.begin(ctx, req)
	defer c.finishRun(searchID)

	if req.IssuedAt.IsZero() {
		req.IssuedAt = c.now()
	}

	record := ProgressRecord{
		SearchID:      searchID,
		Request:       *req,
		State:         StateSearching,
		StartedAt:     c.now(),
		LastUpdatedAt: c.now(),
	}
	var saveErr error
	if !c.persistIfCurrent(searchID, func() {
		saveErr = c.saveProgress(&record)
		if err := cache.SetJSON(c.store, cache.Key(cache.KeyParams, c.cfg.Owner), req, c.cfg.ParamsTTL); err != nil {
			c.logger.WithError(err).Warn("Failed to persist search parameters")
		}
	}) {
		return nil, NewCancelled("search cancelled")
	}
	if saveErr != nil {
		return nil, fmt.Errorf("failed to persist progress record: %w", saveErr)
	}

	c.logger.WithFields(logrus.Fields{
		"search_id": searchID,
		"providers": req.Providers,
		"query":     req.Query,
	}).Info("Search submitted")

	results := c.orchestrator.Run(runCtx, req)

	if err := runCtx.Err(); err != nil {
		return nil, c.markCancelled(&record)
	}

	if AllFailed(results) {
		perr := NewAllProvidersFailed(describeFailures(results))
		if !c.persistIfCurrent(searchID, func() {
			record.State = StateError
			record.Error = perr.Message
			record.LastUpdatedAt = c.now()
			if err := c.saveProgress(&record); err != nil {
				c.logger.WithError(err).Warn("Failed to persist error state")
			}
		}) {
			return nil, c.markCancelled(&record)
		}
		return nil, perr
	}

	aggregate := Merge(results, c.cfg.Priority, req.Limit, c.cfg.Score)

	if req.IncludeSubItems && c.cascade != nil {
		enriched, err := c.cascade.Enrich(runCtx, aggregate.Items, c.cfg.MaxEnrichItems, c.cfg.MaxSubItemsPerItem)
		if err != nil {
			return nil, c.markCancelled(&record)
		}
		aggregate.Items = enriched
	}

	if err := runCtx.Err(); err != nil {
		return nil, c.markCancelled(&record)
	}

	if !c.persistIfCurrent(searchID, func() {
		stored := storedResult{SearchID: searchID, CompletedAt: c.now(), Aggregate: aggregate}
		if err := cache.SetJSON(c.store, cache.Key(cache.KeyResults, c.cfg.Owner), &stored, c.cfg.ResultTTL); err != nil {
			c.logger.WithError(err).Warn("Failed to persist aggregate result")
		}
		record.State = StateCompleted
		record.LastUpdatedAt = c.now()
		if err := c.saveProgress(&record); err != nil {
			c.logger.WithError(err).Warn("Failed to persist completion")
		}
	}) {
		return nil, c.markCancelled(&record)
	}

	c.logger.WithFields(logrus.Fields{
		"search_id": searchID,
		"unique":    aggregate.Analytics.UniqueCount,
		"dupes":     aggregate.Analytics.DuplicateCount,
	}).Info("Search completed")

	return &Result{
		SearchID:        searchID,
		State:           StateCompleted,
		Items:           aggregate.Items,
		Analytics:       aggregate.Analytics,
		ProviderResults: aggregate.ProviderResults,
	}, nil
}

// Cancel raises the cancellation signal for the in-flight search, if any.
// The running Submit observes it at its next suspension point and discards
// partial results.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Progress returns the persisted progress record, if any.
func (c *Controller) Progress() (*ProgressRecord, bool, error) {
	var record ProgressRecord
	ok, err := cache.GetJSON(c.store, cache.Key(cache.KeyProgress, c.cfg.Owner), &record)
	if err != nil || !ok {
		return nil, false, err
	}
	return &record, true, nil
}

// CachedResult returns the last persisted aggregate, if still fresh.
func (c *Controller) CachedResult() (*Result, bool, error) {
	var stored storedResult
	ok, err := cache.GetJSON(c.store, cache.Key(cache.KeyResults, c.cfg.Owner), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Result{
		SearchID:        stored.SearchID,
		State:           StateCompleted,
		Items:           stored.Aggregate.Items,
		Analytics:       stored.Aggregate.Analytics,
		ProviderResults: stored.Aggregate.ProviderResults,
	}, true, nil
}

// Reconcile resolves a search interrupted by a reload or crash. Run it once
// when the controller is (re)constructed.
//
// A Searching record older than the staleness threshold is abandoned and
// discarded. A Searching record whose searchId matches a cached result
// younger than the completion grace window lost the race against its own
// completion: it is marked Completed and the cached result is surfaced
// without re-issuing provider calls. Any other Searching record re-submits
// the original request — a restart, not a resume, since sub-search progress
// is never persisted. Terminal records need no action.
func (c *Controller) Reconcile(ctx context.Context) (*Result, error) {
	record, ok, err := c.Progress()
	if err != nil {
		return nil, fmt.Errorf("failed to load progress record: %w", err)
	}
	if !ok || record.State != StateSearching {
		return nil, nil
	}

	log := c.logger.WithField("search_id", record.SearchID)

	if c.now().Sub(record.LastUpdatedAt) > c.cfg.ProgressTTL {
		log.Info("Abandoning stale interrupted search")
		if err := c.store.Delete(cache.Key(cache.KeyProgress, c.cfg.Owner)); err != nil {
			c.logger.WithError(err).Warn("Failed to discard stale progress record")
		}
		return nil, nil
	}

	var stored storedResult
	ok, err = cache.GetJSON(c.store, cache.Key(cache.KeyResults, c.cfg.Owner), &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached result: %w", err)
	}
	if ok && stored.SearchID == record.SearchID && c.now().Sub(stored.CompletedAt) <= c.cfg.CompletionGrace {
		log.Info("Interrupted search had already completed, surfacing cached result")
		record.State = StateCompleted
		record.LastUpdatedAt = c.now()
		if err := c.saveProgress(record); err != nil {
			c.logger.WithError(err).Warn("Failed to persist reconciled completion")
		}
		return &Result{
			SearchID:        stored.SearchID,
			State:           StateCompleted,
			Items:           stored.Aggregate.Items,
			Analytics:       stored.Aggregate.Analytics,
			ProviderResults: stored.Aggregate.ProviderResults,
		}, nil
	}

	log.Info("Restarting interrupted search")
	request := record.Request
	return c.Submit(ctx, &request)
}

// begin cancels any previous in-flight search and registers the new one.
func (c *Controller) begin(ctx context.Context, req *Request) (context.Context, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	searchID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	c.searchID = searchID
	c.cancel = cancel
	return runCtx, searchID
}

// finishRun drops the cancel handle if it still belongs to this search.
func (c *Controller) finishRun(searchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchID == searchID && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// persistIfCurrent runs write while holding the controller lock, but only
// when searchID is still the in-flight search. A superseded submit must not
// touch the persisted records: its successor already owns them.
func (c *Controller) persistIfCurrent(searchID string, write func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.searchID != searchID {
		return false
	}
	write()
	return true
}

func (c *Controller) markCancelled(record *ProgressRecord) error {
	written := c.persistIfCurrent(record.SearchID, func() {
		record.State = StateCancelled
		record.LastUpdatedAt = c.now()
		if err := c.saveProgress(record); err != nil {
			c.logger.WithError(err).Warn("Failed to persist cancellation")
		}
	})
	if written {
		c.logger.WithField("search_id", record.SearchID).Info("Search cancelled, partial results discarded")
	} else {
		c.logger.WithField("search_id", record.SearchID).Debug("Superseded search skipped its cancellation write")
	}
	return NewCancelled("search cancelled")
}

func (c *Controller) saveProgress(record *ProgressRecord) error {
	return cache.SetJSON(c.store, cache.Key(cache.KeyProgress, c.cfg.Owner), record, c.cfg.ProgressTTL)
}

// describeFailures builds the single aggregate-level error message listing
// which providers failed and why.
func describeFailures(results map[ProviderID]*ProviderResult) string {
	msg := "all providers failed:"
	for _, id := range sortedIDs(results) {
		result := results[id]
		if result.Error != nil {
			msg += fmt.Sprintf(" %s=%s(%d);", id, result.Error.Code, result.Error.Status)
		} else {
			msg += fmt.Sprintf(" %s=failed;", id)
		}
	}
	return msg
}

func sortedIDs(results map[ProviderID]*ProviderResult) []ProviderID {
	ids := make([]ProviderID, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
