package search

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/streamlens/streamlens/internal/ratelimit"
)

// Orchestrator fans a request out to the selected providers in parallel.
// Partial-failure isolation is its defining property: a provider's error,
// malformed payload or panic produces a Failed envelope for that provider
// only and never aborts sibling calls or the aggregate run.
type Orchestrator struct {
	providers map[ProviderID]Provider
	limiter   *ratelimit.Limiter
	logger    *logrus.Logger
}

// NewOrchestrator creates an orchestrator over the given providers sharing
// one admission limiter.
func NewOrchestrator(providers map[ProviderID]Provider, limiter *ratelimit.Limiter, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		providers: providers,
		limiter:   limiter,
		logger:    logger,
	}
}

// Run issues one query per requested provider. Each admitted call runs
// concurrently; denied or unknown providers fail immediately without blocking
// the others. The returned map always has one entry per requested provider —
// an all-Failed map is a valid return, not an error.
func (o *Orchestrator) Run(ctx context.Context, req *Request) map[ProviderID]*ProviderResult {
	results := make(map[ProviderID]*ProviderResult, len(req.Providers))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range req.Providers {
		provider, ok := o.providers[id]
		if !ok {
			results[id] = failedResult(id, NewNotFound(fmt.Sprintf("provider not configured: %s", id)))
			o.logger.WithField("provider", id).Warn("Requested provider is not configured")
			continue
		}

		// One admission check per provider: a denial costs that provider its
		// slot in this run but never the siblings'.
		if !o.limiter.Admit() {
			retryAfter := o.limiter.TimeUntilReset()
			results[id] = failedResult(id, NewRateLimited("shared provider quota exhausted", retryAfter))
			o.logger.WithFields(logrus.Fields{
				"provider":    id,
				"retry_after": retryAfter,
			}).Warn("Provider call denied by rate limiter")
			continue
		}

		// Pre-allocate the slot so goroutines never write the map concurrently.
		slot := failedResult(id, nil)
		results[id] = slot

		g.Go(func() error {
			result, err := o.callProvider(gctx, provider, req)
			if err != nil {
				perr := AsProviderError(err)
				o.logger.WithFields(logrus.Fields{
					"provider": id,
					"code":     perr.Code,
					"status":   perr.Status,
				}).WithError(err).Warn("Provider query failed")
				*slot = *failedResult(id, perr)
				return nil
			}
			result.Provider = id
			if result.Status == "" {
				result.Status = StatusSuccess
			}
			*slot = *result
			return nil
		})
	}

	// Goroutines always return nil; Wait is purely a join point.
	_ = g.Wait()

	return results
}

// callProvider wraps one provider call, converting panics into errors so a
// misbehaving adapter cannot take down the run.
func (o *Orchestrator) callProvider(ctx context.Context, provider Provider, req *Request) (result *ProviderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("provider %s panicked: %v", provider.ID(), r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return provider.Search(ctx, o.logger, req)
}

// AllFailed reports whether no provider in the map produced a usable result.
func AllFailed(results map[ProviderID]*ProviderResult) bool {
	if len(results) == 0 {
		return true
	}
	for _, result := range results {
		if result.Status != StatusFailed {
			return false
		}
	}
	return true
}

func failedResult(id ProviderID, perr *ProviderError) *ProviderResult {
	return &ProviderResult{
		Provider: id,
		Status:   StatusFailed,
		Items:    []Item{},
		Error:    perr,
	}
}
