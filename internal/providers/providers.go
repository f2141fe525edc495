// Package providers assembles the configured provider set. Each family
// registers only when its credentials are present, so an unconfigured
// provider is simply absent rather than failing at call time.
package providers

import (
	"github.com/sirupsen/logrus"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/providers/forum"
	"github.com/streamlens/streamlens/internal/providers/microblog"
	"github.com/streamlens/streamlens/internal/providers/newswire"
	"github.com/streamlens/streamlens/internal/search"
)

// Set is the assembled provider map plus everything derived from it: the
// dedup priority order and the enrichment strategies, in cascade order.
type Set struct {
	Providers  map[search.ProviderID]search.Provider
	Priority   []search.ProviderID
	Strategies []search.Strategy
}

// Priority order for the merge tie-break: the microblog returns the richest
// engagement metrics, so its copy of an overlapping item wins.
var defaultPriority = []search.ProviderID{
	microblog.ProviderID,
	forum.ProviderID,
	newswire.ProviderID,
}

// FromConfig builds the provider set for the given configuration.
func FromConfig(cfg *config.Config, logger *logrus.Logger) *Set {
	set := &Set{
		Providers: make(map[search.ProviderID]search.Provider),
	}

	if p := microblog.New(cfg.Microblog.Token, cfg.Microblog.BaseURL); p != nil {
		set.Providers[microblog.ProviderID] = p
		set.Strategies = append(set.Strategies, p.ReplyStrategy(logger))
	} else {
		logger.Debug("Microblog provider not configured (no API token)")
	}

	// The forum API is keyless and therefore always available.
	forumProvider := forum.New(cfg.Forum.BaseURL, cfg.Forum.UserAgent)
	set.Providers[forum.ProviderID] = forumProvider
	set.Strategies = append(set.Strategies, forumProvider.CommentStrategy(logger))

	if p := newswire.New(cfg.Newswire.APIKey, cfg.Newswire.BaseURL); p != nil {
		set.Providers[newswire.ProviderID] = p
		set.Strategies = append(set.Strategies, p.CommentScrapeStrategy(logger))
	} else {
		logger.Debug("Newswire provider not configured (no API key)")
	}

	for _, id := range defaultPriority {
		if _, ok := set.Providers[id]; ok {
			set.Priority = append(set.Priority, id)
		}
	}

	logger.WithField("providers", set.Priority).Info("Providers configured")
	return set
}
