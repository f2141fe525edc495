package microblog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/streamlens/streamlens/internal/search"
)

// ProviderID identifies this provider family.
const ProviderID search.ProviderID = "microblog"

const (
	// The recent-search endpoint accepts 10..100 results per call.
	minResults = 10
	maxResults = 100
)

// Provider adapts the microblog keyword/hashtag/account search API to the
// canonical search contract.
type Provider struct {
	client *Client
}

// New creates the provider, or nil when no API token is configured.
func New(token, baseURL string) *Provider {
	if token == "" {
		return nil
	}
	return &Provider{client: NewClient(token, baseURL)}
}

// ID returns the provider identifier.
func (p *Provider) ID() search.ProviderID { return ProviderID }

// filterRule maps one generic filter onto the provider's native query
// syntax. The rules are data: adding a filter means adding a row, not
// touching the orchestrator or this provider's control flow.
type filterRule struct {
	name    string
	applies func(req *search.Request) bool
	render  func(req *search.Request) string
}

var queryRules = []filterRule{
	{
		name:    "free-text",
		applies: func(req *search.Request) bool { return req.Query != "" },
		render:  func(req *search.Request) string { return req.Query },
	},
	{
		name:    "tags",
		applies: func(req *search.Request) bool { return len(req.Tags) > 0 },
		render: func(req *search.Request) string {
			parts := make([]string, 0, len(req.Tags))
			for _, tag := range req.Tags {
				parts = append(parts, "#"+strings.TrimPrefix(tag, "#"))
			}
			if len(parts) == 1 {
				return parts[0]
			}
			return "(" + strings.Join(parts, " OR ") + ")"
		},
	},
	{
		name:    "author",
		applies: func(req *search.Request) bool { return req.AuthorHandle != "" },
		render: func(req *search.Request) string {
			return "from:" + strings.TrimPrefix(req.AuthorHandle, "@")
		},
	},
	{
		name:    "region-language",
		applies: func(req *search.Request) bool { return req.Region != "" },
		render: func(req *search.Request) string {
			tag, err := language.Parse(req.Region)
			if err != nil {
				return ""
			}
			base, _ := tag.Base()
			return "lang:" + base.String()
		},
	},
	{
		name:    "exclude-replies",
		applies: func(req *search.Request) bool { return !req.IncludeSubItems },
		render:  func(req *search.Request) string { return "-is:reply" },
	},
	{
		name:    "exclude-reposts",
		applies: func(req *search.Request) bool { return true },
		render:  func(req *search.Request) string { return "-is:retweet" },
	},
}

// BuildQuery renders the generic filters into the provider's native query
// string. Pure function: no I/O.
func BuildQuery(req *search.Request) string {
	var parts []string
	for _, rule := range queryRules {
		if !rule.applies(req) {
			continue
		}
		if fragment := rule.render(req); fragment != "" {
			parts = append(parts, fragment)
		}
	}
	return strings.Join(parts, " ")
}

// sortOrder maps the generic sort preference onto the API's sort_order values.
var sortOrder = map[string]string{
	search.SortRecent:  "recency",
	search.SortPopular: "relevancy",
}

// Search runs one recent-search query and normalises the envelope.
func (p *Provider) Search(ctx context.Context, logger *logrus.Logger, req *search.Request) (*search.ProviderResult, error) {
	query := BuildQuery(req)
	if query == "" {
		return nil, search.NewNotFound("microblog search needs a query, tag or author filter")
	}

	count := clamp(req.Limit, minResults, maxResults)
	response, err := p.client.RecentSearch(ctx, logger, query, count, sortOrder[req.SortPreference])
	if err != nil {
		return nil, err
	}

	result := normalize(response, query)
	logger.WithFields(logrus.Fields{
		"provider":     ProviderID,
		"query":        query,
		"result_count": len(result.Items),
	}).Info("Microblog search completed")
	return result, nil
}

// normalize maps the provider payload into the canonical shapes. Pure
// function; every required field gets an explicit default when the upstream
// omits it.
func normalize(response *searchResponse, queryUsed string) *search.ProviderResult {
	authors := authorIndex(response)

	items := make([]search.Item, 0, len(response.Data))
	var totalEngagement int64
	for _, raw := range response.Data {
		item := search.Item{
			ID:           raw.ID,
			Provider:     ProviderID,
			AuthorHandle: "unknown",
			Text:         raw.Text,
			Metrics: search.Metrics{
				Primary:   raw.PublicMetrics.LikeCount,
				Secondary: raw.PublicMetrics.RetweetCount + raw.PublicMetrics.QuoteCount,
				Tertiary:  raw.PublicMetrics.ReplyCount,
			},
		}
		if handle, ok := authors[raw.AuthorID]; ok && handle != "" {
			item.AuthorHandle = handle
		}
		if ts, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			item.CreatedAt = ts
		}
		for _, tag := range raw.Entities.Hashtags {
			item.Tags = append(item.Tags, strings.ToLower(tag.Tag))
		}
		totalEngagement += item.Metrics.Primary + item.Metrics.Secondary
		items = append(items, item)
	}

	return &search.ProviderResult{
		Provider: ProviderID,
		Status:   search.StatusSuccess,
		Items:    items,
		Analytics: search.ProviderAnalytics{
			Fetched:         len(items),
			TotalEngagement: totalEngagement,
		},
		ParametersUsed: map[string]string{"query": queryUsed},
	}
}

// ReplyStrategy returns the enrichment strategy that fetches a post's
// conversation replies through the same search endpoint.
func (p *Provider) ReplyStrategy(logger *logrus.Logger) search.Strategy {
	return search.Strategy{
		Name: "microblog-conversation",
		Fetch: func(ctx context.Context, item *search.Item, max int) ([]search.SubItem, error) {
			if item.Provider != ProviderID {
				return nil, nil
			}
			query := fmt.Sprintf("conversation_id:%s -is:retweet", item.ID)
			response, err := p.client.RecentSearch(ctx, logger, query, clamp(max, minResults, maxResults), "")
			if err != nil {
				return nil, err
			}
			return normalizeReplies(response, item.ID), nil
		},
	}
}

// normalizeReplies maps a conversation search payload into sub-items,
// resolving author handles through the expanded user objects.
func normalizeReplies(response *searchResponse, parentID string) []search.SubItem {
	authors := authorIndex(response)

	subs := make([]search.SubItem, 0, len(response.Data))
	for _, raw := range response.Data {
		sub := search.SubItem{
			ID:           raw.ID,
			ParentItemID: parentID,
			AuthorHandle: "unknown",
			Text:         raw.Text,
			Metrics: search.Metrics{
				Primary:   raw.PublicMetrics.LikeCount,
				Secondary: raw.PublicMetrics.RetweetCount + raw.PublicMetrics.QuoteCount,
				Tertiary:  raw.PublicMetrics.ReplyCount,
			},
		}
		if handle, ok := authors[raw.AuthorID]; ok && handle != "" {
			sub.AuthorHandle = handle
		}
		sub.EngagementScore = float64(sub.Metrics.Primary + sub.Metrics.Secondary + sub.Metrics.Tertiary)
		if ts, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
			sub.CreatedAt = ts
		}
		subs = append(subs, sub)
	}
	return subs
}

// authorIndex maps expanded author ids to usernames.
func authorIndex(response *searchResponse) map[string]string {
	authors := make(map[string]string, len(response.Includes.Users))
	for _, u := range response.Includes.Users {
		authors[u.ID] = u.Username
	}
	return authors
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
