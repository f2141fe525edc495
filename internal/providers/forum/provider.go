package forum

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamlens/streamlens/internal/search"
)

// ProviderID identifies this provider family.
const ProviderID search.ProviderID = "forum"

const maxListingLimit = 100

// Provider adapts the forum's subreddit/user/keyword listings to the
// canonical search contract.
type Provider struct {
	client *Client
}

// New creates the provider. The forum API is keyless, so the provider is
// always available; userAgent must identify the application.
func New(baseURL, userAgent string) *Provider {
	return &Provider{client: NewClient(baseURL, userAgent)}
}

// ID returns the provider identifier.
func (p *Provider) ID() search.ProviderID { return ProviderID }

// NativeQuery is the rendered form of the generic filters for this family:
// a query string plus the subreddit scope, which is path- rather than
// query-encoded.
type NativeQuery struct {
	Query     string
	Subreddit string
	Sort      string
}

// filterRule maps one generic filter onto the native query. Rules are data:
// a new filter is a new row.
type filterRule struct {
	name    string
	applies func(req *search.Request) bool
	apply   func(req *search.Request, nq *NativeQuery)
}

var queryRules = []filterRule{
	{
		name:    "free-text",
		applies: func(req *search.Request) bool { return req.Query != "" },
		apply:   func(req *search.Request, nq *NativeQuery) { nq.Query = req.Query },
	},
	{
		name: "tags-as-subreddits",
		// Tags scope the search to communities; the listing endpoint takes
		// them in the path as /r/a+b/search.
		applies: func(req *search.Request) bool { return len(req.Tags) > 0 },
		apply: func(req *search.Request, nq *NativeQuery) {
			names := make([]string, 0, len(req.Tags))
			for _, tag := range req.Tags {
				names = append(names, strings.TrimPrefix(tag, "#"))
			}
			nq.Subreddit = strings.Join(names, "+")
		},
	},
	{
		name:    "author",
		applies: func(req *search.Request) bool { return req.AuthorHandle != "" },
		apply: func(req *search.Request, nq *NativeQuery) {
			fragment := "author:" + strings.TrimPrefix(req.AuthorHandle, "u/")
			if nq.Query == "" {
				nq.Query = fragment
			} else {
				nq.Query += " " + fragment
			}
		},
	},
	{
		name:    "sort-preference",
		applies: func(req *search.Request) bool { return req.SortPreference != "" },
		apply: func(req *search.Request, nq *NativeQuery) {
			switch req.SortPreference {
			case search.SortRecent:
				nq.Sort = "new"
			case search.SortPopular:
				nq.Sort = "top"
			}
		},
	},
	// The forum has no region filter; the rule table records that the
	// filter is unsupported rather than silently mapping it to something
	// else.
	{
		name:    "region-unsupported",
		applies: func(req *search.Request) bool { return false },
		apply:   func(req *search.Request, nq *NativeQuery) {},
	},
}

// BuildQuery renders the generic filters into the forum's native query.
// Pure function: no I/O.
func BuildQuery(req *search.Request) NativeQuery {
	var nq NativeQuery
	for _, rule := range queryRules {
		if rule.applies(req) {
			rule.apply(req, &nq)
		}
	}
	return nq
}

// Search runs one listing query and normalises the envelope.
func (p *Provider) Search(ctx context.Context, logger *logrus.Logger, req *search.Request) (*search.ProviderResult, error) {
	nq := BuildQuery(req)
	if nq.Query == "" && nq.Subreddit == "" {
		return nil, search.NewNotFound("forum search needs a query, tag or author filter")
	}
	if nq.Query == "" {
		// A bare community scope still needs a term for the search listing.
		nq.Query = "*"
	}

	limit := req.Limit
	if limit <= 0 || limit > maxListingLimit {
		limit = maxListingLimit
	}

	response, err := p.client.Search(ctx, logger, nq.Subreddit, nq.Query, nq.Sort, limit)
	if err != nil {
		return nil, err
	}

	result := normalize(response, nq)
	logger.WithFields(logrus.Fields{
		"provider":     ProviderID,
		"query":        nq.Query,
		"subreddit":    nq.Subreddit,
		"result_count": len(result.Items),
	}).Info("Forum search completed")
	return result, nil
}

// normalize maps listing children into canonical items. Pure function with
// explicit defaults for missing fields.
func normalize(response *listing, nq NativeQuery) *search.ProviderResult {
	items := make([]search.Item, 0, len(response.Data.Children))
	var totalEngagement int64

	for _, ch := range response.Data.Children {
		if ch.Kind != "t3" {
			continue
		}
		var raw thread
		if err := json.Unmarshal(ch.Data, &raw); err != nil {
			continue
		}

		text := raw.Title
		if raw.SelfText != "" {
			text += "\n\n" + raw.SelfText
		}

		item := search.Item{
			ID:           raw.ID,
			Provider:     ProviderID,
			AuthorHandle: "unknown",
			Text:         text,
			URL:          raw.Permalink,
			Metrics: search.Metrics{
				Primary:   raw.Score,
				Secondary: raw.NumComments,
				Tertiary:  raw.Ups,
			},
		}
		if raw.Author != "" {
			item.AuthorHandle = raw.Author
		}
		if raw.CreatedUTC > 0 {
			item.CreatedAt = time.Unix(int64(raw.CreatedUTC), 0).UTC()
		}
		if raw.Subreddit != "" {
			item.Tags = append(item.Tags, strings.ToLower(raw.Subreddit))
		}
		if raw.LinkFlairText != "" {
			item.Tags = append(item.Tags, strings.ToLower(raw.LinkFlairText))
		}

		totalEngagement += item.Metrics.Primary + item.Metrics.Secondary
		items = append(items, item)
	}

	params := map[string]string{"query": nq.Query}
	if nq.Subreddit != "" {
		params["subreddit"] = nq.Subreddit
	}

	return &search.ProviderResult{
		Provider: ProviderID,
		Status:   search.StatusSuccess,
		Items:    items,
		Analytics: search.ProviderAnalytics{
			Fetched:         len(items),
			TotalEngagement: totalEngagement,
		},
		ParametersUsed: params,
	}
}

// CommentStrategy returns the enrichment strategy that fetches a thread's
// comment tree.
func (p *Provider) CommentStrategy(logger *logrus.Logger) search.Strategy {
	return search.Strategy{
		Name: "forum-comment-tree",
		Fetch: func(ctx context.Context, item *search.Item, max int) ([]search.SubItem, error) {
			if item.Provider != ProviderID {
				return nil, nil
			}
			comments, err := p.client.Comments(ctx, logger, item.ID, max)
			if err != nil {
				return nil, err
			}

			subs := make([]search.SubItem, 0, len(comments.Data.Children))
			for _, ch := range comments.Data.Children {
				if ch.Kind != "t1" {
					continue
				}
				var raw comment
				if err := json.Unmarshal(ch.Data, &raw); err != nil {
					continue
				}
				sub := search.SubItem{
					ID:           raw.ID,
					ParentItemID: item.ID,
					AuthorHandle: "unknown",
					Text:         raw.Body,
					Metrics: search.Metrics{
						Primary: raw.Score,
					},
					EngagementScore: float64(raw.Score),
				}
				if raw.Author != "" {
					sub.AuthorHandle = raw.Author
				}
				if raw.CreatedUTC > 0 {
					sub.CreatedAt = time.Unix(int64(raw.CreatedUTC), 0).UTC()
				}
				subs = append(subs, sub)
			}
			return subs, nil
		},
	}
}
