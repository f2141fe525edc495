package newswire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/streamlens/streamlens/internal/search"
)

// ProviderID identifies this provider family.
const ProviderID search.ProviderID = "newswire"

const maxPageSize = 100

// Provider adapts the newswire URL/article search API to the canonical
// search contract.
type Provider struct {
	client *Client
}

// New creates the provider, or nil when no API key is configured.
func New(apiKey, baseURL string) *Provider {
	if apiKey == "" {
		return nil
	}
	return &Provider{client: NewClient(apiKey, baseURL)}
}

// ID returns the provider identifier.
func (p *Provider) ID() search.ProviderID { return ProviderID }

// NativeQuery is the rendered form of the generic filters for this family.
type NativeQuery struct {
	Query    string
	Language string
	SortBy   string
}

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
		name: "tags",
		// The article index has no hashtags; tags become quoted terms.
		applies: func(req *search.Request) bool { return len(req.Tags) > 0 },
		apply: func(req *search.Request, nq *NativeQuery) {
			terms := make([]string, 0, len(req.Tags))
			for _, tag := range req.Tags {
				terms = append(terms, `"`+strings.TrimPrefix(tag, "#")+`"`)
			}
			joined := "(" + strings.Join(terms, " OR ") + ")"
			if nq.Query == "" {
				nq.Query = joined
			} else {
				nq.Query += " AND " + joined
			}
		},
	},
	{
		name:    "author-as-term",
		applies: func(req *search.Request) bool { return req.AuthorHandle != "" },
		apply: func(req *search.Request, nq *NativeQuery) {
			term := `"` + req.AuthorHandle + `"`
			if nq.Query == "" {
				nq.Query = term
			} else {
				nq.Query += " AND " + term
			}
		},
	},
	{
		name:    "region-language",
		applies: func(req *search.Request) bool { return req.Region != "" },
		apply: func(req *search.Request, nq *NativeQuery) {
			tag, err := language.Parse(req.Region)
			if err != nil {
				return
			}
			base, _ := tag.Base()
			nq.Language = base.String()
		},
	},
	{
		name:    "sort-preference",
		applies: func(req *search.Request) bool { return req.SortPreference != "" },
		apply: func(req *search.Request, nq *NativeQuery) {
			switch req.SortPreference {
			case search.SortRecent:
				nq.SortBy = "publishedAt"
			case search.SortPopular:
				nq.SortBy = "popularity"
			}
		},
	},
}

// BuildQuery renders the generic filters into the article search parameters.
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

// Search runs one article search and normalises the envelope.
func (p *Provider) Search(ctx context.Context, logger *logrus.Logger, req *search.Request) (*search.ProviderResult, error) {
	nq := BuildQuery(req)
	if nq.Query == "" {
		return nil, search.NewNotFound("newswire search needs a query, tag or author filter")
	}

	pageSize := req.Limit
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	response, err := p.client.Everything(ctx, logger, nq.Query, nq.Language, nq.SortBy, pageSize)
	if err != nil {
		return nil, err
	}

	result := normalize(response, nq)
	logger.WithFields(logrus.Fields{
		"provider":     ProviderID,
		"query":        nq.Query,
		"result_count": len(result.Items),
	}).Info("Newswire search completed")
	return result, nil
}

// normalize maps articles into canonical items. Articles carry no engagement
// counters, so the metrics slots default to zero explicitly; ranking then
// falls back to recency in the merge.
func normalize(response *searchResponse, nq NativeQuery) *search.ProviderResult {
	items := make([]search.Item, 0, len(response.Articles))
	for _, raw := range response.Articles {
		if raw.URL == "" {
			continue
		}

		text := raw.Title
		if raw.Description != "" {
			text += "\n\n" + raw.Description
		}

		item := search.Item{
			ID:           ArticleID(raw.URL),
			Provider:     ProviderID,
			AuthorHandle: "unknown",
			Text:         text,
			URL:          raw.URL,
			Metrics:      search.Metrics{},
		}
		if raw.Author != "" {
			item.AuthorHandle = raw.Author
		}
		if ts, err := time.Parse(time.RFC3339, raw.PublishedAt); err == nil {
			item.CreatedAt = ts
		}
		if raw.Source.Name != "" {
			item.Tags = append(item.Tags, strings.ToLower(raw.Source.Name))
		}
		items = append(items, item)
	}

	params := map[string]string{"query": nq.Query}
	if nq.Language != "" {
		params["language"] = nq.Language
	}
	if nq.SortBy != "" {
		params["sortBy"] = nq.SortBy
	}

	return &search.ProviderResult{
		Provider:       ProviderID,
		Status:         search.StatusSuccess,
		Items:          items,
		Analytics:      search.ProviderAnalytics{Fetched: len(items)},
		ParametersUsed: params,
	}
}

// ArticleID derives a stable item id from an article URL, since the article
// index assigns none of its own.
func ArticleID(articleURL string) string {
	sum := sha256.Sum256([]byte(articleURL))
	return "a-" + hex.EncodeToString(sum[:8])
}

// CommentScrapeStrategy returns the last-resort enrichment strategy: fetch
// the article page and scrape any server-rendered comments. Most pages
// render none, which degrades gracefully to an empty sequence.
func (p *Provider) CommentScrapeStrategy(logger *logrus.Logger) search.Strategy {
	return search.Strategy{
		Name: "newswire-comment-scrape",
		Fetch: func(ctx context.Context, item *search.Item, max int) ([]search.SubItem, error) {
			if item.URL == "" {
				return nil, nil
			}
			page, err := p.client.FetchPage(ctx, logger, item.URL)
			if err != nil {
				return nil, err
			}
			return scrapeComments(page, item.ID), nil
		},
	}
}

// scrapeComments extracts server-rendered comments from article HTML.
func scrapeComments(page, parentID string) []search.SubItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var subs []search.SubItem
	doc.Find(`[itemprop="comment"], .comment, article.comment, li.comment`).Each(func(i int, sel *goquery.Selection) {
		html, err := goquery.OuterHtml(sel)
		if err != nil {
			return
		}
		text, err := htmltomarkdown.ConvertString(html)
		if err != nil || strings.TrimSpace(text) == "" {
			return
		}

		sub := search.SubItem{
			ID:           parentID + "-c" + strconv.Itoa(i),
			ParentItemID: parentID,
			AuthorHandle: "unknown",
			Text:         strings.TrimSpace(text),
		}
		if author := sel.Find(`[itemprop="author"], .author, .byline`).First().Text(); strings.TrimSpace(author) != "" {
			sub.AuthorHandle = strings.TrimSpace(author)
		}
		if ts, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				sub.CreatedAt = parsed
			}
		}
		if votes := sel.Find(".votes, .upvotes, .score").First().Text(); votes != "" {
			if n, err := strconv.ParseInt(strings.TrimSpace(votes), 10, 64); err == nil {
				sub.Metrics.Primary = n
				sub.EngagementScore = float64(n)
			}
		}
		subs = append(subs, sub)
	})
	return subs
}
