package forum

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/streamlens/streamlens/internal/search"
)

const (
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// The forum asks unauthenticated clients to stay at or under 1 rps.
	courtesyRPS = 1
)

// Client handles HTTP requests to the forum's public .json endpoints. The
// API is keyless; etiquette is a descriptive User-Agent and a low request
// rate.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a forum API client.
func NewClient(baseURL, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(courtesyRPS), 1),
	}
}

// Search queries the sitewide or per-subreddit search listing.
func (c *Client) Search(ctx context.Context, logger *logrus.Logger, subreddit, query, sort string, limit int) (*listing, error) {
	endpoint := "/search.json"
	if subreddit != "" {
		endpoint = "/r/" + url.PathEscape(subreddit) + "/search.json"
	}

	params := map[string]string{
		"q":        query,
		"limit":    strconv.Itoa(limit),
		"raw_json": "1",
	}
	if sort != "" {
		params["sort"] = sort
	}
	if subreddit != "" {
		params["restrict_sr"] = "1"
	}

	body, err := c.makeRequest(ctx, logger, endpoint, params)
	if err != nil {
		return nil, err
	}

	var response listing
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, search.NewMalformedResponse(fmt.Sprintf("failed to parse forum search response: %v", err))
	}
	return &response, nil
}

// Comments fetches the comment tree for a thread. The endpoint returns a
// two-element array: the submission listing and the comment listing.
func (c *Client) Comments(ctx context.Context, logger *logrus.Logger, threadID string, limit int) (*listing, error) {
	params := map[string]string{
		"limit":    strconv.Itoa(limit),
		"depth":    "1",
		"raw_json": "1",
	}
	body, err := c.makeRequest(ctx, logger, "/comments/"+url.PathEscape(threadID)+".json", params)
	if err != nil {
		return nil, err
	}

	var envelope []listing
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, search.NewMalformedResponse(fmt.Sprintf("failed to parse comment tree: %v", err))
	}
	if len(envelope) < 2 {
		return nil, search.NewMalformedResponse("comment tree envelope missing comment listing")
	}
	return &envelope[1], nil
}

func (c *Client) makeRequest(ctx context.Context, logger *logrus.Logger, endpoint string, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	query := reqURL.Query()
	for key, value := range params {
		query.Set(key, value)
	}
	reqURL.RawQuery = query.Encode()

	logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"provider": "forum",
	}).Debug("Making forum API request")

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close response body")
		}
	}()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() {
			if closeErr := gzipReader.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("Failed to close gzip reader")
			}
		}()
		reader = gzipReader
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"provider":    "forum",
		}).Warn("Forum API request failed")

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, search.NewAuthFailure("forum rejected the request; check the User-Agent")
		case http.StatusNotFound:
			return nil, search.NewNotFound("forum target not found")
		case http.StatusTooManyRequests:
			retryAfter := time.Duration(0)
			if v := resp.Header.Get("Retry-After"); v != "" {
				if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
					retryAfter = time.Duration(secs) * time.Second
				}
			}
			return nil, search.NewRateLimited("forum rate limit exceeded", retryAfter)
		default:
			return nil, search.NewMalformedResponse(fmt.Sprintf("forum API returned status %d", resp.StatusCode))
		}
	}
	return body, nil
}
