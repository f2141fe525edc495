package microblog

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
	// UserAgent for API requests
	UserAgent = "streamlens/1.0"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// courtesyRPS is the per-client request rate kept well under the
	// documented per-app ceiling; the shared admission limiter is enforced
	// upstream by the orchestrator.
	courtesyRPS = 1
)

// Client handles HTTP requests to the microblog search API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a bearer-token API client.
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(courtesyRPS), 1),
	}
}

// RecentSearch queries the recent-search endpoint with a native query string.
func (c *Client) RecentSearch(ctx context.Context, logger *logrus.Logger, query string, maxResults int, sortOrder string) (*searchResponse, error) {
	params := map[string]string{
		"query":        query,
		"max_results":  strconv.Itoa(maxResults),
		"tweet.fields": "created_at,public_metrics,entities,conversation_id",
		"expansions":   "author_id",
		"user.fields":  "username",
	}
	if sortOrder != "" {
		params["sort_order"] = sortOrder
	}

	body, err := c.makeRequest(ctx, logger, "/tweets/search/recent", params)
	if err != nil {
		return nil, err
	}

	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, search.NewMalformedResponse(fmt.Sprintf("failed to parse recent search response: %v", err))
	}
	return &response, nil
}

// makeRequest performs one HTTP request against the API, mapping status
// classes onto the canonical error taxonomy.
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
		"provider": "microblog",
	}).Debug("Making microblog API request")

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", UserAgent)

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
		return nil, c.statusError(logger, resp, body)
	}
	return body, nil
}

func (c *Client) statusError(logger *logrus.Logger, resp *http.Response, body []byte) error {
	logger.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"provider":    "microblog",
	}).Warn("Microblog API request failed")

	detail := ""
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		detail = ": " + errResp.Detail
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return search.NewAuthFailure("microblog authentication failed" + detail)
	case http.StatusNotFound:
		return search.NewNotFound("microblog target not found" + detail)
	case http.StatusTooManyRequests:
		return search.NewRateLimited("microblog rate limit exceeded"+detail, retryAfter(resp))
	default:
		return search.NewMalformedResponse(fmt.Sprintf("microblog API returned status %d%s", resp.StatusCode, detail))
	}
}

// retryAfter reads the Retry-After header, preferring the delta-seconds form.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if until := time.Until(time.Unix(epoch, 0)); until > 0 {
				return until
			}
		}
	}
	return 0
}
