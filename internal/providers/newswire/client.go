package newswire

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
	// UserAgent for API and page requests
	UserAgent = "streamlens/1.0"

	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxPageBytes caps how much of an article page the comment scraper will
	// read.
	MaxPageBytes = 2 << 20

	courtesyRPS = 1
)

// Client handles HTTP requests to the newswire search API and, for the
// comment-scraping enrichment strategy, to article pages themselves.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a newswire API client.
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(courtesyRPS), 1),
	}
}

// Everything queries the article search endpoint.
func (c *Client) Everything(ctx context.Context, logger *logrus.Logger, query, lang, sortBy string, pageSize int) (*searchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(c.baseURL + "/everything")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	params := reqURL.Query()
	params.Set("q", query)
	params.Set("pageSize", strconv.Itoa(pageSize))
	if lang != "" {
		params.Set("language", lang)
	}
	if sortBy != "" {
		params.Set("sortBy", sortBy)
	}
	reqURL.RawQuery = params.Encode()

	logger.WithFields(logrus.Fields{
		"provider": "newswire",
		"query":    query,
	}).Debug("Making newswire API request")

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"provider":    "newswire",
		}).Warn("Newswire API request failed")

		detail := ""
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			detail = ": " + errResp.Message
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, search.NewAuthFailure("newswire API key rejected" + detail)
		case http.StatusNotFound:
			return nil, search.NewNotFound("newswire target not found" + detail)
		case http.StatusTooManyRequests:
			return nil, search.NewRateLimited("newswire rate limit exceeded"+detail, 0)
		default:
			return nil, search.NewMalformedResponse(fmt.Sprintf("newswire API returned status %d%s", resp.StatusCode, detail))
		}
	}

	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, search.NewMalformedResponse(fmt.Sprintf("failed to parse article search response: %v", err))
	}
	return &response, nil
}

// FetchPage downloads an article page for the comment-scraping strategy.
func (c *Client) FetchPage(ctx context.Context, logger *logrus.Logger, pageURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article page: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close page response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", search.NewNotFound(fmt.Sprintf("article page returned status %d", resp.StatusCode))
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer func() {
			if closeErr := gzipReader.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("Failed to close gzip reader")
			}
		}()
		reader = gzipReader
	}

	body, err := io.ReadAll(io.LimitReader(reader, MaxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read article page: %w", err)
	}
	return string(body), nil
}
