package forum

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamlens/streamlens/internal/search"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		request  search.Request
		expected NativeQuery
	}{
		{
			name:     "free text only",
			request:  search.Request{Query: "kubernetes"},
			expected: NativeQuery{Query: "kubernetes"},
		},
		{
			name:     "tags scope to communities",
			request:  search.Request{Tags: []string{"golang", "programming"}},
			expected: NativeQuery{Subreddit: "golang+programming"},
		},
		{
			name:     "tags strip hash prefixes",
			request:  search.Request{Tags: []string{"#golang"}},
			expected: NativeQuery{Subreddit: "golang"},
		},
		{
			name:     "author appends an operator",
			request:  search.Request{Query: "generics", AuthorHandle: "u/gopher"},
			expected: NativeQuery{Query: "generics author:gopher"},
		},
		{
			name:     "author alone becomes the query",
			request:  search.Request{AuthorHandle: "gopher"},
			expected: NativeQuery{Query: "author:gopher"},
		},
		{
			name:     "recent sort",
			request:  search.Request{Query: "x", SortPreference: search.SortRecent},
			expected: NativeQuery{Query: "x", Sort: "new"},
		},
		{
			name:     "popular sort",
			request:  search.Request{Query: "x", SortPreference: search.SortPopular},
			expected: NativeQuery{Query: "x", Sort: "top"},
		},
		{
			name:     "region has no mapping here",
			request:  search.Request{Query: "x", Region: "de-DE"},
			expected: NativeQuery{Query: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildQuery(&tt.request))
		})
	}
}

func TestNormalize(t *testing.T) {
	payload := `{
		"kind": "Listing",
		"data": {
			"children": [
				{
					"kind": "t3",
					"data": {
						"id": "abc123",
						"title": "Go 1.25 released",
						"selftext": "Release notes inside.",
						"author": "gopher",
						"subreddit": "golang",
						"link_flair_text": "News",
						"permalink": "/r/golang/comments/abc123/go_125_released/",
						"created_utc": 1740830400,
						"score": 250,
						"ups": 260,
						"num_comments": 42
					}
				},
				{
					"kind": "t1",
					"data": {"id": "ignored-comment"}
				},
				{
					"kind": "t3",
					"data": {"id": "bare", "title": "minimal thread"}
				}
			],
			"after": null
		}
	}`

	var response listing
	require.NoError(t, json.Unmarshal([]byte(payload), &response))

	result := normalize(&response, NativeQuery{Query: "go", Subreddit: "golang"})
	require.Len(t, result.Items, 2, "non-thread children are skipped")

	first := result.Items[0]
	assert.Equal(t, "abc123", first.ID)
	assert.Equal(t, ProviderID, first.Provider)
	assert.Equal(t, "gopher", first.AuthorHandle)
	assert.Equal(t, "Go 1.25 released\n\nRelease notes inside.", first.Text)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), first.CreatedAt)
	assert.Equal(t, int64(250), first.Metrics.Primary)
	assert.Equal(t, int64(42), first.Metrics.Secondary)
	assert.Equal(t, int64(260), first.Metrics.Tertiary)
	assert.Equal(t, []string{"golang", "news"}, first.Tags)

	second := result.Items[1]
	assert.Equal(t, "unknown", second.AuthorHandle)
	assert.True(t, second.CreatedAt.IsZero())
	assert.Empty(t, second.Tags)

	assert.Equal(t, search.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Analytics.Fetched)
	assert.Equal(t, int64(292), result.Analytics.TotalEngagement)
	assert.Equal(t, "golang", result.ParametersUsed["subreddit"])
}

func TestProviderAlwaysAvailable(t *testing.T) {
	assert.NotNil(t, New("https://example.test", "agent/1.0"))
}
