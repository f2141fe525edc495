package microblog

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
		expected string
	}{
		{
			name:     "free text only",
			request:  search.Request{Query: "golang generics"},
			expected: "golang generics -is:reply -is:retweet",
		},
		{
			name:     "single tag",
			request:  search.Request{Tags: []string{"golang"}},
			expected: "#golang -is:reply -is:retweet",
		},
		{
			name:     "multiple tags become an OR group",
			request:  search.Request{Tags: []string{"golang", "#rustlang"}},
			expected: "(#golang OR #rustlang) -is:reply -is:retweet",
		},
		{
			name:     "author handle strips the at sign",
			request:  search.Request{AuthorHandle: "@gopher"},
			expected: "from:gopher -is:reply -is:retweet",
		},
		{
			name:     "region maps to a language operator",
			request:  search.Request{Query: "news", Region: "de-DE"},
			expected: "news lang:de -is:reply -is:retweet",
		},
		{
			name:     "unparseable region is skipped",
			request:  search.Request{Query: "news", Region: "not a region"},
			expected: "news -is:reply -is:retweet",
		},
		{
			name:     "including sub-items keeps replies",
			request:  search.Request{Query: "golang", IncludeSubItems: true},
			expected: "golang -is:retweet",
		},
		{
			name: "all filters combined",
			request: search.Request{
				Query:        "release",
				Tags:         []string{"golang"},
				AuthorHandle: "gopher",
				Region:       "en",
			},
			expected: "release #golang from:gopher lang:en -is:reply -is:retweet",
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
		"data": [
			{
				"id": "1001",
				"text": "Go 1.25 is out #golang",
				"author_id": "u1",
				"created_at": "2025-03-01T12:00:00Z",
				"public_metrics": {"retweet_count": 5, "reply_count": 3, "like_count": 40, "quote_count": 2},
				"entities": {"hashtags": [{"tag": "GoLang"}]}
			},
			{
				"id": "1002",
				"text": "no author in includes",
				"author_id": "u-missing",
				"public_metrics": {"like_count": 1}
			}
		],
		"includes": {"users": [{"id": "u1", "username": "gopher"}]},
		"meta": {"result_count": 2}
	}`

	var response searchResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &response))

	result := normalize(&response, "q")
	require.Len(t, result.Items, 2)

	first := result.Items[0]
	assert.Equal(t, "1001", first.ID)
	assert.Equal(t, ProviderID, first.Provider)
	assert.Equal(t, "gopher", first.AuthorHandle)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), first.CreatedAt)
	assert.Equal(t, int64(40), first.Metrics.Primary)
	assert.Equal(t, int64(7), first.Metrics.Secondary, "reposts plus quotes")
	assert.Equal(t, int64(3), first.Metrics.Tertiary)
	assert.Equal(t, []string{"golang"}, first.Tags)

	second := result.Items[1]
	assert.Equal(t, "unknown", second.AuthorHandle)
	assert.True(t, second.CreatedAt.IsZero())

	assert.Equal(t, search.StatusSuccess, result.Status)
	assert.Equal(t, 2, result.Analytics.Fetched)
	assert.Equal(t, int64(48), result.Analytics.TotalEngagement)
	assert.Equal(t, "q", result.ParametersUsed["query"])
}

func TestNormalizeReplies(t *testing.T) {
	payload := `{
		"data": [
			{
				"id": "2001",
				"text": "Nice release!",
				"author_id": "u1",
				"created_at": "2025-03-01T13:00:00Z",
				"public_metrics": {"retweet_count": 1, "reply_count": 2, "like_count": 4, "quote_count": 0}
			},
			{
				"id": "2002",
				"text": "author not expanded",
				"author_id": "u-missing"
			}
		],
		"includes": {"users": [{"id": "u1", "username": "replier"}]},
		"meta": {"result_count": 2}
	}`

	var response searchResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &response))

	subs := normalizeReplies(&response, "1001")
	require.Len(t, subs, 2)

	first := subs[0]
	assert.Equal(t, "2001", first.ID)
	assert.Equal(t, "1001", first.ParentItemID)
	assert.Equal(t, "replier", first.AuthorHandle, "expanded author must be resolved")
	assert.Equal(t, time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC), first.CreatedAt)
	assert.Equal(t, 7.0, first.EngagementScore)

	assert.Equal(t, "unknown", subs[1].AuthorHandle)
}

func TestNewRequiresToken(t *testing.T) {
	assert.Nil(t, New("", "https://example.test"))
	assert.NotNil(t, New("token", "https://example.test"))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 10, clamp(0, 10, 100))
	assert.Equal(t, 10, clamp(3, 10, 100))
	assert.Equal(t, 42, clamp(42, 10, 100))
	assert.Equal(t, 100, clamp(500, 10, 100))
}
