package microblog

// Wire types for the microblog recent-search API.

type searchResponse struct {
	Data     []post   `json:"data"`
	Includes includes `json:"includes"`
	Meta     meta     `json:"meta"`
}

type post struct {
	ID             string        `json:"id"`
	Text           string        `json:"text"`
	AuthorID       string        `json:"author_id"`
	ConversationID string        `json:"conversation_id"`
	CreatedAt      string        `json:"created_at"`
	PublicMetrics  publicMetrics `json:"public_metrics"`
	Entities       entities      `json:"entities"`
}

type publicMetrics struct {
	RetweetCount int64 `json:"retweet_count"`
	ReplyCount   int64 `json:"reply_count"`
	LikeCount    int64 `json:"like_count"`
	QuoteCount   int64 `json:"quote_count"`
}

type entities struct {
	Hashtags []hashtag `json:"hashtags"`
}

type hashtag struct {
	Tag string `json:"tag"`
}

type includes struct {
	Users []user `json:"users"`
}

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type meta struct {
	ResultCount int `json:"result_count"`
}

type errorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
