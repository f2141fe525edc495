package forum

import "encoding/json"

// Wire types for the forum's public listing endpoints.

type listing struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	Children []child `json:"children"`
	After    string  `json:"after"`
}

type child struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// thread is a submission (kind "t3").
type thread struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	SelfText      string  `json:"selftext"`
	Author        string  `json:"author"`
	Subreddit     string  `json:"subreddit"`
	LinkFlairText string  `json:"link_flair_text"`
	Permalink     string  `json:"permalink"`
	CreatedUTC    float64 `json:"created_utc"`
	Score         int64   `json:"score"`
	Ups           int64   `json:"ups"`
	NumComments   int64   `json:"num_comments"`
}

// comment is a reply (kind "t1").
type comment struct {
	ID         string          `json:"id"`
	Body       string          `json:"body"`
	Author     string          `json:"author"`
	CreatedUTC float64         `json:"created_utc"`
	Score      int64           `json:"score"`
	Replies    json.RawMessage `json:"replies"`
}
