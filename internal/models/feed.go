package models

import "time"

// FeedItemType tags a feed entry.
type FeedItemType string

const (
	FeedItemPost    FeedItemType = "post"
	FeedItemRetweet FeedItemType = "retweet"
)

// PostView is a post annotated for one viewer.
type PostView struct {
	Post
	Author      *UserSummary `json:"author,omitempty"`
	IsLiked     bool         `json:"is_liked"`
	IsRetweeted bool         `json:"is_retweeted"`
	Poll        *PollView    `json:"poll,omitempty"`
}

// FeedItem is one entry of a merged post/retweet timeline. EventID and
// EventTime define the (time, id) order used by cursors.
type FeedItem struct {
	Type           FeedItemType `json:"type"`
	EventID        uint         `json:"event_id"`
	EventTime      time.Time    `json:"event_time"`
	Post           *PostView    `json:"post"`
	RetweetedBy    *UserSummary `json:"retweeted_by,omitempty"`
	RetweetComment string       `json:"retweet_comment,omitempty"`
}

// Page is one cursor-delimited slice of a list endpoint.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// PostAnalytics summarizes engagement on a single post.
type PostAnalytics struct {
	PostID                uint    `json:"post_id"`
	Likes                 int64   `json:"likes"`
	Retweets              int64   `json:"retweets"`
	Comments              int64   `json:"comments"`
	TotalEngagement       int64   `json:"total_engagement"`
	UniqueLikers          int64   `json:"unique_likers"`
	UniqueRetweeters      int64   `json:"unique_retweeters"`
	RecentLikes           int64   `json:"recent_likes"`
	RecentRetweets        int64   `json:"recent_retweets"`
	EngagementRatePercent float64 `json:"engagement_rate_percent"`
}

// HashtagCount is one row of the trending report.
type HashtagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}
