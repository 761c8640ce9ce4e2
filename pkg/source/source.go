package source

import (
	"context"
	"time"
)

// SourceType identifies which signal source produced a value.
type SourceType string

const (
	SourceGoogleNews SourceType = "google_news"
	SourceRecency    SourceType = "news_recency"
	SourceReddit     SourceType = "reddit"
	SourceKorean     SourceType = "korean_buzz"
)

// Candidate is an unverified news item that may describe a future event.
type Candidate struct {
	Ticker           string    `json:"ticker"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	SourceURL        string    `json:"source_url"`
	PublishedAt      time.Time `json:"published_at"`
	HasFutureKeyword bool      `json:"has_future_keyword"`
	Language         string    `json:"language"`
}

// Measurement is what a single meter reports for one keyword.
type Measurement struct {
	Count      int
	Engagement int
	Ranking    int
}

// Discoverer finds candidate news items for a ticker.
type Discoverer interface {
	Discover(ctx context.Context, ticker string) ([]Candidate, error)
}

// Meter measures attention for a keyword on one platform.
type Meter interface {
	Name() SourceType
	Measure(ctx context.Context, keyword string) (Measurement, error)
}

// Metrics is the merged per-cycle observation used by the hype score.
type Metrics struct {
	NewsCount        int `json:"news_count"`
	NewsRanking      int `json:"news_ranking"`
	RedditPosts      int `json:"reddit_posts"`
	RedditEngagement int `json:"reddit_engagement"`
	NaverBuzz        int `json:"naver_buzz"`
}

// Total sums the five normalizable metrics. Negative values count as 0.
func (m Metrics) Total() int {
	total := 0
	for _, v := range []int{m.NewsCount, m.NewsRanking, m.RedditPosts, m.RedditEngagement, m.NaverBuzz} {
		if v > 0 {
			total += v
		}
	}
	return total
}
