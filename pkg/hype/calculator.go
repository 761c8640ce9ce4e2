package hype

import (
	"math"

	"github.com/seo-oobx/invest-curation/pkg/source"
)

// Metric weights; they sum to 1.0.
const (
	weightNewsCount        = 0.25
	weightNewsRanking      = 0.10
	weightRedditPosts      = 0.15
	weightRedditEngagement = 0.15
	weightNaverBuzz        = 0.15
	weightTrend            = 0.20
)

// Normalization caps: a raw value at the cap scores 100 for that metric.
const (
	capNewsCount        = 30
	capNewsRanking      = 3
	capRedditPosts      = 15
	capRedditEngagement = 500
	capNaverBuzz        = 20
)

// Score computes the 0-100 hype score for the current metrics. prev is the
// trend baseline and may be nil.
func Score(cur source.Metrics, prev *source.Metrics) int {
	score := normalized(cur.NewsCount, capNewsCount)*weightNewsCount +
		normalized(cur.NewsRanking, capNewsRanking)*weightNewsRanking +
		normalized(cur.RedditPosts, capRedditPosts)*weightRedditPosts +
		normalized(cur.RedditEngagement, capRedditEngagement)*weightRedditEngagement +
		normalized(cur.NaverBuzz, capNaverBuzz)*weightNaverBuzz +
		trendScore(cur, prev)*weightTrend

	return int(math.Round(math.Min(math.Max(score, 0), 100)))
}

func normalized(raw, limit int) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Min(float64(raw)/float64(limit), 1.0) * 100
}

func trendScore(cur source.Metrics, prev *source.Metrics) float64 {
	current := float64(cur.Total())

	if prev == nil {
		switch {
		case current > 50:
			return 80
		case current > 20:
			return 60
		case current > 5:
			return 40
		}
		return 30
	}

	previous := float64(prev.Total())
	if previous == 0 {
		if current > 10 {
			return 100
		}
		return 60
	}

	growth := (current - previous) / previous
	switch {
	case growth >= 1.0:
		return 100
	case growth >= 0.5:
		return 85
	case growth >= 0.2:
		return 70
	case growth >= 0:
		return 55
	case growth >= -0.2:
		return 40
	}
	return 20
}

// ShouldPromote reports whether a PENDING event is eligible for ACTIVE.
func ShouldPromote(score int, confidence float64) bool {
	if score >= 50 && confidence >= 0.7 {
		return true
	}
	// A very high score overrides a weaker extraction.
	return score >= 70 && confidence >= 0.5
}

// Label is a human-readable buzz bucket for a score.
func Label(score int) string {
	switch {
	case score >= 80:
		return "Very Hot"
	case score >= 60:
		return "Trending"
	case score >= 40:
		return "Notable"
	case score >= 20:
		return "Low Buzz"
	}
	return "Cold"
}
