package source

import (
	"context"
	"log/slog"
	"sync"
)

// Aggregator fans a keyword out to the news, reddit and Korean buzz meters
// and merges their results. A failing meter contributes zeros.
type Aggregator struct {
	news   Meter
	reddit Meter
	korean Meter
	logger *slog.Logger
}

// NewAggregator creates an aggregator. Any meter may be nil.
func NewAggregator(news, reddit, korean Meter, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{news: news, reddit: reddit, korean: korean, logger: logger}
}

// Collect measures keyword on every meter. The reddit meter is queried with
// ticker when one is given.
func (a *Aggregator) Collect(ctx context.Context, keyword, ticker string) Metrics {
	socialTerm := keyword
	if ticker != "" {
		socialTerm = ticker
	}

	var (
		wg                 sync.WaitGroup
		news, reddit, buzz Measurement
	)
	run := func(m Meter, term string, out *Measurement) {
		if m == nil {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			*out = a.measure(ctx, m, term)
		}()
	}

	run(a.news, keyword, &news)
	run(a.reddit, socialTerm, &reddit)
	run(a.korean, keyword, &buzz)
	wg.Wait()

	return Metrics{
		NewsCount:        news.Count,
		NewsRanking:      news.Ranking,
		RedditPosts:      reddit.Count,
		RedditEngagement: reddit.Engagement,
		NaverBuzz:        buzz.Count,
	}
}

func (a *Aggregator) measure(ctx context.Context, m Meter, term string) (out Measurement) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("source panicked", "source", m.Name(), "keyword", term, "panic", r)
			out = Measurement{}
		}
	}()

	res, err := m.Measure(ctx, term)
	if err != nil {
		a.logger.Warn("source failed", "source", m.Name(), "keyword", term, "err", err)
		return Measurement{}
	}
	return nonNegative(res)
}

func nonNegative(m Measurement) Measurement {
	if m.Count < 0 {
		m.Count = 0
	}
	if m.Engagement < 0 {
		m.Engagement = 0
	}
	if m.Ranking < 0 {
		m.Ranking = 0
	}
	return m
}
