package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubMeter struct {
	name   SourceType
	m      Measurement
	err    error
	panics bool
	terms  chan string
}

func (s *stubMeter) Name() SourceType { return s.name }

func (s *stubMeter) Measure(_ context.Context, keyword string) (Measurement, error) {
	if s.terms != nil {
		s.terms <- keyword
	}
	if s.panics {
		panic("boom")
	}
	return s.m, s.err
}

func TestAggregatorMergesAllSources(t *testing.T) {
	news := &stubMeter{name: SourceRecency, m: Measurement{Count: 12, Ranking: 2}}
	reddit := &stubMeter{name: SourceReddit, m: Measurement{Count: 4, Engagement: 230}, terms: make(chan string, 1)}
	korean := &stubMeter{name: SourceKorean, m: Measurement{Count: 9}}

	got := NewAggregator(news, reddit, korean, discardLogger()).Collect(context.Background(), "Galaxy Unpacked", "005930")
	want := Metrics{NewsCount: 12, NewsRanking: 2, RedditPosts: 4, RedditEngagement: 230, NaverBuzz: 9}
	if got != want {
		t.Errorf("Collect = %+v, want %+v", got, want)
	}
	if term := <-reddit.terms; term != "005930" {
		t.Errorf("reddit queried with %q, want ticker", term)
	}
}

func TestAggregatorPartialFailure(t *testing.T) {
	tests := []struct {
		name   string
		failed int
		want   Metrics
	}{
		{"news fails", 0, Metrics{RedditPosts: 4, RedditEngagement: 230, NaverBuzz: 9}},
		{"reddit fails", 1, Metrics{NewsCount: 12, NewsRanking: 2, NaverBuzz: 9}},
		{"korean panics", 2, Metrics{NewsCount: 12, NewsRanking: 2, RedditPosts: 4, RedditEngagement: 230}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meters := []*stubMeter{
				{name: SourceRecency, m: Measurement{Count: 12, Ranking: 2}},
				{name: SourceReddit, m: Measurement{Count: 4, Engagement: 230}},
				{name: SourceKorean, m: Measurement{Count: 9}},
			}
			bad := meters[tt.failed]
			bad.err = errors.New("status 503")
			if tt.failed == 2 {
				bad.panics = true
			}

			got := NewAggregator(meters[0], meters[1], meters[2], discardLogger()).
				Collect(context.Background(), "keyword", "")
			if got != tt.want {
				t.Errorf("Collect = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAggregatorNilMetersAndNegatives(t *testing.T) {
	news := &stubMeter{name: SourceRecency, m: Measurement{Count: -3, Ranking: -1}}
	reddit := &stubMeter{name: SourceReddit, terms: make(chan string, 1)}

	got := NewAggregator(news, reddit, nil, discardLogger()).Collect(context.Background(), "HBM4", "")
	if got != (Metrics{}) {
		t.Errorf("Collect = %+v, want zeros", got)
	}
	if term := <-reddit.terms; term != "HBM4" {
		t.Errorf("reddit queried with %q, want keyword when no ticker", term)
	}
}

func TestMetricsTotal(t *testing.T) {
	m := Metrics{NewsCount: 1, NewsRanking: 2, RedditPosts: 3, RedditEngagement: 4, NaverBuzz: 5}
	if got := m.Total(); got != 15 {
		t.Errorf("Total = %d, want 15", got)
	}

	m = Metrics{NewsCount: 10, NewsRanking: -2, RedditEngagement: -40, NaverBuzz: 5}
	if got := m.Total(); got != 15 {
		t.Errorf("Total with negatives = %d, want 15", got)
	}
}
