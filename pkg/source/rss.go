package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	defaultGoogleNewsURL = "https://news.google.com"
	userAgent            = "alphacal/1.0"
)

// feedLocale selects a Google News edition.
type feedLocale struct {
	lang string // tag recorded on candidates
	hl   string
	gl   string
	ceid string
}

var (
	localeKR = feedLocale{lang: "KR", hl: "ko", gl: "KR", ceid: "KR:ko"}
	localeEN = feedLocale{lang: "EN", hl: "en", gl: "US", ceid: "US:en"}
)

// feedClient fetches and parses Google News search feeds.
type feedClient struct {
	client  *http.Client
	parser  *gofeed.Parser
	baseURL string
}

func newFeedClient(baseURL string, timeout time.Duration) feedClient {
	if baseURL == "" {
		baseURL = defaultGoogleNewsURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return feedClient{
		client:  &http.Client{Timeout: timeout},
		parser:  gofeed.NewParser(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (f feedClient) searchURL(query string, loc feedLocale) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("hl", loc.hl)
	params.Set("gl", loc.gl)
	params.Set("ceid", loc.ceid)
	return f.baseURL + "/rss/search?" + params.Encode()
}

func (f feedClient) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create rss request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rss: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rss status %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}
	return parsed, nil
}

// GoogleNewsOptions configures the discovery feed.
type GoogleNewsOptions struct {
	BaseURL     string
	ItemLimit   int               // items taken per language feed
	SearchNames map[string]string // ticker -> local search name
	Timeout     time.Duration
}

// GoogleNews discovers future-event candidates for a ticker from the
// Korean and English Google News search feeds.
type GoogleNews struct {
	feeds  feedClient
	opts   GoogleNewsOptions
	filter *Filter
	logger *slog.Logger
}

// NewGoogleNews creates a new discovery source.
func NewGoogleNews(opts GoogleNewsOptions, filter *Filter, logger *slog.Logger) *GoogleNews {
	if opts.ItemLimit <= 0 {
		opts.ItemLimit = 10
	}
	if filter == nil {
		filter = NewFilter(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleNews{
		feeds:  newFeedClient(opts.BaseURL, opts.Timeout),
		opts:   opts,
		filter: filter,
		logger: logger,
	}
}

func (g *GoogleNews) Name() SourceType { return SourceGoogleNews }

// Discover returns candidates with future-keyword items first.
func (g *GoogleNews) Discover(ctx context.Context, ticker string) ([]Candidate, error) {
	searchName := ticker
	if name, ok := g.opts.SearchNames[ticker]; ok && name != "" {
		searchName = name
	}

	queries := []struct {
		query string
		loc   feedLocale
	}{
		{searchName + " (예정 OR 계획 OR 출시예정 OR upcoming OR scheduled OR 상반기 OR 하반기)", localeKR},
		{ticker + " (upcoming OR scheduled OR expected OR planned OR launch date)", localeEN},
	}

	var (
		candidates []Candidate
		failures   int
		lastErr    error
	)
	for _, q := range queries {
		feed, err := g.feeds.fetch(ctx, g.feeds.searchURL(q.query, q.loc))
		if err != nil {
			g.logger.Warn("discovery feed failed", "source", g.Name(), "ticker", ticker, "lang", q.loc.lang, "err", err)
			failures++
			lastErr = err
			continue
		}
		candidates = append(candidates, g.candidatesFrom(ticker, feed, q.loc.lang)...)
	}

	if failures == len(queries) {
		return nil, fmt.Errorf("google news %s: %w", ticker, lastErr)
	}

	RankCandidates(candidates)
	return candidates, nil
}

func (g *GoogleNews) candidatesFrom(ticker string, feed *gofeed.Feed, lang string) []Candidate {
	entries := feed.Items
	if len(entries) > g.opts.ItemLimit {
		entries = entries[:g.opts.ItemLimit]
	}

	var out []Candidate
	for _, entry := range entries {
		title := cleanTitle(entry.Title)
		if title == "" {
			continue
		}
		if g.filter.IsPastTense(title) {
			continue
		}

		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		}

		out = append(out, Candidate{
			Ticker:           ticker,
			Title:            title,
			Description:      truncateRunes(entry.Description, 500),
			SourceURL:        entry.Link,
			PublishedAt:      published,
			HasFutureKeyword: g.filter.HasFutureKeyword(title, entry.Description),
			Language:         lang,
		})
	}
	return out
}

// RankCandidates moves future-keyword candidates ahead of the rest,
// keeping the feed order within each group.
func RankCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].HasFutureKeyword && !c[j].HasFutureKeyword
	})
}

// NewsRecency measures how many news articles mention a keyword in the
// last week, and how many of the top three are from the last day.
type NewsRecency struct {
	feeds feedClient
	now   func() time.Time
}

// NewNewsRecency creates a new news recency meter.
func NewNewsRecency(baseURL string, timeout time.Duration) *NewsRecency {
	return &NewsRecency{feeds: newFeedClient(baseURL, timeout), now: time.Now}
}

func (n *NewsRecency) Name() SourceType { return SourceRecency }

func (n *NewsRecency) Measure(ctx context.Context, keyword string) (Measurement, error) {
	feed, err := n.feeds.fetch(ctx, n.feeds.searchURL(keyword, localeKR))
	if err != nil {
		return Measurement{}, fmt.Errorf("news recency %q: %w", keyword, err)
	}

	now := n.now()
	weekAgo := now.Add(-7 * 24 * time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	var m Measurement
	for i, entry := range feed.Items {
		// Undated entries count as recent.
		if entry.PublishedParsed == nil {
			m.Count++
			continue
		}
		published := *entry.PublishedParsed
		if !published.Before(weekAgo) {
			m.Count++
		}
		if i < 3 && !published.Before(dayAgo) {
			m.Ranking++
		}
	}
	return m, nil
}

// KoreanBuzz approximates Korean retail discussion volume from the
// Korean stock news feed for a keyword.
type KoreanBuzz struct {
	feeds feedClient
	limit int
}

// NewKoreanBuzz creates a new Korean buzz meter.
func NewKoreanBuzz(baseURL string, timeout time.Duration) *KoreanBuzz {
	return &KoreanBuzz{feeds: newFeedClient(baseURL, timeout), limit: 30}
}

func (k *KoreanBuzz) Name() SourceType { return SourceKorean }

func (k *KoreanBuzz) Measure(ctx context.Context, keyword string) (Measurement, error) {
	feed, err := k.feeds.fetch(ctx, k.feeds.searchURL(keyword+" 주식", localeKR))
	if err != nil {
		return Measurement{}, fmt.Errorf("korean buzz %q: %w", keyword, err)
	}

	count := len(feed.Items)
	if count > k.limit {
		count = k.limit
	}
	return Measurement{Count: count}, nil
}

// cleanTitle drops the trailing " - Publisher" that Google News appends.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	if i := strings.LastIndex(title, " - "); i >= 0 {
		title = title[:i]
	}
	return strings.TrimSpace(title)
}

func truncateRunes(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
