package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	redditPublicURL = "https://www.reddit.com"
	redditOAuthURL  = "https://oauth.reddit.com"
	redditTokenURL  = "https://www.reddit.com/api/v1/access_token"
)

// DefaultSubreddits are the stock communities searched for buzz.
var DefaultSubreddits = []string{"stocks", "investing", "wallstreetbets"}

// RedditOptions configures the reddit meter.
type RedditOptions struct {
	ClientID     string
	ClientSecret string
	Subreddits   []string
	// BaseURL overrides both the public and OAuth API hosts.
	BaseURL  string
	TokenURL string
	Timeout  time.Duration
}

// Reddit measures posts and engagement mentioning a keyword over the past
// week. It uses OAuth when credentials are configured and the public JSON
// search otherwise.
type Reddit struct {
	client      *http.Client
	opts        RedditOptions
	logger      *slog.Logger
	now         func() time.Time
	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewReddit creates a new reddit meter.
func NewReddit(opts RedditOptions, logger *slog.Logger) *Reddit {
	if len(opts.Subreddits) == 0 {
		opts.Subreddits = DefaultSubreddits
	}
	if opts.TokenURL == "" {
		opts.TokenURL = redditTokenURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reddit{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Reddit) Name() SourceType { return SourceReddit }

func (r *Reddit) authenticated() bool {
	return r.opts.ClientID != "" && r.opts.ClientSecret != ""
}

func (r *Reddit) Measure(ctx context.Context, keyword string) (Measurement, error) {
	if r.authenticated() {
		if err := r.authenticate(ctx); err != nil {
			return Measurement{}, fmt.Errorf("reddit auth: %w", err)
		}
	}

	var (
		m        Measurement
		failures int
		errs     []error
	)
	for _, sub := range r.opts.Subreddits {
		posts, err := r.searchSubreddit(ctx, sub, keyword)
		if err != nil {
			r.logger.Warn("reddit search failed", "subreddit", sub, "keyword", keyword, "err", err)
			failures++
			errs = append(errs, err)
			continue
		}
		for _, p := range posts {
			m.Count++
			m.Engagement += p.Score + p.NumComments
		}
	}

	if failures == len(r.opts.Subreddits) {
		return Measurement{}, errors.Join(errs...)
	}
	return m, nil
}

func (r *Reddit) authenticate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.TokenURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}

	req.SetBasicAuth(r.opts.ClientID, r.opts.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("reddit token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit auth status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode reddit token: %w", err)
	}

	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return nil
}

func (r *Reddit) apiBase() string {
	if r.opts.BaseURL != "" {
		return strings.TrimRight(r.opts.BaseURL, "/")
	}
	if r.authenticated() {
		return redditOAuthURL
	}
	return redditPublicURL
}

func (r *Reddit) searchSubreddit(ctx context.Context, subreddit, keyword string) ([]redditPost, error) {
	params := url.Values{}
	params.Set("q", keyword)
	params.Set("restrict_sr", "on")
	params.Set("sort", "relevance")
	params.Set("t", "week")
	params.Set("limit", "25")

	reqURL := fmt.Sprintf("%s/r/%s/search.json?%s", r.apiBase(), subreddit, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	if r.authenticated() {
		r.mu.Lock()
		req.Header.Set("Authorization", "Bearer "+r.token)
		r.mu.Unlock()
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search r/%s: %w", subreddit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s status %d", subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", subreddit, err)
	}

	weekAgo := r.now().Add(-7 * 24 * time.Hour)

	var posts []redditPost
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Stickied {
			continue
		}
		if time.Unix(int64(post.CreatedUTC), 0).Before(weekAgo) {
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Stickied    bool    `json:"stickied"`
	UpvoteRatio float64 `json:"upvote_ratio"`
}
