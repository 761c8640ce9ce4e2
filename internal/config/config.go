package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Sources    SourcesConfig    `yaml:"sources"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Hype       HypeConfig       `yaml:"hype"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig selects the event store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// ScheduleConfig configures the daily job.
type ScheduleConfig struct {
	Cron         string `yaml:"cron"`
	Timezone     string `yaml:"timezone"`
	RunOnStartup bool   `yaml:"run_on_startup"`
}

// DiscoveryConfig configures the ticker universe and discovery throttles.
type DiscoveryConfig struct {
	Tickers             []string          `yaml:"tickers"`
	TickerNames         map[string]string `yaml:"ticker_names"`
	CandidatesPerTicker int               `yaml:"candidates_per_ticker"`
	MinTitleLength      int               `yaml:"min_title_length"`
	ExtractionDelay     string            `yaml:"extraction_delay"`
	TickerDelay         string            `yaml:"ticker_delay"`
}

// ParseExtractionDelay returns the pause after each extraction call.
func (d DiscoveryConfig) ParseExtractionDelay() time.Duration {
	return parseDuration(d.ExtractionDelay, 500*time.Millisecond)
}

// ParseTickerDelay returns the pause between tickers.
func (d DiscoveryConfig) ParseTickerDelay() time.Duration {
	return parseDuration(d.TickerDelay, 300*time.Millisecond)
}

// SourcesConfig holds configuration for all signal sources.
type SourcesConfig struct {
	GoogleNews GoogleNewsConfig `yaml:"google_news"`
	Reddit     RedditConfig     `yaml:"reddit"`
	KoreanBuzz KoreanBuzzConfig `yaml:"korean_buzz"`
	Timeout    string           `yaml:"timeout"`
}

// ParseTimeout returns the per-request source timeout.
func (s SourcesConfig) ParseTimeout() time.Duration {
	return parseDuration(s.Timeout, 10*time.Second)
}

// GoogleNewsConfig for the discovery feed and the news recency meter.
type GoogleNewsConfig struct {
	BaseURL   string `yaml:"base_url"`
	ItemLimit int    `yaml:"item_limit"`
}

// RedditConfig for the reddit meter.
type RedditConfig struct {
	Enabled      bool     `yaml:"enabled"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Subreddits   []string `yaml:"subreddits"`
}

// KoreanBuzzConfig for the Korean community buzz meter.
type KoreanBuzzConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
}

// ExtractionConfig configures the LLM extraction oracle.
type ExtractionConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // custom endpoint (optional)
	Timeout  string `yaml:"timeout"`
}

// ParseTimeout returns the oracle request timeout.
func (e ExtractionConfig) ParseTimeout() time.Duration {
	return parseDuration(e.Timeout, 30*time.Second)
}

// HypeConfig configures the hype cycle.
type HypeConfig struct {
	EventDelay string `yaml:"event_delay"`
}

// ParseEventDelay returns the pause between events.
func (h HypeConfig) ParseEventDelay() time.Duration {
	return parseDuration(h.EventDelay, 300*time.Millisecond)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// NewLogger builds a slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Ticker universe: KOSPI top 20 by market cap, Dow top 10 and Nasdaq top 30.
var (
	KospiTop20 = []string{
		"삼성전자", "SK하이닉스", "LG에너지솔루션", "삼성바이오로직스", "현대차",
		"기아", "셀트리온", "KB금융", "POSCO홀딩스", "NAVER",
		"신한지주", "삼성물산", "현대모비스", "삼성SDI", "LG화학",
		"하나금융지주", "메리츠금융지주", "카카오", "삼성생명", "LG전자",
	}
	DowTop10 = []string{
		"MSFT", "AAPL", "AMZN", "V", "UNH",
		"JPM", "JNJ", "WMT", "PG", "HD",
	}
	NasdaqTop30 = []string{
		"MSFT", "AAPL", "NVDA", "AMZN", "GOOGL",
		"META", "AVGO", "TSLA", "COST", "PEP",
		"NFLX", "AMD", "ADBE", "CSCO", "TMUS",
		"INTC", "QCOM", "TXN", "AMGN", "HON",
		"AMAT", "BKNG", "SBUX", "GILD", "ISRG",
		"MDLZ", "ADP", "LRCX", "REGN", "VRTX",
	}
)

// DefaultTickers returns the combined universe without duplicates, in
// listing order.
func DefaultTickers() []string {
	return Unique(KospiTop20, DowTop10, NasdaqTop30)
}

// Unique concatenates lists, dropping repeated and blank entries.
func Unique(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./alphacal.db"},
		Schedule: ScheduleConfig{Cron: "0 0 * * *"},
		Discovery: DiscoveryConfig{
			Tickers:             DefaultTickers(),
			CandidatesPerTicker: 5,
			MinTitleLength:      10,
			ExtractionDelay:     "500ms",
			TickerDelay:         "300ms",
		},
		Sources: SourcesConfig{
			GoogleNews: GoogleNewsConfig{
				BaseURL:   "https://news.google.com",
				ItemLimit: 10,
			},
			Reddit: RedditConfig{
				Enabled:    true,
				Subreddits: []string{"stocks", "investing", "wallstreetbets"},
			},
			KoreanBuzz: KoreanBuzzConfig{
				Enabled: true,
				BaseURL: "https://news.google.com",
			},
			Timeout: "10s",
		},
		Extraction: ExtractionConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  "30s",
		},
		Hype:   HypeConfig{EventDelay: "300ms"},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads .env (if present) and a YAML file, then applies env var
// overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.Discovery.Tickers = Unique(cfg.Discovery.Tickers)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ALPHACAL_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("ALPHACAL_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Extraction.APIKey = v
		cfg.Extraction.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Extraction.APIKey == "" {
		cfg.Extraction.APIKey = v
		cfg.Extraction.Provider = "anthropic"
		if strings.HasPrefix(cfg.Extraction.Model, "gpt-") {
			cfg.Extraction.Model = ""
		}
	}
	if v := os.Getenv("REDDIT_CLIENT_ID"); v != "" {
		cfg.Sources.Reddit.ClientID = v
	}
	if v := os.Getenv("REDDIT_CLIENT_SECRET"); v != "" {
		cfg.Sources.Reddit.ClientSecret = v
	}
	if v := os.Getenv("RUN_CRAWLER_ON_STARTUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Schedule.RunOnStartup = b
		}
	}
	if v := os.Getenv("ALPHACAL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
