package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "ALPHACAL_DB_DRIVER", "ALPHACAL_DB_DSN",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET",
		"RUN_CRAWLER_ON_STARTUP", "ALPHACAL_LOG_LEVEL", "PORT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if got := len(cfg.Discovery.Tickers); got != 57 {
		t.Errorf("default tickers = %d, want 57 after dropping MSFT, AAPL and AMZN repeats", got)
	}
	if cfg.Discovery.Tickers[0] != "삼성전자" {
		t.Errorf("first ticker = %q", cfg.Discovery.Tickers[0])
	}
	if d := cfg.Discovery.ParseExtractionDelay(); d != 500*time.Millisecond {
		t.Errorf("extraction delay = %v", d)
	}
	if d := cfg.Discovery.ParseTickerDelay(); d != 300*time.Millisecond {
		t.Errorf("ticker delay = %v", d)
	}
	if d := cfg.Hype.ParseEventDelay(); d != 300*time.Millisecond {
		t.Errorf("event delay = %v", d)
	}
	if cfg.Schedule.Cron != "0 0 * * *" || cfg.Database.Driver != "sqlite" {
		t.Errorf("schedule/database = %+v %+v", cfg.Schedule, cfg.Database)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]string{"AAPL", " MSFT ", ""}, []string{"MSFT", "NVDA", "AAPL"})
	want := []string{"AAPL", "MSFT", "NVDA"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Unique = %v, want %v", got, want)
	}
}

func TestParseDurationFallback(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"soon", time.Second},
		{"-1s", time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.in, time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "alphacal.yaml")
	yml := `
database:
  driver: postgres
  dsn: postgres://localhost/alphacal
schedule:
  cron: "30 6 * * *"
  timezone: Asia/Seoul
discovery:
  tickers: [NVDA, TSLA, NVDA]
  ticker_names:
    NVDA: NVIDIA
  extraction_delay: 1s
sources:
  reddit:
    enabled: false
extraction:
  provider: anthropic
  model: claude-sonnet-4-20250514
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://localhost/alphacal" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Schedule.Cron != "30 6 * * *" || cfg.Schedule.Timezone != "Asia/Seoul" {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if strings.Join(cfg.Discovery.Tickers, ",") != "NVDA,TSLA" {
		t.Errorf("tickers = %v", cfg.Discovery.Tickers)
	}
	if cfg.Discovery.TickerNames["NVDA"] != "NVIDIA" {
		t.Errorf("ticker names = %v", cfg.Discovery.TickerNames)
	}
	if cfg.Discovery.ParseExtractionDelay() != time.Second {
		t.Errorf("extraction delay = %v", cfg.Discovery.ParseExtractionDelay())
	}
	if cfg.Discovery.CandidatesPerTicker != 5 {
		t.Errorf("unset fields should keep defaults, candidates = %d", cfg.Discovery.CandidatesPerTicker)
	}
	if cfg.Sources.Reddit.Enabled {
		t.Error("reddit should be disabled")
	}
	if !cfg.Sources.KoreanBuzz.Enabled {
		t.Error("korean buzz should keep its default")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("discovery: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://db.internal/alphacal")
	t.Setenv("PORT", "3000")
	t.Setenv("RUN_CRAWLER_ON_STARTUP", "true")
	t.Setenv("ALPHACAL_LOG_LEVEL", "debug")
	t.Setenv("REDDIT_CLIENT_ID", "rid")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://db.internal/alphacal" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Server.Port != 3000 || !cfg.Schedule.RunOnStartup || cfg.Log.Level != "debug" {
		t.Errorf("port/startup/level = %d %v %q", cfg.Server.Port, cfg.Schedule.RunOnStartup, cfg.Log.Level)
	}
	if cfg.Sources.Reddit.ClientID != "rid" {
		t.Errorf("reddit client id = %q", cfg.Sources.Reddit.ClientID)
	}
	if cfg.Extraction.Provider != "anthropic" || cfg.Extraction.APIKey != "sk-ant" || cfg.Extraction.Model != "" {
		t.Errorf("extraction = %+v", cfg.Extraction)
	}
}

func TestEnvOverridesPreferOpenAI(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-oai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("ALPHACAL_DB_DRIVER", "sqlite")
	t.Setenv("ALPHACAL_DB_DSN", "/tmp/x.db")
	t.Setenv("PORT", "not-a-port")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Extraction.Provider != "openai" || cfg.Extraction.APIKey != "sk-oai" || cfg.Extraction.Model != "gpt-4o-mini" {
		t.Errorf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Database.DSN != "/tmp/x.db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("invalid PORT should keep default, got %d", cfg.Server.Port)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Info("hidden")
	LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Warn("shown", "ticker", "NVDA")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.HasPrefix(out, "{") || !strings.Contains(out, `"ticker":"NVDA"`) {
		t.Errorf("json output = %s", out)
	}

	buf.Reset()
	LogConfig{Level: "bogus"}.NewLogger(&buf).Info("hello", "n", 1)
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "n=1") {
		t.Errorf("text output = %s", buf.String())
	}
}
