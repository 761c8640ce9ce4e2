package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/seo-oobx/invest-curation/internal/config"
	"github.com/seo-oobx/invest-curation/internal/scheduler"
	"github.com/seo-oobx/invest-curation/internal/store"
	"github.com/seo-oobx/invest-curation/pkg/discovery"
	"github.com/seo-oobx/invest-curation/pkg/extract"
	"github.com/seo-oobx/invest-curation/pkg/hype"
	"github.com/seo-oobx/invest-curation/pkg/server"
	"github.com/seo-oobx/invest-curation/pkg/source"
)

// app holds the wiring shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *store.SQLStore
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	db, err := store.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, logger: logger, db: db.WithLogger(logger)}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) buildDiscovery() *discovery.Orchestrator {
	cfg := a.cfg
	timeout := cfg.Sources.ParseTimeout()

	news := source.NewGoogleNews(source.GoogleNewsOptions{
		BaseURL:     cfg.Sources.GoogleNews.BaseURL,
		ItemLimit:   cfg.Sources.GoogleNews.ItemLimit,
		SearchNames: cfg.Discovery.TickerNames,
		Timeout:     timeout,
	}, source.NewFilter(nil, nil), a.logger)

	if cfg.Extraction.APIKey == "" {
		a.logger.Warn("no llm api key configured; every extraction will be rejected")
	}
	oracle := extract.NewLLMOracle(
		cfg.Extraction.Provider,
		cfg.Extraction.Model,
		cfg.Extraction.APIKey,
		cfg.Extraction.BaseURL,
		cfg.Extraction.ParseTimeout(),
	)
	a.logger.Debug("extraction oracle", "provider", cfg.Extraction.Provider, "model", cfg.Extraction.Model)

	return discovery.NewOrchestrator(news, extract.NewGateway(oracle, a.logger), a.db, discovery.Options{
		Tickers:             cfg.Discovery.Tickers,
		CandidatesPerTicker: cfg.Discovery.CandidatesPerTicker,
		MinTitleLength:      cfg.Discovery.MinTitleLength,
		ExtractionDelay:     cfg.Discovery.ParseExtractionDelay(),
		TickerDelay:         cfg.Discovery.ParseTickerDelay(),
	}, a.logger)
}

func (a *app) buildCycle() *hype.Cycle {
	cfg := a.cfg
	timeout := cfg.Sources.ParseTimeout()

	var news, reddit, korean source.Meter
	news = source.NewNewsRecency(cfg.Sources.GoogleNews.BaseURL, timeout)
	if cfg.Sources.Reddit.Enabled {
		reddit = source.NewReddit(source.RedditOptions{
			ClientID:     cfg.Sources.Reddit.ClientID,
			ClientSecret: cfg.Sources.Reddit.ClientSecret,
			Subreddits:   cfg.Sources.Reddit.Subreddits,
			Timeout:      timeout,
		}, a.logger)
	}
	if cfg.Sources.KoreanBuzz.Enabled {
		korean = source.NewKoreanBuzz(cfg.Sources.KoreanBuzz.BaseURL, timeout)
	}

	agg := source.NewAggregator(news, reddit, korean, a.logger)
	return hype.NewCycle(a.db, agg, a.logger, hype.WithDelay(cfg.Hype.ParseEventDelay()))
}

func (a *app) buildScheduler() (*scheduler.Scheduler, error) {
	orch := a.buildDiscovery()
	cycle := a.buildCycle()

	phases := []scheduler.Phase{
		{Name: "discovery", Run: func(ctx context.Context) error {
			_, err := orch.Run(ctx)
			return err
		}},
		{Name: "hype", Run: func(ctx context.Context) error {
			_, err := cycle.Run(ctx)
			return err
		}},
	}

	return scheduler.New(phases, scheduler.Options{
		Cron:         a.cfg.Schedule.Cron,
		Timezone:     a.cfg.Schedule.Timezone,
		RunOnStartup: a.cfg.Schedule.RunOnStartup,
	}, a.logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runJob() error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.buildScheduler()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	sched.RunOnce(ctx)
	return ctx.Err()
}

func runDiscover(tickers []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	orch := a.buildDiscovery()
	var sum discovery.Summary
	if len(tickers) > 0 {
		sum, err = orch.RunTickers(ctx, config.Unique(tickers))
	} else {
		sum, err = orch.Run(ctx)
	}
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\ncreated %d events from %d candidates (%d tickers)\n",
		sum.Created, sum.Candidates, sum.Tickers)
	return nil
}

func runHype() error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	sum, err := a.buildCycle().Run(ctx)
	if err != nil {
		return fmt.Errorf("hype cycle: %w", err)
	}

	fmt.Fprintf(os.Stderr, "\nscored %d events, promoted %d, failed %d\n",
		sum.Processed, sum.Promoted, sum.Failed)
	return nil
}

func runEvents(jsonOutput bool, status string, limit int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.db.ListEvents(context.Background(), store.EventListOpts{
		Status: store.EventStatus(strings.ToUpper(status)),
		Limit:  limit,
	})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	if len(events) == 0 {
		fmt.Println("no events found (try discovering first: alphacal discover)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tHYPE\tBUZZ\tDATE\tTICKERS\tTITLE")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.Status, e.HypeScore, hype.Label(e.HypeScore),
			e.TargetDate.Format(time.DateOnly),
			strings.Join(e.RelatedTickers, ","), e.Title)
	}
	return w.Flush()
}

func runDaemon(port int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	sched, err := a.buildScheduler()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	srv := server.New(sched, a.db, port, a.logger)
	err = srv.ListenAndServe(ctx)

	a.logger.Info("shutting down")
	cancel()
	sched.Stop()
	return err
}
