package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/seo-oobx/invest-curation/internal/store"
	"github.com/seo-oobx/invest-curation/pkg/extract"
	"github.com/seo-oobx/invest-curation/pkg/source"
)

// Field limits for newly created events.
const (
	maxTitleLen       = 200
	maxDescriptionLen = 500
)

// Extractor turns a news item into a dated event, or rejects it.
type Extractor interface {
	Extract(ctx context.Context, ticker, title, summary string) (extract.Result, bool)
}

// EventWriter persists newly discovered events.
type EventWriter interface {
	TitleFinder
	InsertEvent(ctx context.Context, e *store.Event) (int64, error)
}

// Options tunes a discovery run.
type Options struct {
	Tickers             []string
	CandidatesPerTicker int
	MinTitleLength      int
	ExtractionDelay     time.Duration
	TickerDelay         time.Duration
}

// DefaultOptions returns the production limits and throttles.
func DefaultOptions(tickers []string) Options {
	return Options{
		Tickers:             tickers,
		CandidatesPerTicker: 5,
		MinTitleLength:      10,
		ExtractionDelay:     500 * time.Millisecond,
		TickerDelay:         300 * time.Millisecond,
	}
}

// Summary counts the outcome of a discovery run.
type Summary struct {
	Tickers       int
	Candidates    int
	Created       int
	SkippedNoDate int
	SkippedExists int
	SkippedShort  int
	Failed        int
}

// Orchestrator walks the ticker universe and creates events from news.
type Orchestrator struct {
	discoverer source.Discoverer
	extractor  Extractor
	store      EventWriter
	dedup      *DedupGuard
	opts       Options
	logger     *slog.Logger
}

// NewOrchestrator creates a discovery orchestrator.
func NewOrchestrator(d source.Discoverer, x Extractor, s EventWriter, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions(opts.Tickers)
	if opts.CandidatesPerTicker <= 0 {
		opts.CandidatesPerTicker = def.CandidatesPerTicker
	}
	if opts.MinTitleLength <= 0 {
		opts.MinTitleLength = def.MinTitleLength
	}
	return &Orchestrator{
		discoverer: d,
		extractor:  x,
		store:      s,
		dedup:      NewDedupGuard(s, logger),
		opts:       opts,
		logger:     logger,
	}
}

// Run discovers events for every configured ticker.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	return o.RunTickers(ctx, o.opts.Tickers)
}

// RunTickers discovers events for the given tickers only. A failing ticker
// is logged and skipped; only cancellation stops the run early.
func (o *Orchestrator) RunTickers(ctx context.Context, tickers []string) (Summary, error) {
	var sum Summary
	o.logger.Info("discovery started", "tickers", len(tickers))

	for i, ticker := range tickers {
		if i > 0 {
			if err := sleep(ctx, o.opts.TickerDelay); err != nil {
				return sum, err
			}
		}
		sum.Tickers++

		if err := o.safeProcessTicker(ctx, ticker, &sum); err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			o.logger.Error("discovery: ticker failed", "ticker", ticker, "err", err)
		}
	}

	o.logger.Info("discovery completed",
		"tickers", sum.Tickers, "candidates", sum.Candidates, "created", sum.Created,
		"skipped_no_date", sum.SkippedNoDate, "skipped_exists", sum.SkippedExists,
		"skipped_short", sum.SkippedShort, "failed", sum.Failed)
	return sum, nil
}

// safeProcessTicker turns a panic in one ticker's pipeline into an error
// so the remaining tickers still run.
func (o *Orchestrator) safeProcessTicker(ctx context.Context, ticker string, sum *Summary) (err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("discovery: ticker panicked", "ticker", ticker, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.processTicker(ctx, ticker, sum)
}

func (o *Orchestrator) processTicker(ctx context.Context, ticker string, sum *Summary) error {
	candidates, err := o.discoverer.Discover(ctx, ticker)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if len(candidates) == 0 {
		o.logger.Debug("discovery: no candidates", "ticker", ticker)
		return nil
	}

	source.RankCandidates(candidates)
	if len(candidates) > o.opts.CandidatesPerTicker {
		candidates = candidates[:o.opts.CandidatesPerTicker]
	}

	for _, c := range candidates {
		sum.Candidates++

		if utf8.RuneCountInString(c.Title) < o.opts.MinTitleLength {
			sum.SkippedShort++
			continue
		}
		if o.dedup.Exists(ctx, c.Title) {
			sum.SkippedExists++
			o.logger.Debug("discovery: duplicate", "ticker", ticker, "title", c.Title)
			continue
		}

		res, ok := o.extractor.Extract(ctx, ticker, c.Title, c.Description)
		if err := sleep(ctx, o.opts.ExtractionDelay); err != nil {
			return err
		}
		if !ok {
			sum.SkippedNoDate++
			continue
		}

		ev := NewEvent(ticker, c, res)
		if _, err := o.store.InsertEvent(ctx, ev); err != nil {
			sum.Failed++
			o.logger.Error("discovery: save event failed", "ticker", ticker, "title", ev.Title, "err", err)
			continue
		}

		sum.Created++
		o.logger.Info("discovery: event created",
			"id", ev.ID, "ticker", ticker, "title", ev.Title,
			"date", ev.TargetDate.Format(time.DateOnly), "status", ev.Status,
			"hype_score", ev.HypeScore)
	}
	return nil
}

// NewEvent derives a new event from an accepted extraction.
func NewEvent(ticker string, c source.Candidate, res extract.Result) *store.Event {
	status := store.StatusPending
	if res.Confidence >= 0.7 {
		status = store.StatusActive
	}
	return &store.Event{
		Title:           truncate(res.Title, maxTitleLen),
		Description:     truncate(c.Description, maxDescriptionLen),
		EventType:       res.Type,
		Status:          status,
		TargetDate:      store.Date(res.Date),
		IsDateConfirmed: res.Confidence >= 0.8,
		RelatedTickers:  []string{ticker},
		HypeScore:       InitialScore(res.Confidence),
		GPTConfidence:   res.Confidence,
		SourceURL:       c.SourceURL,
		DateSource:      res.DateSource,
	}
}

// InitialScore is the hype score a new event starts with.
func InitialScore(confidence float64) int {
	switch {
	case confidence >= 0.8:
		return 40
	case confidence >= 0.7:
		return 30
	}
	return 20
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
