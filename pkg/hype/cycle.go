package hype

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/seo-oobx/invest-curation/internal/store"
	"github.com/seo-oobx/invest-curation/pkg/source"
)

// Collector gathers merged metrics for an event keyword.
type Collector interface {
	Collect(ctx context.Context, keyword, ticker string) source.Metrics
}

// FinishPolicy decides when an event should leave the pipeline. The cycle
// never finishes events on its own; with a nil policy FINISHED is only
// ever set outside this package.
type FinishPolicy interface {
	ShouldFinish(ev store.Event, today time.Time) bool
}

// Summary counts the outcome of one cycle.
type Summary struct {
	Processed int
	Promoted  int
	Finished  int
	Failed    int
}

// Cycle recomputes hype scores and lifecycle status for every open event.
type Cycle struct {
	store     store.Store
	collector Collector
	logger    *slog.Logger
	delay     time.Duration
	finish    FinishPolicy
	now       func() time.Time
}

// Option configures a Cycle.
type Option func(*Cycle)

// WithDelay sets the pause between events.
func WithDelay(d time.Duration) Option { return func(c *Cycle) { c.delay = d } }

// WithFinishPolicy installs a policy that may move events to FINISHED.
func WithFinishPolicy(p FinishPolicy) Option { return func(c *Cycle) { c.finish = p } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(c *Cycle) { c.now = now } }

// NewCycle creates a hype cycle.
func NewCycle(s store.Store, collector Collector, logger *slog.Logger, opts ...Option) *Cycle {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cycle{
		store:     s,
		collector: collector,
		logger:    logger,
		delay:     300 * time.Millisecond,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every event that is not FINISHED. Per-event failures are
// logged and counted; only failing to list events is returned.
func (c *Cycle) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	events, err := c.store.ListEvents(ctx, store.EventListOpts{ExcludeStatus: store.StatusFinished})
	if err != nil {
		return sum, fmt.Errorf("list open events: %w", err)
	}
	if len(events) == 0 {
		c.logger.Info("hype cycle: no events to process")
		return sum, nil
	}

	c.logger.Info("hype cycle started", "events", len(events))

	for i := range events {
		if i > 0 {
			if err := sleep(ctx, c.delay); err != nil {
				return sum, err
			}
		}

		status, err := c.safeProcessEvent(ctx, events[i])
		if err != nil {
			sum.Failed++
			c.logger.Error("hype cycle: event failed", "event_id", events[i].ID, "err", err)
			continue
		}

		sum.Processed++
		switch {
		case status == store.StatusFinished:
			sum.Finished++
		case events[i].Status == store.StatusPending && status == store.StatusActive:
			sum.Promoted++
		}
	}

	c.logger.Info("hype cycle completed",
		"processed", sum.Processed, "promoted", sum.Promoted,
		"finished", sum.Finished, "failed", sum.Failed)
	return sum, nil
}

// safeProcessEvent turns a panic while scoring one event into an error.
func (c *Cycle) safeProcessEvent(ctx context.Context, ev store.Event) (status store.EventStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("hype cycle: event panicked", "event_id", ev.ID, "panic", r, "stack", string(debug.Stack()))
			status, err = ev.Status, fmt.Errorf("panic: %v", r)
		}
	}()
	return c.processEvent(ctx, ev)
}

func (c *Cycle) processEvent(ctx context.Context, ev store.Event) (store.EventStatus, error) {
	today := store.Date(c.now())

	ticker := ""
	if len(ev.RelatedTickers) > 0 {
		ticker = ev.RelatedTickers[0]
	}
	metrics := c.collector.Collect(ctx, ev.Title, ticker)

	var prev *source.Metrics
	sample, err := c.store.LatestMetricSample(ctx, ev.ID, today)
	if err != nil {
		// No baseline is the same as a first observation.
		c.logger.Warn("hype cycle: baseline unavailable", "event_id", ev.ID, "err", err)
	} else if sample != nil {
		b := baseline(*sample)
		prev = &b
	}

	score := Score(metrics, prev)
	status := NextStatus(ev.Status, score, ev.GPTConfidence)
	if c.finish != nil && status != store.StatusFinished && c.finish.ShouldFinish(ev, today) {
		status = store.StatusFinished
	}

	if err := c.store.InsertMetricSample(ctx, sampleFrom(ev.ID, today, metrics)); err != nil {
		c.logger.Warn("hype cycle: save metrics failed", "event_id", ev.ID, "err", err)
	}

	if err := c.store.UpdateEventHype(ctx, ev.ID, score, status); err != nil {
		return ev.Status, err
	}

	c.logger.Info("hype cycle: event scored",
		"event_id", ev.ID, "title", ev.Title, "score", score,
		"status", status, "label", Label(score))
	return status, nil
}

// NextStatus applies the one-way PENDING -> ACTIVE promotion rule.
func NextStatus(current store.EventStatus, score int, confidence float64) store.EventStatus {
	if current == store.StatusPending && ShouldPromote(score, confidence) {
		return store.StatusActive
	}
	return current
}

// baseline rebuilds the trend baseline from the three counts a sample keeps.
func baseline(s store.MetricSample) source.Metrics {
	return source.Metrics{
		NewsCount:   s.SearchVolume,
		NaverBuzz:   s.CommunityBuzz,
		RedditPosts: s.YoutubeCount,
	}
}

func sampleFrom(eventID int64, day time.Time, m source.Metrics) *store.MetricSample {
	return &store.MetricSample{
		EventID:       eventID,
		RecordedAt:    day,
		SearchVolume:  m.NewsCount,
		CommunityBuzz: m.NaverBuzz,
		YoutubeCount:  m.RedditPosts,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
