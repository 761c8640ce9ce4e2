package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seo-oobx/invest-curation/internal/store"
)

// Acceptance window and confidence floor for extracted events.
const (
	MinDaysAhead  = 60
	MaxDaysAhead  = 180
	MinConfidence = 0.5
)

// Reject reasons.
var (
	ErrOracle        = errors.New("oracle failed")
	ErrNoEvent       = errors.New("no future event")
	ErrNoDate        = errors.New("no event date")
	ErrBadDate       = errors.New("unparseable event date")
	ErrOutOfWindow   = errors.New("event date outside acceptance window")
	ErrLowConfidence = errors.New("confidence below threshold")
)

// Judgment is the raw structured answer of an oracle. Pointer fields
// distinguish "absent" from zero values.
type Judgment struct {
	EventTitle *string  `json:"event_title"`
	EventDate  string   `json:"event_date"`
	Confidence *float64 `json:"confidence"`
	EventType  string   `json:"event_type"`
	DateSource string   `json:"date_source"`
}

// Oracle reads a news item and judges whether it announces a future event.
// A nil Judgment with nil error means the oracle found nothing.
type Oracle interface {
	Judge(ctx context.Context, ticker, title, summary string, today time.Time) (*Judgment, error)
}

// Result is an accepted extraction.
type Result struct {
	Title      string
	Date       time.Time
	Confidence float64
	Type       store.EventType
	DateSource string
}

// Gateway wraps an oracle and enforces the acceptance rules. It is the only
// path from a news item to a new event.
type Gateway struct {
	oracle Oracle
	logger *slog.Logger
	now    func() time.Time
}

// NewGateway creates an extraction gateway.
func NewGateway(oracle Oracle, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{oracle: oracle, logger: logger, now: time.Now}
}

// WithClock overrides the gateway's notion of today.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// Extract asks the oracle about one news item. ok is false for every kind
// of reject, including oracle failures.
func (g *Gateway) Extract(ctx context.Context, ticker, title, summary string) (Result, bool) {
	today := store.Date(g.now())

	j, err := g.oracle.Judge(ctx, ticker, title, summary, today)
	if err != nil {
		g.logger.Warn("extraction rejected", "ticker", ticker, "title", title,
			"reason", ErrOracle, "err", err)
		return Result{}, false
	}

	res, err := Validate(j, today)
	if err != nil {
		g.logger.Info("extraction rejected", "ticker", ticker, "title", title, "reason", err)
		return Result{}, false
	}

	g.logger.Info("extraction accepted", "ticker", ticker, "event", res.Title,
		"date", res.Date.Format(time.DateOnly), "confidence", res.Confidence)
	return res, true
}

// Validate applies the acceptance rules to a judgment relative to today.
func Validate(j *Judgment, today time.Time) (Result, error) {
	if j == nil || j.EventTitle == nil || strings.TrimSpace(*j.EventTitle) == "" {
		return Result{}, ErrNoEvent
	}

	dateStr := strings.TrimSpace(j.EventDate)
	if dateStr == "" {
		return Result{}, ErrNoDate
	}
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrBadDate, dateStr)
	}

	days := DaysUntil(today, date)
	if days < MinDaysAhead || days > MaxDaysAhead {
		return Result{}, fmt.Errorf("%w: %s is %d days away", ErrOutOfWindow, dateStr, days)
	}

	if j.Confidence == nil {
		return Result{}, fmt.Errorf("%w: missing", ErrLowConfidence)
	}
	confidence := *j.Confidence
	if !(confidence >= MinConfidence) {
		return Result{}, fmt.Errorf("%w: %.2f", ErrLowConfidence, confidence)
	}
	if confidence > 1 {
		confidence = 1
	}

	return Result{
		Title:      strings.TrimSpace(*j.EventTitle),
		Date:       date,
		Confidence: confidence,
		Type:       store.ParseEventType(j.EventType),
		DateSource: j.DateSource,
	}, nil
}

// DaysUntil counts calendar days from today to date.
func DaysUntil(today, date time.Time) int {
	return int(store.Date(date).Sub(store.Date(today)).Hours() / 24)
}
