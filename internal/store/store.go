package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusPending  EventStatus = "PENDING"
	StatusActive   EventStatus = "ACTIVE"
	StatusFinished EventStatus = "FINISHED"
)

// EventType classifies an event.
type EventType string

const (
	TypeA EventType = "TYPE_A"
	TypeB EventType = "TYPE_B"
)

// ParseEventType maps an oracle-provided type onto a known EventType.
// Anything unrecognised is TYPE_A.
func ParseEventType(s string) EventType {
	if EventType(strings.ToUpper(strings.TrimSpace(s))) == TypeB {
		return TypeB
	}
	return TypeA
}

// Event is a provisional or published future occurrence tied to tickers.
type Event struct {
	ID              int64       `db:"id" json:"id"`
	Title           string      `db:"title" json:"title"`
	Description     string      `db:"description" json:"description"`
	EventType       EventType   `db:"event_type" json:"event_type"`
	Status          EventStatus `db:"status" json:"status"`
	TargetDate      time.Time   `db:"target_date" json:"target_date"`
	IsDateConfirmed bool        `db:"is_date_confirmed" json:"is_date_confirmed"`
	RelatedTickers  []string    `db:"-" json:"related_tickers"`
	TickersJSON     string      `db:"related_tickers" json:"-"`
	HypeScore       int         `db:"hype_score" json:"hype_score"`
	GPTConfidence   float64     `db:"gpt_confidence" json:"gpt_confidence"`
	SourceURL       string      `db:"source_url" json:"source_url"`
	DateSource      string      `db:"date_source" json:"date_source"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// MetricSample is one append-only hype observation for an event.
// YoutubeCount is a legacy column name; it holds the reddit post count.
type MetricSample struct {
	ID            int64     `db:"id" json:"id"`
	EventID       int64     `db:"event_id" json:"event_id"`
	RecordedAt    time.Time `db:"recorded_at" json:"recorded_at"`
	SearchVolume  int       `db:"search_volume" json:"search_volume"`
	CommunityBuzz int       `db:"community_buzz" json:"community_buzz"`
	YoutubeCount  int       `db:"youtube_count" json:"youtube_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// EventListOpts controls event listing.
type EventListOpts struct {
	Status        EventStatus
	ExcludeStatus EventStatus
	Limit         int // <= 0 means no limit
}

// Store is the persistence interface.
type Store interface {
	InsertEvent(ctx context.Context, e *Event) (int64, error)
	ListEvents(ctx context.Context, opts EventListOpts) ([]Event, error)
	UpdateEventHype(ctx context.Context, id int64, score int, status EventStatus) error
	FindByTitlePrefix(ctx context.Context, prefix string) ([]Event, error)

	InsertMetricSample(ctx context.Context, m *MetricSample) error
	LatestMetricSample(ctx context.Context, eventID int64, before time.Time) (*MetricSample, error)

	Ping(ctx context.Context) error
	Close() error
}

// Date truncates t to its calendar date, expressed at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

const eventColumns = `id, title, description, event_type, status, target_date, is_date_confirmed,
	related_tickers, hype_score, gpt_confidence, source_url, date_source, created_at, updated_at`

// SQLStore implements Store on SQLite or PostgreSQL through sqlx.
// Queries are written with '?' and rebound for the driver.
type SQLStore struct {
	db     *sqlx.DB
	now    func() time.Time
	logger *slog.Logger
}

// New opens the database for driver and applies the schema.
func New(driver, dsn string) (*SQLStore, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer; keeps WAL busy errors out of the sequential pipeline.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schemaFor(driver)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle. The schema is not applied.
func NewWithDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now, logger: slog.Default()}
}

// WithLogger sets the logger used for row-level warnings.
func (s *SQLStore) WithLogger(logger *slog.Logger) *SQLStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) InsertEvent(ctx context.Context, e *Event) (int64, error) {
	if strings.TrimSpace(e.Title) == "" || e.TargetDate.IsZero() {
		return 0, errors.New("insert event: title and target date required")
	}
	if len(e.RelatedTickers) == 0 {
		return 0, errors.New("insert event: at least one related ticker required")
	}

	tickersJSON, err := json.Marshal(e.RelatedTickers)
	if err != nil {
		return 0, fmt.Errorf("marshal tickers: %w", err)
	}

	now := s.now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = e.CreatedAt
	e.TargetDate = Date(e.TargetDate)
	e.TickersJSON = string(tickersJSON)

	var id int64
	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO events (title, description, event_type, status, target_date, is_date_confirmed,
			related_tickers, hype_score, gpt_confidence, source_url, date_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), e.Title, e.Description, e.EventType, e.Status, e.TargetDate, e.IsDateConfirmed,
		e.TickersJSON, e.HypeScore, e.GPTConfidence, e.SourceURL, e.DateSource,
		e.CreatedAt, e.UpdatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event %q: %w", e.Title, err)
	}
	e.ID = id
	return id, nil
}

func (s *SQLStore) ListEvents(ctx context.Context, opts EventListOpts) ([]Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE 1=1"
	var args []any

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, opts.Status)
	}
	if opts.ExcludeStatus != "" {
		query += " AND status <> ?"
		args = append(args, opts.ExcludeStatus)
	}

	query += " ORDER BY id"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var events []Event
	if err := s.db.SelectContext(ctx, &events, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	s.decodeTickers(events)
	return events, nil
}

func (s *SQLStore) UpdateEventHype(ctx context.Context, id int64, score int, status EventStatus) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE events SET hype_score = ?, status = ?, updated_at = ? WHERE id = ?
	`), score, status, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update event %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update event %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// FindByTitlePrefix returns events whose title contains prefix, or whose
// title (10+ characters) is itself contained in prefix. Case-insensitive.
func (s *SQLStore) FindByTitlePrefix(ctx context.Context, prefix string) ([]Event, error) {
	lower := strings.ToLower(prefix)
	pattern := "%" + escapeLike(lower) + "%"

	var events []Event
	err := s.db.SelectContext(ctx, &events, s.db.Rebind(`
		SELECT `+eventColumns+` FROM events
		WHERE LOWER(title) LIKE ? ESCAPE '\'
		   OR (LENGTH(title) >= 10 AND ? LIKE '%' || REPLACE(REPLACE(REPLACE(LOWER(title),
				'\', '\\'), '%', '\%'), '_', '\_') || '%' ESCAPE '\')
		ORDER BY id
	`), pattern, lower)
	if err != nil {
		return nil, fmt.Errorf("find by title prefix: %w", err)
	}
	s.decodeTickers(events)
	return events, nil
}

func (s *SQLStore) InsertMetricSample(ctx context.Context, m *MetricSample) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	m.RecordedAt = Date(m.RecordedAt)

	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO hype_metrics (event_id, recorded_at, search_volume, community_buzz, youtube_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), m.EventID, m.RecordedAt, m.SearchVolume, m.CommunityBuzz, m.YoutubeCount, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert metric sample for event %d: %w", m.EventID, err)
	}
	return nil
}

// LatestMetricSample returns the newest sample recorded strictly before
// the given date, or nil when there is none.
func (s *SQLStore) LatestMetricSample(ctx context.Context, eventID int64, before time.Time) (*MetricSample, error) {
	var m MetricSample
	err := s.db.GetContext(ctx, &m, s.db.Rebind(`
		SELECT id, event_id, recorded_at, search_volume, community_buzz, youtube_count, created_at
		FROM hype_metrics
		WHERE event_id = ? AND recorded_at < ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`), eventID, Date(before))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest metric sample for event %d: %w", eventID, err)
	}
	return &m, nil
}

// decodeTickers fills RelatedTickers. A corrupt row keeps no tickers and
// is logged rather than failing the whole listing.
func (s *SQLStore) decodeTickers(events []Event) {
	for i := range events {
		if err := json.Unmarshal([]byte(events[i].TickersJSON), &events[i].RelatedTickers); err != nil {
			events[i].RelatedTickers = nil
			s.logger.Warn("store: bad related_tickers", "event_id", events[i].ID, "value", events[i].TickersJSON, "err", err)
		}
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
