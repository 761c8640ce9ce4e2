package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    title             TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    event_type        TEXT NOT NULL,
    status            TEXT NOT NULL,
    target_date       DATE NOT NULL,
    is_date_confirmed BOOLEAN NOT NULL DEFAULT 0,
    related_tickers   TEXT NOT NULL DEFAULT '[]',
    hype_score        INTEGER NOT NULL DEFAULT 0,
    gpt_confidence    REAL NOT NULL DEFAULT 0,
    source_url        TEXT NOT NULL DEFAULT '',
    date_source       TEXT NOT NULL DEFAULT '',
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
CREATE INDEX IF NOT EXISTS idx_events_target_date ON events(target_date);

CREATE TABLE IF NOT EXISTS hype_metrics (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id       INTEGER NOT NULL REFERENCES events(id),
    recorded_at    DATE NOT NULL,
    search_volume  INTEGER NOT NULL DEFAULT 0,
    community_buzz INTEGER NOT NULL DEFAULT 0,
    youtube_count  INTEGER NOT NULL DEFAULT 0,
    created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hype_metrics_event ON hype_metrics(event_id, recorded_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS events (
    id                BIGSERIAL PRIMARY KEY,
    title             TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    event_type        TEXT NOT NULL,
    status            TEXT NOT NULL,
    target_date       DATE NOT NULL,
    is_date_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
    related_tickers   TEXT NOT NULL DEFAULT '[]',
    hype_score        INTEGER NOT NULL DEFAULT 0,
    gpt_confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
    source_url        TEXT NOT NULL DEFAULT '',
    date_source       TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
CREATE INDEX IF NOT EXISTS idx_events_target_date ON events(target_date);

CREATE TABLE IF NOT EXISTS hype_metrics (
    id             BIGSERIAL PRIMARY KEY,
    event_id       BIGINT NOT NULL REFERENCES events(id),
    recorded_at    DATE NOT NULL,
    search_volume  INTEGER NOT NULL DEFAULT 0,
    community_buzz INTEGER NOT NULL DEFAULT 0,
    youtube_count  INTEGER NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hype_metrics_event ON hype_metrics(event_id, recorded_at);
`

func schemaFor(driver string) string {
	if driver == DriverPostgres {
		return postgresSchema
	}
	return sqliteSchema
}
