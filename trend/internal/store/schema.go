package store

import "database/sql"

// Schema is the complete trendradar schema.
const Schema = `
-- Source platforms (id -> display name)
CREATE TABLE IF NOT EXISTS sources (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Raw scrape observations, one row per (poll, source, title)
CREATE TABLE IF NOT EXISTS observations (
    id          TEXT PRIMARY KEY,
    day         TEXT NOT NULL,
    poll_id     TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    title       TEXT NOT NULL,
    rank        INTEGER NOT NULL,
    url         TEXT NOT NULL DEFAULT '',
    mobile_url  TEXT NOT NULL DEFAULT '',
    observed_at INTEGER NOT NULL,
    poll_seq    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_day ON observations(day, poll_seq);
CREATE INDEX IF NOT EXISTS idx_observations_source ON observations(day, source_id);
CREATE INDEX IF NOT EXISTS idx_observations_poll ON observations(day, poll_id);

-- Per-day baseline of already-seen title keys
CREATE TABLE IF NOT EXISTS baseline (
    day       TEXT NOT NULL,
    source_id TEXT NOT NULL,
    title     TEXT NOT NULL,
    added_at  INTEGER NOT NULL,
    PRIMARY KEY (day, source_id, title)
);

-- Presence marker: distinguishes "no baseline yet" from "baseline empty"
CREATE TABLE IF NOT EXISTS baseline_meta (
    day        TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Sources that failed to fetch upstream this day (passthrough data)
CREATE TABLE IF NOT EXISTS fetch_failures (
    day         TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    recorded_at INTEGER NOT NULL,
    PRIMARY KEY (day, source_id)
);

-- Generated report history (observability)
CREATE TABLE IF NOT EXISTS report_log (
    id           TEXT PRIMARY KEY,
    day          TEXT NOT NULL,
    mode         TEXT NOT NULL,
    total_titles INTEGER NOT NULL DEFAULT 0,
    new_count    INTEGER NOT NULL DEFAULT 0,
    generated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_report_log_day ON report_log(day, generated_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
