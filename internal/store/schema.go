// CLAUDE:SUMMARY Applies the complete mirador SQL schema: cursors, mentions with upsert key, run log.
package store

import "database/sql"

// Schema is the complete mirador schema.
const Schema = `
-- Per-source incremental cursors
CREATE TABLE IF NOT EXISTS cursors (
    source          TEXT PRIMARY KEY,
    last_scraped_at INTEGER NOT NULL DEFAULT 0,
    last_item_date  INTEGER,
    recent_ids      TEXT NOT NULL DEFAULT '[]'
);

-- Accepted mentions, upsert-keyed by (source, external_id)
CREATE TABLE IF NOT EXISTS mentions (
    id            TEXT PRIMARY KEY,
    source        TEXT NOT NULL,
    external_id   TEXT NOT NULL,
    kind          TEXT NOT NULL DEFAULT 'post',
    title         TEXT NOT NULL DEFAULT '',
    author        TEXT NOT NULL DEFAULT '',
    content       TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    community     TEXT NOT NULL DEFAULT '',
    rating        INTEGER NOT NULL DEFAULT 0,
    region        TEXT NOT NULL DEFAULT '',
    item_date     INTEGER NOT NULL DEFAULT 0,
    fingerprint   TEXT NOT NULL DEFAULT '',
    sentiment     REAL NOT NULL DEFAULT 0,
    sent_label    TEXT NOT NULL DEFAULT 'neutral',
    sent_conf     REAL NOT NULL DEFAULT 0,
    payload_json  TEXT NOT NULL DEFAULT '{}',
    inserted_at   INTEGER NOT NULL,
    UNIQUE(source, external_id)
);
CREATE INDEX IF NOT EXISTS idx_mentions_source_date ON mentions(source, item_date DESC);
CREATE INDEX IF NOT EXISTS idx_mentions_date ON mentions(item_date DESC);

-- Run log (observability)
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    source      TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'running',
    items_found INTEGER NOT NULL DEFAULT 0,
    items_new   INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source, started_at DESC);
`

// ApplySchema creates all tables and indexes on the given database. Idempotent.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
