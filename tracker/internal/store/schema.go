package store

import (
	"context"
	"database/sql"

	"github.com/hazyhaar/sahaf/dbopen"
)

// Schema is the complete tracker schema.
const Schema = `
-- Tracked books. Per-site state and custom sites are JSON documents.
CREATE TABLE IF NOT EXISTS books (
    id                TEXT PRIMARY KEY,
    title             TEXT NOT NULL,
    author            TEXT NOT NULL,
    sites_json        TEXT NOT NULL DEFAULT '[]',
    custom_sites_json TEXT NOT NULL DEFAULT '[]',
    enable_discovery  INTEGER NOT NULL DEFAULT 1,
    is_active         INTEGER NOT NULL DEFAULT 1,
    created_at        TEXT NOT NULL,
    last_checked_at   TEXT,
    total_listings    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_books_active ON books(is_active);

-- Listings found for a book. Insert-only.
CREATE TABLE IF NOT EXISTS listings (
    id          TEXT PRIMARY KEY,
    book_id     TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    site_name   TEXT NOT NULL,
    title       TEXT NOT NULL,
    price       TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL,
    seller      TEXT NOT NULL DEFAULT '',
    condition   TEXT NOT NULL DEFAULT '',
    match_score REAL NOT NULL DEFAULT 0,
    found_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_book ON listings(book_id, found_at DESC);

-- Notifications about high-confidence new listings.
CREATE TABLE IF NOT EXISTS notifications (
    id          TEXT PRIMARY KEY,
    book_id     TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
    book_title  TEXT NOT NULL,
    message     TEXT NOT NULL,
    listing_url TEXT NOT NULL,
    read        INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_time ON notifications(created_at DESC);

-- Singleton monitoring settings (id is fixed).
CREATE TABLE IF NOT EXISTS settings (
    id                   TEXT PRIMARY KEY CHECK (id = 'monitoring'),
    check_interval_hours INTEGER NOT NULL DEFAULT 6,
    email_notifications  INTEGER NOT NULL DEFAULT 0,
    in_app_notifications INTEGER NOT NULL DEFAULT 1,
    fuzzy_matching       INTEGER NOT NULL DEFAULT 1,
    discovery_enabled    INTEGER NOT NULL DEFAULT 1
);
`

// ApplySchema creates all tables and indexes in one transaction, retried
// on SQLITE_BUSY so startup survives a concurrent opener.
func ApplySchema(db *sql.DB) error {
	return dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(Schema)
		return err
	})
}
