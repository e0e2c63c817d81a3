// Package store is the data access layer for the tracker.
//
// The store receives an already-opened *sql.DB (see dbopen) and keeps the
// document-oriented shape of the data: per-site state and custom site lists
// live as JSON columns on the book row, timestamps are RFC 3339 text in
// *_at columns and parsed back on read. All writes go through dbopen's
// busy-retry wrapper so an API write racing a check cycle survives
// SQLITE_BUSY.
package store

import (
	"database/sql"
	"time"
)

// Store wraps the tracker database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
