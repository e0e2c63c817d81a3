package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/sahaf/dbopen"
)

const bookColumns = `id, title, author, sites_json, custom_sites_json,
	enable_discovery, is_active, created_at, last_checked_at, total_listings`

// InsertBook adds a new tracked book.
func (s *Store) InsertBook(ctx context.Context, b *Book) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	sitesJSON, customJSON, err := encodeBookDocs(b)
	if err != nil {
		return err
	}
	_, err = dbopen.Exec(ctx, s.DB,
		`INSERT INTO books (`+bookColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.Title, b.Author, sitesJSON, customJSON,
		b.EnableDiscovery, b.IsActive, formatTime(b.CreatedAt),
		formatTimePtr(b.LastCheckedAt), b.TotalListings,
	)
	return err
}

// GetBook retrieves a book by ID. Returns (nil, nil) when absent.
func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	b, err := scanBook(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// ListBooks returns all books, newest first.
func (s *Store) ListBooks(ctx context.Context) ([]*Book, error) {
	return s.queryBooks(ctx, `SELECT `+bookColumns+` FROM books ORDER BY created_at DESC`)
}

// ListActiveBooks returns the books the scheduled check cycle should visit.
func (s *Store) ListActiveBooks(ctx context.Context) ([]*Book, error) {
	return s.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books WHERE is_active = 1 ORDER BY created_at ASC`)
}

func (s *Store) queryBooks(ctx context.Context, q string, args ...any) ([]*Book, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows.Scan)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// ReplaceBook overwrites every mutable field of a book (full replace).
// Returns false when no book with that ID exists.
func (s *Store) ReplaceBook(ctx context.Context, b *Book) (bool, error) {
	sitesJSON, customJSON, err := encodeBookDocs(b)
	if err != nil {
		return false, err
	}
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE books SET title=?, author=?, sites_json=?, custom_sites_json=?,
		enable_discovery=?, is_active=?, last_checked_at=?, total_listings=?
		WHERE id=?`,
		b.Title, b.Author, sitesJSON, customJSON,
		b.EnableDiscovery, b.IsActive, formatTimePtr(b.LastCheckedAt),
		b.TotalListings, b.ID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteBook removes a book. Listings and notifications cascade.
// Returns false when no book with that ID exists.
func (s *Store) DeleteBook(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateCustomSites replaces the custom site list of a book.
func (s *Store) UpdateCustomSites(ctx context.Context, id string, sites []string) error {
	if sites == nil {
		sites = []string{}
	}
	data, err := json.Marshal(sites)
	if err != nil {
		return fmt.Errorf("encode custom sites: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.DB,
		`UPDATE books SET custom_sites_json = ? WHERE id = ?`, string(data), id)
	return err
}

// UpdateSiteStats replaces only the per-site stats document of a book.
// Check cycles use this so fields edited during a long-running check
// never get overwritten with a stale snapshot.
func (s *Store) UpdateSiteStats(ctx context.Context, id string, sites []BookSite) error {
	if sites == nil {
		sites = []BookSite{}
	}
	data, err := json.Marshal(sites)
	if err != nil {
		return fmt.Errorf("encode sites: %w", err)
	}
	_, err = dbopen.Exec(ctx, s.DB,
		`UPDATE books SET sites_json = ? WHERE id = ?`, string(data), id)
	return err
}

// UpdateCheckStats records the outcome of a check cycle: last-checked
// timestamp plus the running listing total.
func (s *Store) UpdateCheckStats(ctx context.Context, id string, checkedAt time.Time, total int) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE books SET last_checked_at = ?, total_listings = ? WHERE id = ?`,
		formatTime(checkedAt), total, id)
	return err
}

// TouchLastChecked updates only the last-checked timestamp. Used after a
// failed check so staleness stays visible even when scraping is broken.
func (s *Store) TouchLastChecked(ctx context.Context, id string, checkedAt time.Time) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE books SET last_checked_at = ? WHERE id = ?`, formatTime(checkedAt), id)
	return err
}

func encodeBookDocs(b *Book) (sitesJSON, customJSON string, err error) {
	sites := b.Sites
	if sites == nil {
		sites = []BookSite{}
	}
	sd, err := json.Marshal(sites)
	if err != nil {
		return "", "", fmt.Errorf("encode sites: %w", err)
	}
	custom := b.CustomSites
	if custom == nil {
		custom = []string{}
	}
	cd, err := json.Marshal(custom)
	if err != nil {
		return "", "", fmt.Errorf("encode custom sites: %w", err)
	}
	return string(sd), string(cd), nil
}

func scanBook(scan func(...any) error) (*Book, error) {
	var (
		b                     Book
		sitesJSON, customJSON string
		discovery, active     int
		createdAt             string
		lastChecked           sql.NullString
	)
	err := scan(&b.ID, &b.Title, &b.Author, &sitesJSON, &customJSON,
		&discovery, &active, &createdAt, &lastChecked, &b.TotalListings)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan book: %w", err)
	}
	if err := json.Unmarshal([]byte(sitesJSON), &b.Sites); err != nil {
		return nil, fmt.Errorf("decode sites: %w", err)
	}
	if err := json.Unmarshal([]byte(customJSON), &b.CustomSites); err != nil {
		return nil, fmt.Errorf("decode custom sites: %w", err)
	}
	b.EnableDiscovery = discovery != 0
	b.IsActive = active != 0
	b.CreatedAt = parseTime(createdAt)
	b.LastCheckedAt = parseTimePtr(lastChecked)
	return &b, nil
}
