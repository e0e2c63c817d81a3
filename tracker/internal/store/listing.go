package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/sahaf/dbopen"
)

const listingColumns = `id, book_id, site_name, title, price, url, seller,
	condition, match_score, found_at`

// InsertListing persists a newly discovered listing.
func (s *Store) InsertListing(ctx context.Context, l *Listing) error {
	if l.FoundAt.IsZero() {
		l.FoundAt = time.Now().UTC()
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO listings (`+listingColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.BookID, l.SiteName, l.Title, l.Price, l.URL, l.Seller,
		l.Condition, l.MatchScore, formatTime(l.FoundAt),
	)
	return err
}

// ListListings returns every listing for a book, most recent first.
func (s *Store) ListListings(ctx context.Context, bookID string) ([]*Listing, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings
		WHERE book_id = ? ORDER BY found_at DESC, id DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*Listing
	for rows.Next() {
		var (
			l       Listing
			foundAt string
		)
		err := rows.Scan(&l.ID, &l.BookID, &l.SiteName, &l.Title, &l.Price,
			&l.URL, &l.Seller, &l.Condition, &l.MatchScore, &foundAt)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l.FoundAt = parseTime(foundAt)
		listings = append(listings, &l)
	}
	return listings, rows.Err()
}

// CountListings returns the number of stored listings for a book.
func (s *Store) CountListings(ctx context.Context, bookID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listings WHERE book_id = ?`, bookID).Scan(&count)
	return count, err
}
