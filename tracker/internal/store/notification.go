package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/sahaf/dbopen"
)

// InsertNotification records a new unread notification.
func (s *Store) InsertNotification(ctx context.Context, n *Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO notifications (id, book_id, book_title, message, listing_url, read, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.BookID, n.BookTitle, n.Message, n.ListingURL, n.Read,
		formatTime(n.CreatedAt),
	)
	return err
}

// ListNotifications returns the most recent notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]*Notification, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, book_id, book_title, message, listing_url, read, created_at
		FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var (
			n         Notification
			read      int
			createdAt string
		)
		err := rows.Scan(&n.ID, &n.BookID, &n.BookTitle, &n.Message,
			&n.ListingURL, &read, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Read = read != 0
		n.CreatedAt = parseTime(createdAt)
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flips the unread → read flag. Returns false when no
// notification with that ID exists.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
