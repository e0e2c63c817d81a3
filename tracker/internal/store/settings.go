package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/sahaf/dbopen"
)

// GetSettings returns the monitoring settings, or the defaults when no row
// has been written yet.
func (s *Store) GetSettings(ctx context.Context) (*Settings, error) {
	var (
		cfg                          Settings
		email, inApp, fuzzy, discov int
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT check_interval_hours, email_notifications, in_app_notifications,
		fuzzy_matching, discovery_enabled
		FROM settings WHERE id = 'monitoring'`).
		Scan(&cfg.CheckIntervalHours, &email, &inApp, &fuzzy, &discov)
	if err == sql.ErrNoRows {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}
	cfg.EmailNotifications = email != 0
	cfg.InAppNotifications = inApp != 0
	cfg.FuzzyMatching = fuzzy != 0
	cfg.DiscoveryEnabled = discov != 0
	return &cfg, nil
}

// UpsertSettings writes the singleton settings row.
func (s *Store) UpsertSettings(ctx context.Context, cfg *Settings) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO settings (id, check_interval_hours, email_notifications,
		in_app_notifications, fuzzy_matching, discovery_enabled)
		VALUES ('monitoring', ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			check_interval_hours = excluded.check_interval_hours,
			email_notifications  = excluded.email_notifications,
			in_app_notifications = excluded.in_app_notifications,
			fuzzy_matching       = excluded.fuzzy_matching,
			discovery_enabled    = excluded.discovery_enabled`,
		cfg.CheckIntervalHours, cfg.EmailNotifications, cfg.InAppNotifications,
		cfg.FuzzyMatching, cfg.DiscoveryEnabled)
	return err
}
