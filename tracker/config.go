package tracker

import (
	"time"

	"github.com/hazyhaar/sahaf/tracker/internal/scrape"
)

// Config carries the service tunables. Zero values are filled in by
// defaults, so an empty Config is usable.
type Config struct {
	// Scrape configures the site fetch layer (timeouts, politeness
	// delays, per-site result caps).
	Scrape scrape.Config

	// CheckInterval is the scheduler interval used until the stored
	// settings override it. The stored value wins once loaded.
	CheckInterval time.Duration

	// NotificationLimit caps how many notifications list calls return.
	NotificationLimit int
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 6 * time.Hour
	}
	if c.NotificationLimit <= 0 {
		c.NotificationLimit = 50
	}
}
