package tracker

import (
	"github.com/hazyhaar/sahaf/tracker/internal/scrape"
	"github.com/hazyhaar/sahaf/tracker/internal/store"
)

// Re-exported storage and scrape types so callers never import the
// internal packages.
type (
	Book         = store.Book
	BookSite     = store.BookSite
	Listing      = store.Listing
	Notification = store.Notification
	Settings     = store.Settings

	Candidate = scrape.Candidate
	Target    = scrape.Target
)

// DefaultSettings returns the settings used before any are stored.
func DefaultSettings() *Settings { return store.DefaultSettings() }
