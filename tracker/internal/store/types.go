package store

import "time"

// BookSite is the per-site tracking state carried on a book.
type BookSite struct {
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	LastCheck     *time.Time `json:"last_check,omitempty"`
	ListingsFound int        `json:"listings_found"`
}

// Book is a tracked book.
type Book struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Sites           []BookSite `json:"sites"`
	CustomSites     []string   `json:"custom_sites"`
	EnableDiscovery bool       `json:"enable_discovery"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	TotalListings   int        `json:"total_listings"`
}

// Listing is a persisted listing found for a book. Immutable once created:
// the check cycle only inserts new rows, never updates existing ones.
type Listing struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	SiteName   string    `json:"site_name"`
	Title      string    `json:"title"`
	Price      string    `json:"price"`
	URL        string    `json:"url"`
	Seller     string    `json:"seller"`
	Condition  string    `json:"condition"`
	MatchScore float64   `json:"match_score"`
	FoundAt    time.Time `json:"found_at"`
}

// Notification is an unread/read alert about a newly found listing.
type Notification struct {
	ID         string    `json:"id"`
	BookID     string    `json:"book_id"`
	BookTitle  string    `json:"book_title"`
	Message    string    `json:"message"`
	ListingURL string    `json:"listing_url"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Settings is the process-wide monitoring configuration. At most one row
// exists; updates upsert it.
type Settings struct {
	CheckIntervalHours int  `json:"check_interval_hours"`
	EmailNotifications bool `json:"email_notifications"`
	InAppNotifications bool `json:"in_app_notifications"`
	FuzzyMatching      bool `json:"fuzzy_matching"`
	DiscoveryEnabled   bool `json:"discovery_enabled"`
}

// DefaultSettings returns the settings used before any explicit update.
func DefaultSettings() *Settings {
	return &Settings{
		CheckIntervalHours: 6,
		EmailNotifications: false,
		InAppNotifications: true,
		FuzzyMatching:      true,
		DiscoveryEnabled:   true,
	}
}
