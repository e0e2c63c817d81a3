package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/sahaf/idgen"
	"github.com/hazyhaar/sahaf/safeurl"
	"github.com/hazyhaar/sahaf/tracker/internal/scheduler"
	"github.com/hazyhaar/sahaf/tracker/internal/scrape"
	"github.com/hazyhaar/sahaf/tracker/internal/store"
)

// Searcher abstracts the scrape layer for testability. The production
// implementation is scrape.Scraper.
type Searcher interface {
	SiteNames() []string
	KnownSite(name string) (label string, ok bool)
	SearchSite(ctx context.Context, name string, target scrape.Target) []scrape.Candidate
	SearchCustom(ctx context.Context, siteURL string, target scrape.Target) []scrape.Candidate
	SearchDiscovery(ctx context.Context, target scrape.Target) []scrape.Candidate
}

// Service is the main tracker orchestrator: book CRUD, listing checks,
// notifications, settings, and the background check scheduler.
type Service struct {
	store        *store.Store
	searcher     Searcher
	sched        *scheduler.Scheduler
	logger       *slog.Logger
	config       *Config
	newID        func() string
	now          func() time.Time
	urlValidator func(string) error

	mu       sync.Mutex
	inFlight map[string]bool // book ids with a check running
}

// New creates a tracker Service on an already-open database. The schema
// must have been applied by the caller.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:        store.NewStore(db),
		logger:       logger,
		config:       cfg,
		newID:        idgen.New,
		now:          time.Now,
		urlValidator: safeurl.Validate,
		inFlight:     make(map[string]bool),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.searcher == nil {
		sc, err := scrape.New(cfg.Scrape, logger)
		if err != nil {
			return nil, fmt.Errorf("init scraper: %w", err)
		}
		svc.searcher = sc
	}

	svc.sched = scheduler.New(cfg.CheckInterval, func(ctx context.Context) {
		svc.checkAllBooks(ctx)
	}, logger)

	return svc, nil
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithSearcher overrides the scrape layer. Use in tests with fakes that
// return canned candidates.
func WithSearcher(s Searcher) ServiceOption {
	return func(svc *Service) { svc.searcher = s }
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(g idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = g }
}

// WithClock overrides the time source. Use in tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(svc *Service) { svc.now = now }
}

// WithURLValidator overrides custom-site URL validation (default:
// safeurl.Validate). Use in tests with httptest servers that listen on
// loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// Start loads the stored check interval and launches the background
// scheduler. Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	settings, err := svc.store.GetSettings(ctx)
	if err != nil {
		svc.logger.Warn("tracker: load settings failed, using defaults", "error", err)
		settings = store.DefaultSettings()
	}
	svc.sched.Reschedule(time.Duration(settings.CheckIntervalHours) * time.Hour)
	go svc.sched.Run(ctx)
	svc.logger.Info("tracker: started", "check_interval_hours", settings.CheckIntervalHours)
}

// Close shuts down the service.
func (svc *Service) Close() error {
	svc.logger.Info("tracker: closed")
	return nil
}

// --- Books ---

// CreateBook validates and persists a new tracked book. Missing fields
// get defaults: a fresh id, the built-in site list, active status.
func (svc *Service) CreateBook(ctx context.Context, b *Book) error {
	if err := validateBookInput(b); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = svc.newID()
	}
	if len(b.Sites) == 0 {
		for _, name := range svc.searcher.SiteNames() {
			b.Sites = append(b.Sites, BookSite{Name: name})
		}
	}
	if b.CustomSites == nil {
		b.CustomSites = []string{}
	}
	b.IsActive = true
	b.CreatedAt = svc.now().UTC()
	b.LastCheckedAt = nil
	b.TotalListings = 0
	return svc.store.InsertBook(ctx, b)
}

// GetBook returns a book by id.
func (svc *Service) GetBook(ctx context.Context, bookID string) (*Book, error) {
	b, err := svc.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}
	return b, nil
}

// ListBooks returns all tracked books, newest first.
func (svc *Service) ListBooks(ctx context.Context) ([]*Book, error) {
	return svc.store.ListBooks(ctx)
}

// UpdateBook replaces a book's mutable fields. Check statistics and the
// creation timestamp are preserved from the stored record.
func (svc *Service) UpdateBook(ctx context.Context, b *Book) error {
	if err := validateBookInput(b); err != nil {
		return err
	}
	existing, err := svc.GetBook(ctx, b.ID)
	if err != nil {
		return err
	}
	b.CreatedAt = existing.CreatedAt
	b.LastCheckedAt = existing.LastCheckedAt
	b.TotalListings = existing.TotalListings
	if b.CustomSites == nil {
		b.CustomSites = existing.CustomSites
	}
	found, err := svc.store.ReplaceBook(ctx, b)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: book %s", ErrNotFound, b.ID)
	}
	return nil
}

// DeleteBook removes a book and, via cascade, its listings and
// notifications.
func (svc *Service) DeleteBook(ctx context.Context, bookID string) error {
	found, err := svc.store.DeleteBook(ctx, bookID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}
	return nil
}

// AddCustomSite attaches a user-supplied shop URL to a book. The URL is
// normalized to https before storage. Adding a URL already present is a
// no-op, not an error.
func (svc *Service) AddCustomSite(ctx context.Context, bookID, rawURL string) (*Book, error) {
	siteURL, err := normalizeSiteURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := svc.urlValidator(siteURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	b, err := svc.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	for _, existing := range b.CustomSites {
		if existing == siteURL {
			return b, nil
		}
	}
	b.CustomSites = append(b.CustomSites, siteURL)
	if err := svc.store.UpdateCustomSites(ctx, b.ID, b.CustomSites); err != nil {
		return nil, err
	}
	return b, nil
}

// RemoveCustomSite detaches a custom site URL from a book. The URL must
// be present.
func (svc *Service) RemoveCustomSite(ctx context.Context, bookID, rawURL string) (*Book, error) {
	siteURL, err := normalizeSiteURL(rawURL)
	if err != nil {
		return nil, err
	}
	b, err := svc.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	kept := b.CustomSites[:0:0]
	removed := false
	for _, existing := range b.CustomSites {
		if existing == siteURL {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		return nil, fmt.Errorf("%w: custom site %s", ErrNotFound, siteURL)
	}
	if kept == nil {
		kept = []string{}
	}
	b.CustomSites = kept
	if err := svc.store.UpdateCustomSites(ctx, b.ID, b.CustomSites); err != nil {
		return nil, err
	}
	return b, nil
}

// --- Listings ---

// Listings returns the stored listings for a book, newest first.
func (svc *Service) Listings(ctx context.Context, bookID string) ([]*Listing, error) {
	if _, err := svc.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return svc.store.ListListings(ctx, bookID)
}

// --- Notifications ---

// Notifications returns recent notifications, newest first.
func (svc *Service) Notifications(ctx context.Context) ([]*Notification, error) {
	return svc.store.ListNotifications(ctx, svc.config.NotificationLimit)
}

// MarkNotificationRead flags a notification as read.
func (svc *Service) MarkNotificationRead(ctx context.Context, id string) error {
	found, err := svc.store.MarkNotificationRead(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}
	return nil
}

// --- Settings ---

// Settings returns the stored monitoring settings, or defaults when none
// were ever saved.
func (svc *Service) Settings(ctx context.Context) (*Settings, error) {
	return svc.store.GetSettings(ctx)
}

// UpdateSettings persists new monitoring settings and re-arms the check
// scheduler with the new interval.
func (svc *Service) UpdateSettings(ctx context.Context, s *Settings) error {
	if s.CheckIntervalHours < 1 {
		return fmt.Errorf("%w: check interval must be at least 1 hour", ErrInvalidInput)
	}
	if err := svc.store.UpsertSettings(ctx, s); err != nil {
		return err
	}
	svc.sched.Reschedule(time.Duration(s.CheckIntervalHours) * time.Hour)
	svc.logger.Info("tracker: settings updated", "check_interval_hours", s.CheckIntervalHours)
	return nil
}

// --- Debug ---

// ScrapeTest runs a single search against one site and returns the raw
// candidates without persisting anything. The site argument is a known
// site name, "google" for discovery, or a custom shop URL.
func (svc *Service) ScrapeTest(ctx context.Context, site, title, author string) ([]scrape.Candidate, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	target := scrape.Target{Title: title, Author: author}
	if site == "google" {
		return svc.searcher.SearchDiscovery(ctx, target), nil
	}
	if _, ok := svc.searcher.KnownSite(site); ok {
		return svc.searcher.SearchSite(ctx, site, target), nil
	}
	siteURL, err := normalizeSiteURL(site)
	if err != nil {
		return nil, err
	}
	return svc.searcher.SearchCustom(ctx, siteURL, target), nil
}

// beginCheck marks a book check as in flight. Returns false when one is
// already running for that book.
func (svc *Service) beginCheck(bookID string) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.inFlight[bookID] {
		return false
	}
	svc.inFlight[bookID] = true
	return true
}

func (svc *Service) endCheck(bookID string) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	delete(svc.inFlight, bookID)
}
