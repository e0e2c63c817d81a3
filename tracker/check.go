package tracker

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/sahaf/tracker/internal/match"
	"github.com/hazyhaar/sahaf/tracker/internal/scrape"
	"github.com/hazyhaar/sahaf/tracker/internal/store"
)

// CheckResult summarizes a single check cycle for one book.
type CheckResult struct {
	BookID        string `json:"book_id"`
	BookTitle     string `json:"book_title"`
	Candidates    int    `json:"candidates"`
	NewListings   int    `json:"new_listings"`
	Notifications int    `json:"notifications"`
}

// CheckBook runs a full check cycle for one book: collect candidates
// from every configured source, dedup against stored listings, persist
// what is new, and emit notifications for strong matches. At most one
// check per book runs at a time.
func (svc *Service) CheckBook(ctx context.Context, bookID string) (*CheckResult, error) {
	b, err := svc.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !svc.beginCheck(b.ID) {
		return nil, fmt.Errorf("%w: book %s", ErrCheckInProgress, b.ID)
	}
	defer svc.endCheck(b.ID)
	return svc.runCheck(ctx, b)
}

// checkAllBooks is the scheduled task: checks every active book in
// creation order. One book failing never stops the sweep.
func (svc *Service) checkAllBooks(ctx context.Context) {
	books, err := svc.store.ListActiveBooks(ctx)
	if err != nil {
		svc.logger.Error("tracker: list active books failed", "error", err)
		return
	}
	svc.logger.Info("tracker: scheduled check starting", "books", len(books))
	for _, b := range books {
		if ctx.Err() != nil {
			return
		}
		if !svc.beginCheck(b.ID) {
			svc.logger.Warn("tracker: skipping book, check in flight", "book_id", b.ID)
			continue
		}
		res, err := svc.runCheck(ctx, b)
		svc.endCheck(b.ID)
		if err != nil {
			svc.logger.Warn("tracker: book check failed", "book_id", b.ID, "title", b.Title, "error", err)
			continue
		}
		svc.logger.Info("tracker: book checked",
			"book_id", b.ID, "title", b.Title,
			"candidates", res.Candidates, "new_listings", res.NewListings)
	}
}

// runCheck collects, dedups and persists listings for one book. The
// caller holds the in-flight slot.
func (svc *Service) runCheck(ctx context.Context, b *Book) (*CheckResult, error) {
	settings, err := svc.store.GetSettings(ctx)
	if err != nil {
		svc.bestEffort(ctx, "touch last_checked", func(ctx context.Context) error {
			return svc.store.TouchLastChecked(ctx, b.ID, svc.now().UTC())
		})
		return nil, fmt.Errorf("load settings: %w", err)
	}

	// Each candidate remembers which book site produced it (-1 for custom
	// sites and discovery) so per-site stats stay accurate.
	type sourced struct {
		c    scrape.Candidate
		site int
	}
	target := scrape.Target{Title: b.Title, Author: b.Author}
	var cands []sourced
	for i, site := range b.Sites {
		if _, ok := svc.searcher.KnownSite(site.Name); !ok {
			svc.logger.Warn("tracker: skipping unknown site", "book_id", b.ID, "site", site.Name)
			continue
		}
		for _, c := range svc.searcher.SearchSite(ctx, site.Name, target) {
			cands = append(cands, sourced{c, i})
		}
	}
	for _, siteURL := range b.CustomSites {
		for _, c := range svc.searcher.SearchCustom(ctx, siteURL, target) {
			cands = append(cands, sourced{c, -1})
		}
	}
	if b.EnableDiscovery && settings.DiscoveryEnabled {
		for _, c := range svc.searcher.SearchDiscovery(ctx, target) {
			cands = append(cands, sourced{c, -1})
		}
	}

	stored, err := svc.store.ListListings(ctx, b.ID)
	if err != nil {
		svc.bestEffort(ctx, "touch last_checked", func(ctx context.Context) error {
			return svc.store.TouchLastChecked(ctx, b.ID, svc.now().UTC())
		})
		return nil, fmt.Errorf("load stored listings: %w", err)
	}
	known := knownIdentifiers(stored)

	res := &CheckResult{BookID: b.ID, BookTitle: b.Title, Candidates: len(cands)}
	now := svc.now().UTC()
	seen := make(map[string]bool, len(cands))
	newPerSite := make(map[int]int)
	for _, sc := range cands {
		c := sc.c
		if c.URL == "" {
			continue
		}
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		if known.has(c) {
			continue
		}

		l := &store.Listing{
			ID:         svc.newID(),
			BookID:     b.ID,
			SiteName:   c.SiteName,
			Title:      c.Title,
			Price:      c.Price,
			URL:        c.URL,
			Seller:     c.Seller,
			Condition:  c.Condition,
			MatchScore: c.Score,
			FoundAt:    now,
		}
		if err := svc.store.InsertListing(ctx, l); err != nil {
			svc.bestEffort(ctx, "touch last_checked", func(ctx context.Context) error {
				return svc.store.TouchLastChecked(ctx, b.ID, now)
			})
			return nil, fmt.Errorf("insert listing: %w", err)
		}
		known.add(c)
		res.NewListings++
		if sc.site >= 0 {
			newPerSite[sc.site]++
		}

		if settings.InAppNotifications && c.Score > match.NotifyFloor {
			n := &store.Notification{
				ID:        svc.newID(),
				BookID:    b.ID,
				BookTitle: b.Title,
				Message: fmt.Sprintf("Yeni eşleşme bulundu: %s - %s (Eşleşme: %d%%)",
					c.Title, c.Price, int(c.Score*100)),
				ListingURL: c.URL,
				CreatedAt:  now,
			}
			if err := svc.store.InsertNotification(ctx, n); err != nil {
				svc.logger.Warn("tracker: insert notification failed", "book_id", b.ID, "error", err)
			} else {
				res.Notifications++
			}
		}
	}

	// Refresh per-site stats and the book totals with targeted updates.
	// A check can run for minutes; a full replace here would overwrite
	// edits made to the book in the meantime with the stale snapshot
	// loaded at check start.
	for i := range b.Sites {
		t := now
		b.Sites[i].LastCheck = &t
		b.Sites[i].ListingsFound += newPerSite[i]
	}
	if err := svc.store.UpdateSiteStats(ctx, b.ID, b.Sites); err != nil {
		return nil, fmt.Errorf("update site stats: %w", err)
	}
	total, err := svc.store.CountListings(ctx, b.ID)
	if err != nil {
		total = b.TotalListings + res.NewListings
	}
	b.LastCheckedAt = &now
	b.TotalListings = total
	if err := svc.store.UpdateCheckStats(ctx, b.ID, now, total); err != nil {
		return nil, fmt.Errorf("update check stats: %w", err)
	}
	return res, nil
}

// bestEffort runs fn and logs a failure instead of propagating it. Used
// where the primary error must survive, such as the staleness timestamp
// write after a failed check.
func (svc *Service) bestEffort(ctx context.Context, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		svc.logger.Warn("tracker: best-effort operation failed", "op", op, "error", err)
	}
}

// identifierSet holds every identity a stored listing answers to. A
// candidate matching any member is a duplicate.
type identifierSet map[string]bool

// knownIdentifiers builds the dedup set from stored listings: the raw
// URL, the URL with query and fragment stripped, and a composite of
// lowercased title and site name for sites that rotate URLs.
func knownIdentifiers(stored []*store.Listing) identifierSet {
	set := make(identifierSet, len(stored)*3)
	for _, l := range stored {
		set[l.URL] = true
		set[stripURL(l.URL)] = true
		set[compositeKey(l.Title, l.SiteName)] = true
	}
	return set
}

func (set identifierSet) has(c scrape.Candidate) bool {
	return set[c.URL] || set[stripURL(c.URL)] || set[compositeKey(c.Title, c.SiteName)]
}

func (set identifierSet) add(c scrape.Candidate) {
	set[c.URL] = true
	set[stripURL(c.URL)] = true
	set[compositeKey(c.Title, c.SiteName)] = true
}

// stripURL removes the query string and fragment. Tracking parameters
// must not make an old listing look new.
func stripURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func compositeKey(title, siteName string) string {
	return strings.ToLower(title) + "_" + strings.ToLower(siteName)
}

// LastCheckTime reports the most recent check across all books, used by
// the health endpoint.
func (svc *Service) LastCheckTime(ctx context.Context) *time.Time {
	books, err := svc.store.ListBooks(ctx)
	if err != nil {
		return nil
	}
	var latest *time.Time
	for _, b := range books {
		if b.LastCheckedAt != nil && (latest == nil || b.LastCheckedAt.After(*latest)) {
			latest = b.LastCheckedAt
		}
	}
	return latest
}
