// Package scrape turns bookshop search pages into scored candidate
// listings.
//
// A Scraper drives multi-strategy searches (see the query package) against
// site-specific extractors, a generic extractor for user-added sites, and
// an optional web-search discovery extractor. Extraction failures are
// localized: a failing site yields an empty result, never an aborted cycle.
package scrape

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/hazyhaar/sahaf/tracker/internal/query"
)

// PriceUnknown is the placeholder stored when no price could be parsed.
const PriceUnknown = "Fiyat belirtilmemiş"

// Target identifies the book being searched for.
type Target struct {
	Title  string
	Author string
}

// Candidate is an unpersisted, scored extraction result awaiting the
// dedup/match decision. It has no identity of its own.
type Candidate struct {
	SiteName  string  `json:"site_name"`
	Title     string  `json:"title"`
	Price     string  `json:"price"`
	URL       string  `json:"url"`
	Seller    string  `json:"seller"`
	Condition string  `json:"condition"`
	Score     float64 `json:"match_score"`
	IsMatch   bool    `json:"-"`
}

// Extractor produces candidates for one search term.
type Extractor interface {
	Name() string
	Search(ctx context.Context, term string, target Target) ([]Candidate, error)
}

// Config configures a Scraper.
type Config struct {
	Fetch FetchConfig

	// DelayMin/DelayMax bound the randomized politeness delay between
	// outbound searches. Zero values take the 2s-5s defaults.
	DelayMin time.Duration
	DelayMax time.Duration

	// DisableDelay turns the politeness delay off entirely. Tests only.
	DisableDelay bool

	// MaxPerSite caps the candidates returned per site search. Default: 10.
	MaxPerSite int

	// SitesFile optionally overrides the embedded site templates.
	SitesFile string
}

func (c *Config) defaults() {
	if c.MaxPerSite <= 0 {
		c.MaxPerSite = 10
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 2 * time.Second
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = 5 * time.Second
	}
}

// Scraper runs searches against known and user-added sites.
type Scraper struct {
	fetcher *Fetcher
	sites   []*siteTemplate
	config  Config
	logger  *slog.Logger

	delayDisabled bool
}

// New creates a Scraper with the built-in site templates (plus overrides
// from cfg.SitesFile when set).
func New(cfg Config, logger *slog.Logger) (*Scraper, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	sites, err := loadSiteTemplates(cfg.SitesFile)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		fetcher:       NewFetcher(cfg.Fetch),
		sites:         sites,
		config:        cfg,
		logger:        logger,
		delayDisabled: cfg.DisableDelay,
	}, nil
}

// SiteNames returns the names of all loaded site templates in load order.
func (s *Scraper) SiteNames() []string {
	names := make([]string, 0, len(s.sites))
	for _, t := range s.sites {
		names = append(names, t.Name)
	}
	return names
}

// KnownSite reports whether a site template exists for the given name
// (case-insensitive) and returns its display label.
func (s *Scraper) KnownSite(name string) (string, bool) {
	if t := s.siteByName(name); t != nil {
		return t.Label, true
	}
	return "", false
}

// SearchSite runs the multi-strategy search against a named site template.
// Unknown sites yield no candidates.
func (s *Scraper) SearchSite(ctx context.Context, siteName string, target Target) []Candidate {
	tpl := s.siteByName(siteName)
	if tpl == nil {
		s.logger.Warn("scrape: unknown site", "site", siteName)
		return nil
	}
	return s.multiStrategy(ctx, &siteExtractor{tpl: tpl, fetcher: s.fetcher, logger: s.logger}, target)
}

// SearchCustom runs the multi-strategy search against a user-added site
// using the generic hyperlink heuristic.
func (s *Scraper) SearchCustom(ctx context.Context, siteURL string, target Target) []Candidate {
	ex := &genericExtractor{baseURL: siteURL, fetcher: s.fetcher, logger: s.logger}
	return s.multiStrategy(ctx, ex, target)
}

// SearchDiscovery runs the single web-search discovery query scoped to the
// known site domains.
func (s *Scraper) SearchDiscovery(ctx context.Context, target Target) []Candidate {
	ex := &discoveryExtractor{sites: s.sites, fetcher: s.fetcher, logger: s.logger}
	s.politeDelay(ctx)
	cands, err := ex.Search(ctx, "", target)
	if err != nil {
		s.logger.Warn("scrape: discovery search failed", "error", err)
		return nil
	}
	return cands
}

// multiStrategy pulls search strategies until enough candidates accumulate
// or the sequence is exhausted. Unpulled strategies cost no requests.
func (s *Scraper) multiStrategy(ctx context.Context, ex Extractor, target Target) []Candidate {
	var all []Candidate
	seen := make(map[string]bool)

	strategies := query.New(target.Title, target.Author)
	for len(all) < query.EnoughCandidates {
		st, ok := strategies.Next()
		if !ok {
			break
		}
		if ctx.Err() != nil {
			break
		}
		s.politeDelay(ctx)

		cands, err := ex.Search(ctx, st.Term, target)
		if err != nil {
			s.logger.Warn("scrape: strategy failed",
				"site", ex.Name(), "strategy", st.Label, "error", err)
			continue
		}
		for _, c := range cands {
			if c.URL == "" || seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			all = append(all, c)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > s.config.MaxPerSite {
		all = all[:s.config.MaxPerSite]
	}
	return all
}

// politeDelay sleeps a randomized interval between outbound searches so a
// burst of strategies does not hammer the remote site. Cancellable.
func (s *Scraper) politeDelay(ctx context.Context) {
	if s.delayDisabled {
		return
	}
	span := s.config.DelayMax - s.config.DelayMin
	d := s.config.DelayMin
	if span > 0 {
		d += rand.N(span)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Scraper) siteByName(name string) *siteTemplate {
	for _, t := range s.sites {
		if t.matches(name) {
			return t
		}
	}
	return nil
}
