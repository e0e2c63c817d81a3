package scrape

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sahaf/tracker/internal/match"
)

// maxElements bounds how many result elements one extraction call inspects.
const maxElements = 15

//go:embed sites.yaml
var defaultSitesYAML []byte

// siteTemplate describes how to search one known bookshop: URL patterns
// tried in order, then selector sets tried in priority order. The first
// selector set yielding any parseable listing wins.
type siteTemplate struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label"`
	BaseURL     string   `yaml:"base_url"`
	Domain      string   `yaml:"domain"`
	SearchPaths []string `yaml:"search_paths"`
	Selectors   []string `yaml:"selectors"`
	Condition   string   `yaml:"condition"`
}

func (t *siteTemplate) matches(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	return n == t.Name || n == strings.ToLower(t.Label)
}

type sitesFile struct {
	Sites []*siteTemplate `yaml:"sites"`
}

// loadSiteTemplates parses the embedded site templates, or the file at
// path when non-empty.
func loadSiteTemplates(path string) ([]*siteTemplate, error) {
	data := defaultSitesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sites file: %w", err)
		}
		data = b
	}
	var f sitesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sites file: %w", err)
	}
	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("sites file defines no sites")
	}
	for _, t := range f.Sites {
		t.Name = strings.ToLower(t.Name)
		if t.BaseURL == "" || len(t.SearchPaths) == 0 || len(t.Selectors) == 0 {
			return nil, fmt.Errorf("site %q: base_url, search_paths and selectors are required", t.Name)
		}
	}
	return f.Sites, nil
}

// siteExtractor extracts candidates from one known bookshop.
type siteExtractor struct {
	tpl     *siteTemplate
	fetcher *Fetcher
	logger  *slog.Logger
}

func (e *siteExtractor) Name() string { return e.tpl.Name }

// Search tries the template's search URL patterns in order and parses the
// first page that yields listings.
func (e *siteExtractor) Search(ctx context.Context, term string, target Target) ([]Candidate, error) {
	escaped := url.QueryEscape(term)
	var lastErr error
	for _, pattern := range e.tpl.SearchPaths {
		searchURL := e.tpl.BaseURL + fmt.Sprintf(pattern, escaped)
		body, err := e.fetcher.Fetch(ctx, searchURL)
		if err != nil {
			lastErr = err
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		if listings := e.parse(doc, target); len(listings) > 0 {
			return listings, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%s: %w", e.tpl.Name, lastErr)
	}
	return nil, nil
}

func (e *siteExtractor) parse(doc *goquery.Document, target Target) []Candidate {
	for _, selector := range e.tpl.Selectors {
		nodes := doc.Find(selector)
		if nodes.Length() == 0 {
			continue
		}
		var out []Candidate
		nodes.EachWithBreak(func(i int, el *goquery.Selection) bool {
			if i >= maxElements {
				return false
			}
			if c, ok := e.parseElement(el, target); ok {
				out = append(out, c)
			}
			return true
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// parseElement extracts one candidate from a result element. Elements
// without a usable title, or scoring below the candidate floor, are
// skipped; a malformed element never aborts the extraction.
func (e *siteExtractor) parseElement(el *goquery.Selection, target Target) (Candidate, bool) {
	titleEl := firstOf(el, "a", "h3", "h2", "h4", "td")
	if titleEl == nil {
		return Candidate{}, false
	}
	title := strings.TrimSpace(titleEl.Text())
	if len([]rune(title)) < 5 {
		return Candidate{}, false
	}

	r := match.Score(title, target.Title, target.Author, 0)
	if !r.IsMatch && r.Score <= match.CandidateFloor {
		return Candidate{}, false
	}

	href, _ := titleEl.Attr("href")
	if href == "" {
		href, _ = el.Find("a").First().Attr("href")
	}

	return Candidate{
		SiteName:  e.tpl.Label,
		Title:     title,
		Price:     findPrice(el.Text()),
		URL:       resolveHref(e.tpl.BaseURL, href),
		Seller:    e.tpl.Label,
		Condition: e.tpl.Condition,
		Score:     r.Score,
		IsMatch:   r.IsMatch,
	}, true
}

// firstOf returns the first matching descendant for the given selectors in
// preference order, or nil.
func firstOf(el *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, s := range selectors {
		if found := el.Find(s).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// resolveHref makes a scraped href absolute against the site base URL.
func resolveHref(baseURL, href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return strings.TrimRight(baseURL, "/") + href
}
