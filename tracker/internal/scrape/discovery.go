package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/sahaf/tracker/internal/match"
)

// discoveryFloor is the minimum raw score for a discovery result. Web
// search results are noisier than on-site searches, so the floor sits
// above the generic candidate floor.
const discoveryFloor = 0.4

// Domains the discovery query is scoped to beyond the built-in templates.
var discoveryExtraDomains = map[string]string{
	"pandora.com.tr": "Pandora",
	"idefix.com":     "Idefix",
}

// discoveryExtractor runs one general web search scoped to the known
// bookshop domains and maps result URLs back to site labels.
type discoveryExtractor struct {
	sites   []*siteTemplate
	fetcher *Fetcher
	logger  *slog.Logger
}

func (e *discoveryExtractor) Name() string { return "discovery" }

// Search ignores term: the discovery query is always built from the full
// quoted title and author.
func (e *discoveryExtractor) Search(ctx context.Context, _ string, target Target) ([]Candidate, error) {
	var scopes []string
	for _, t := range e.sites {
		scopes = append(scopes, "site:"+t.Domain)
	}
	for d := range discoveryExtraDomains {
		scopes = append(scopes, "site:"+d)
	}
	q := fmt.Sprintf("%q %q %s", target.Title, target.Author, strings.Join(scopes, " OR "))
	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(q) + "&hl=tr"

	body, err := e.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	results := doc.Find("div.g")
	if results.Length() == 0 {
		results = doc.Find("div[data-ved]")
	}

	var out []Candidate
	results.EachWithBreak(func(i int, el *goquery.Selection) bool {
		if i >= genericMaxResults {
			return false
		}
		titleEl := firstOf(el, "h3", "a")
		if titleEl == nil {
			return true
		}
		title := strings.TrimSpace(titleEl.Text())
		if title == "" {
			return true
		}
		href, _ := el.Find("a").First().Attr("href")

		r := match.Score(title, target.Title, target.Author, 0)
		if !r.IsMatch && r.Score <= discoveryFloor {
			return true
		}

		out = append(out, Candidate{
			SiteName:  e.siteLabel(href),
			Title:     title,
			Price:     "Google'da görüntüle",
			URL:       href,
			Seller:    e.siteLabel(href),
			Condition: "Google sonucu",
			Score:     r.Score,
			IsMatch:   r.IsMatch,
		})
		return true
	})
	return out, nil
}

// siteLabel maps a result URL back to a known bookshop label.
func (e *discoveryExtractor) siteLabel(resultURL string) string {
	for _, t := range e.sites {
		if strings.Contains(resultURL, t.Domain) {
			return t.Label
		}
	}
	for domain, label := range discoveryExtraDomains {
		if strings.Contains(resultURL, domain) {
			return label
		}
	}
	return "Google Sonucu"
}
