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

// Common search URL shapes for sites we have no template for.
var genericSearchPaths = []string{
	"/search?q=%s",
	"/ara?q=%s",
	"/arama/%s",
	"/?s=%s",
}

const (
	genericMinTitleRunes = 5
	genericMaxResults    = 10
)

// genericExtractor handles user-added sites with a keyword-overlap
// heuristic over every hyperlink on the page: a link qualifies when its
// visible text is long enough and shares at least one significant word
// with the searched title.
type genericExtractor struct {
	baseURL string
	fetcher *Fetcher
	logger  *slog.Logger
}

func (e *genericExtractor) Name() string {
	return strings.TrimPrefix(strings.TrimPrefix(e.baseURL, "https://"), "http://")
}

func (e *genericExtractor) Search(ctx context.Context, term string, target Target) ([]Candidate, error) {
	escaped := url.QueryEscape(term)
	base := strings.TrimRight(e.baseURL, "/")
	var lastErr error
	for _, pattern := range genericSearchPaths {
		searchURL := base + fmt.Sprintf(pattern, escaped)
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
		return nil, fmt.Errorf("%s: %w", e.Name(), lastErr)
	}
	return nil, nil
}

func (e *genericExtractor) parse(doc *goquery.Document, target Target) []Candidate {
	keywords := significantWords(target.Title)
	if len(keywords) == 0 {
		return nil
	}

	var out []Candidate
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.TrimSpace(a.Text())
		if len([]rune(text)) <= genericMinTitleRunes {
			return true
		}
		if !sharesKeyword(text, keywords) {
			return true
		}

		r := match.Score(text, target.Title, target.Author, 0)
		if !r.IsMatch && r.Score <= match.CandidateFloor {
			return true
		}

		href, _ := a.Attr("href")
		out = append(out, Candidate{
			SiteName:  e.Name(),
			Title:     text,
			Price:     findPrice(a.Text()),
			URL:       resolveHref(e.baseURL, href),
			Seller:    e.Name(),
			Condition: "Bilinmiyor",
			Score:     r.Score,
			IsMatch:   r.IsMatch,
		})
		return len(out) < genericMaxResults
	})
	return out
}

// significantWords returns the lower-cased title words longer than three
// runes.
func significantWords(title string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if len([]rune(w)) > 3 {
			words = append(words, w)
		}
	}
	return words
}

func sharesKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
