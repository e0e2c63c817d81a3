package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	Timeout   time.Duration // per-request budget. Default: 15s.
	MaxBytes  int64         // max response body size. Default: 5MB.
	UserAgent string
}

func (c *FetchConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 5 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
}

// Fetcher performs HTTP GETs with a bounded body and redirect cap.
type Fetcher struct {
	client *http.Client
	config FetchConfig
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetchConfig) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves a URL. Non-2xx/3xx statuses are errors: extraction treats
// every transport failure the same way, as an empty result.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "tr-TR,tr;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
