package tracker

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	maxTitleLen = 512
	maxURLLen   = 4096
)

// validateBookInput validates a book's mutable fields before insert or
// update.
func validateBookInput(b *Book) error {
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if len(b.Title) > maxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, maxTitleLen)
	}
	if strings.TrimSpace(b.Author) == "" {
		return fmt.Errorf("%w: author is required", ErrInvalidInput)
	}
	if len(b.Author) > maxTitleLen {
		return fmt.Errorf("%w: author exceeds %d characters", ErrInvalidInput, maxTitleLen)
	}
	return nil
}

// normalizeSiteURL trims a user-supplied shop URL and prefixes https://
// when no scheme is present. Custom sites are stored and compared in
// this normalized form.
func normalizeSiteURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if len(raw) > maxURLLen {
		return "", fmt.Errorf("%w: url exceeds %d characters", ErrInvalidInput, maxURLLen)
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", ErrInvalidInput, raw)
	}
	return raw, nil
}
