// Package safeurl validates user-supplied URLs before the service fetches
// them: scheme allow-listing and SSRF prevention against private and
// loopback addresses.
package safeurl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrSSRF is returned when a URL targets a private/loopback address.
var ErrSSRF = errors.New("safeurl: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("safeurl: only http and https schemes are allowed")

// Validate checks that rawURL uses http/https, has a hostname, and does
// not resolve to a private or loopback IP. DNS resolution is performed to
// catch internal hostnames; a DNS failure passes, the caller gets a
// network error at fetch time anyway.
func Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("safeurl: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("safeurl: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, network := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
		"169.254.0.0/16",
		"::1/128",
	} {
		_, cidr, err := net.ParseCIDR(network)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
