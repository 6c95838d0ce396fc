package marketplace

import (
	"net/url"
	"strings"

	errs "pricesentry/pkg/errors"
)

// defaultHostPatterns maps host suffixes to marketplaces. The set is closed:
// anything else fails fast and is never retried. The registry builds its own
// pattern set from the configured hosts.
var defaultHostPatterns = map[Marketplace][]string{
	Ozon:        {"ozon.ru"},
	Wildberries: {"wildberries.ru", "wb.ru"},
}

// Detect classifies a URL into one of the supported marketplaces using the
// default host set
func Detect(rawURL string) (Marketplace, error) {
	return detect(rawURL, defaultHostPatterns)
}

func detect(rawURL string, patterns map[Marketplace][]string) (Marketplace, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return "", errs.NewInvalidInput("", "malformed URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errs.NewInvalidInput("", "unsupported URL scheme")
	}

	host := strings.ToLower(u.Hostname())
	for m, suffixes := range patterns {
		if matchesSuffix(host, suffixes) {
			return m, nil
		}
	}

	return "", errs.NewInvalidInput("", "unsupported marketplace host: "+host)
}

// urlMatches reports whether the URL is http(s) and its host falls under one
// of the given suffixes
func urlMatches(rawURL string, suffixes []string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return matchesSuffix(strings.ToLower(u.Hostname()), suffixes)
}

func matchesSuffix(host string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// hostSuffix normalizes a configured canonical host to its match suffix
func hostSuffix(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}
