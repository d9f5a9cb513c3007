package link

import (
	"net/url"
	"strings"
)

// DefaultContentDomain is the application's own registered content domain.
const DefaultContentDomain = "tonygamingtz.com"

type Classification string

const (
	Internal Classification = "internal"
	External Classification = "external"
	Invalid  Classification = "invalid"
)

// Classifier decides whether a destination URL belongs to the application's
// content domain. It is pure: no network call, no side effect.
type Classifier struct {
	domain string
}

// NewClassifier builds a classifier for the given content domain. An empty
// domain falls back to DefaultContentDomain.
func NewClassifier(domain string) *Classifier {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		domain = DefaultContentDomain
	}
	return &Classifier{domain: domain}
}

// Classify parses the raw URL and reports Internal when the hostname
// contains the content domain. The match is a deliberate substring check,
// not equality, so subdomains count as internal. Malformed input yields
// Invalid, which callers treat like External: always confirm before leaving
// the app.
func (c *Classifier) Classify(raw string) Classification {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Invalid
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return Invalid
	}
	if strings.Contains(host, c.domain) {
		return Internal
	}
	return External
}

// Domain returns the configured content domain.
func (c *Classifier) Domain() string {
	return c.domain
}
