// Package avatar picks the image URL to render for a user, honouring the
// image host allow-list.
package avatar

import (
	"net/url"
	"strings"
)

const DefaultURL = "/default-avatar.png"

// DefaultDomains are the image hosts trusted out of the box.
var DefaultDomains = []string{"randomuser.me", "cdn.discordapp.com"}

type Resolver struct {
	domains  map[string]bool
	fallback string
}

func NewResolver(domains []string, fallback string) *Resolver {
	if fallback == "" {
		fallback = DefaultURL
	}
	r := &Resolver{domains: make(map[string]bool, len(domains)), fallback: fallback}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			r.domains[d] = true
		}
	}
	return r
}

// Allowed reports whether raw can be rendered: site-relative paths always,
// absolute http(s) URLs only on an allow-listed host. Browsers read a
// backslash as a slash, so "/\\host" is a protocol-relative URL and rejected.
func (r *Resolver) Allowed(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !u.IsAbs() && u.Host == "" {
		return strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") && !strings.ContainsRune(raw, '\\')
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return r.domains[strings.ToLower(u.Hostname())]
}

// Resolve returns the first allowed candidate, or the fallback.
func (r *Resolver) Resolve(candidates ...string) string {
	for _, c := range candidates {
		if r.Allowed(c) {
			return c
		}
	}
	return r.fallback
}

func (r *Resolver) Fallback() string { return r.fallback }
