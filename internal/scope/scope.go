package scope

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/net/publicsuffix"
)

// Policy decides whether a URL belongs to the scan scope. It is derived once
// from the start URL and consulted by the crawler before queuing and by the
// active scanner before every test request.
type Policy struct {
	primaryDomain string
	allowedHosts  mapset.Set[string]
}

// privatePrefixes are loopback/private IPv4 ranges that are always in scope.
// This is a security tool; lab targets routinely live on private addresses.
var privatePrefixes = []string{"127.", "10.", "172.", "192.168."}

// blockedExtensions never enter the crawl queue.
var blockedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".svg": true, ".ico": true, ".css": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".mp4": true, ".mp3": true, ".avi": true,
	".mov": true, ".wmv": true, ".flv": true, ".pdf": true, ".doc": true,
	".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".rar": true, ".tar": true, ".gz": true, ".7z": true,
}

// NewPolicy derives the scan scope from the start URL: the main host, its
// www-stripped or www-prefixed variant, and the registered domain.
func NewPolicy(startURL string) (*Policy, error) {
	parsed, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return nil, fmt.Errorf("start URL %q has no host", startURL)
	}

	allowed := mapset.NewSet[string]()
	allowed.Add(host)
	if strings.HasPrefix(host, "www.") {
		allowed.Add(strings.TrimPrefix(host, "www."))
	} else {
		allowed.Add("www." + host)
	}

	p := &Policy{allowedHosts: allowed}

	// Registered domain so sibling subdomains stay in scope. IPs and bare
	// hostnames have no public suffix; the allowed-host set covers those.
	if net.ParseIP(host) == nil {
		if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			p.primaryDomain = domain
			allowed.Add(domain)
		}
	}

	return p, nil
}

// PrimaryDomain returns the registered domain the scope was derived from,
// or "" when the start host had none (IP address, single-label host).
func (p *Policy) PrimaryDomain() string { return p.primaryDomain }

// AllowedHosts returns the explicit host allowlist.
func (p *Policy) AllowedHosts() []string { return p.allowedHosts.ToSlice() }

// Allows reports whether rawURL is in scope. Relative URLs (no host) are
// admitted because they resolve against an in-scope base.
func (p *Policy) Allows(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return true
	}
	if p.allowedHosts.Contains(host) {
		return true
	}
	if p.primaryDomain != "" {
		if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil && domain == p.primaryDomain {
			return true
		}
	}
	for _, prefix := range privatePrefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

// BlockedExtension reports whether the URL path ends in a static-asset
// extension that should never be crawled.
func BlockedExtension(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(parsed.Path)
	if idx := strings.LastIndex(path, "."); idx != -1 {
		return blockedExtensions[path[idx:]]
	}
	return false
}
