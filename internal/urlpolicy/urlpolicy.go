// Package urlpolicy validates untrusted URLs against the shortening policy and
// produces their canonical form.
//
// The private address check is lexical: it inspects the host as written and
// does not resolve names, so a public name pointing at a private address passes.
package urlpolicy

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/vadimbarashkov/paid-url-shortener/internal/entity"
)

const (
	DefaultMaxLength      = 2048
	DefaultMaxPathLength  = 1000
	DefaultMaxQueryLength = 1000
)

// DefaultBlockedShorteners lists well known shortening services.
var DefaultBlockedShorteners = []string{
	"bit.ly",
	"bl.ink",
	"buff.ly",
	"cutt.ly",
	"goo.gl",
	"is.gd",
	"ow.ly",
	"rebrand.ly",
	"shorturl.at",
	"t.co",
	"tiny.cc",
	"tinyurl.com",
}

var allowedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
}

var unsafeSchemes = map[string]struct{}{
	"javascript": {},
	"data":       {},
	"vbscript":   {},
	"file":       {},
	"blob":       {},
}

var blockedHostnames = map[string]struct{}{
	"localhost": {},
	"0.0.0.0":   {},
	"::1":       {},
	"::":        {},
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

// Policy bounds the URLs accepted for shortening.
type Policy struct {
	MaxLength         int
	MaxPathLength     int
	MaxQueryLength    int
	BlockedShorteners []string
}

// DefaultPolicy returns the policy used when no configuration overrides it.
func DefaultPolicy() Policy {
	return Policy{
		MaxLength:         DefaultMaxLength,
		MaxPathLength:     DefaultMaxPathLength,
		MaxQueryLength:    DefaultMaxQueryLength,
		BlockedShorteners: append([]string(nil), DefaultBlockedShorteners...),
	}
}

// Validator checks URLs against a Policy. It holds no mutable state and is safe
// for concurrent use.
type Validator struct {
	policy     Policy
	shorteners []string
}

// New creates a Validator. Zero limits fall back to the defaults.
func New(policy Policy) *Validator {
	if policy.MaxLength <= 0 {
		policy.MaxLength = DefaultMaxLength
	}
	if policy.MaxPathLength <= 0 {
		policy.MaxPathLength = DefaultMaxPathLength
	}
	if policy.MaxQueryLength <= 0 {
		policy.MaxQueryLength = DefaultMaxQueryLength
	}

	shorteners := make([]string, 0, len(policy.BlockedShorteners))
	for _, d := range policy.BlockedShorteners {
		d = normalizeHost(d)
		if d != "" {
			shorteners = append(shorteners, d)
		}
	}

	return &Validator{
		policy:     policy,
		shorteners: shorteners,
	}
}

// Validate checks raw against the policy and returns its canonical form.
// A rejection is always an *entity.ValidationError.
func (v *Validator) Validate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", entity.NewValidationError(entity.ReasonURLEmpty, "url is empty")
	}
	if len(raw) > v.policy.MaxLength {
		return "", entity.NewValidationError(entity.ReasonURLTooLong,
			fmt.Sprintf("url exceeds %d characters", v.policy.MaxLength))
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", entity.NewValidationError(entity.ReasonInvalidFormat, "url is not a valid absolute url")
	}

	host := normalizeHost(u.Hostname())
	if host != "" {
		if err := checkHost(host); err != nil {
			return "", err
		}
	}

	scheme := strings.ToLower(u.Scheme)
	if _, ok := unsafeSchemes[scheme]; ok {
		return "", entity.NewValidationError(entity.ReasonUnsafeProtocol,
			fmt.Sprintf("protocol %q is not allowed", scheme))
	}
	if _, ok := allowedSchemes[scheme]; !ok {
		return "", entity.NewValidationError(entity.ReasonInvalidProtocol,
			fmt.Sprintf("protocol %q is not supported, use http or https", scheme))
	}

	if host == "" || u.Opaque != "" {
		return "", entity.NewValidationError(entity.ReasonInvalidFormat, "url has no host")
	}

	if v.isShortener(host) {
		return "", entity.NewValidationError(entity.ReasonShortenerChain,
			fmt.Sprintf("urls of shortening service %q are not allowed", host))
	}

	if len(u.EscapedPath()) > v.policy.MaxPathLength {
		return "", entity.NewValidationError(entity.ReasonPathTooLong,
			fmt.Sprintf("path exceeds %d characters", v.policy.MaxPathLength))
	}
	if len(u.RawQuery) > v.policy.MaxQueryLength {
		return "", entity.NewValidationError(entity.ReasonQueryTooLong,
			fmt.Sprintf("query exceeds %d characters", v.policy.MaxQueryLength))
	}

	return canonicalize(u, scheme, host), nil
}

func checkHost(host string) error {
	if _, ok := blockedHostnames[host]; ok || strings.HasSuffix(host, ".localhost") {
		return entity.NewValidationError(entity.ReasonBlockedHostname,
			fmt.Sprintf("host %q is not allowed", host))
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	addr = addr.WithZone("").Unmap()

	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return entity.NewValidationError(entity.ReasonPrivateIP,
				fmt.Sprintf("address %q is private or reserved", host))
		}
	}

	return nil
}

func (v *Validator) isShortener(host string) bool {
	for _, d := range v.shorteners {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func canonicalize(u *url.URL, scheme, host string) string {
	c := *u
	c.Scheme = scheme

	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}

	hostPart := host
	if strings.Contains(host, ":") {
		hostPart = "[" + host + "]"
	}
	if port != "" {
		hostPart += ":" + port
	}
	c.Host = hostPart

	if c.Path == "" && c.RawPath == "" {
		c.Path = "/"
	}

	return c.String()
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}
