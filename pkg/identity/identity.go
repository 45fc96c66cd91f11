// Package identity resolves the caller key used by the rate limiter
// and audit log: a trust-aware parse of forwarded-client headers
// against a CIDR allow-list.
package identity

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"
)

// Unknown is the sentinel identity returned when no trustworthy
// caller key can be determined. This collapses every header-less or
// untrusted caller into a single bucket; that is a known DoS surface
// when the gateway is reachable without a fronting proxy, and is
// documented rather than silently changed.
const Unknown = "unknown"

const (
	forwardedForHeader = "X-Forwarded-For"
	realIPHeader       = "X-Real-IP"
)

// Extractor resolves the caller key from a request. A nil or empty
// trusted-proxy list disables peer validation entirely (dev-mode
// trust-all).
type Extractor struct {
	trusted []netip.Prefix
}

// New constructs an Extractor with the configured CIDR allow-list.
func New(trusted []netip.Prefix) *Extractor {
	return &Extractor{trusted: trusted}
}

// Extract resolves the caller identity key from r.
func (e *Extractor) Extract(r *http.Request) string {
	if len(e.trusted) > 0 {
		peer, ok := peerAddr(r)
		if !ok || !e.isTrusted(peer) {
			return Unknown
		}
	}

	if fwd := r.Header.Get(forwardedForHeader); fwd != "" && utf8.ValidString(fwd) {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if real := r.Header.Get(realIPHeader); real != "" && utf8.ValidString(real) {
		real = strings.TrimSpace(real)
		if real != "" {
			return real
		}
	}
	return Unknown
}

// isTrusted reports whether peer falls within any configured range.
// IPv4 and IPv6 are never cross-matched; netip.Prefix.Contains
// already enforces this since it compares address families before
// masking.
func (e *Extractor) isTrusted(peer netip.Addr) bool {
	for _, r := range e.trusted {
		if r.Contains(peer) {
			return true
		}
	}
	return false
}

func peerAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// ParseCIDROrIP parses a CIDR range, treating a bare IP as /32 or /128,
// matching the trusted-proxies configuration format.
func ParseCIDROrIP(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
