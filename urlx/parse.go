// Package urlx parses outbound URLs and classifies IP addresses for the
// SSRF guard. The parser normalizes the hostname to lowercased,
// punycoded ASCII and flags every property the guard's policy steps key
// on: userinfo, IP literals, alternate IP encodings, and embedded IPs.
// The validator classifies IPv4 and IPv6 addresses against fixed range
// tables; only PUBLIC is safe by default.
package urlx

import (
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/oriys/novacore/fault"
)

// ParsedURL is the normalized form handed to the guard. Hostname is the
// authoritative ASCII form; the raw input is never consulted downstream.
type ParsedURL struct {
	Scheme   string
	Userinfo string
	// Hostname is lowercased and punycoded ASCII.
	Hostname string
	// IsIDN reports that the original hostname contained non-ASCII
	// labels converted via Punycode.
	IsIDN bool
	// IsIPLiteral reports that the hostname is an IP address.
	IsIPLiteral bool
	// IP is the parsed literal when IsIPLiteral.
	IP netip.Addr
	// IPVersion is 4 or 6 when IsIPLiteral, 0 otherwise.
	IPVersion int
	// Port is 0 when the URL carries none.
	Port     int
	Path     string
	Query    string
	Fragment string
}

// EffectivePort returns the explicit port or the scheme default.
func (p *ParsedURL) EffectivePort() int {
	if p.Port != 0 {
		return p.Port
	}
	if p.Scheme == "https" {
		return 443
	}
	return 80
}

// RequestPath returns the path and query as sent on the wire.
func (p *ParsedURL) RequestPath() string {
	path := p.Path
	if path == "" {
		path = "/"
	}
	if p.Query != "" {
		path += "?" + p.Query
	}
	return path
}

// Parse normalizes a raw URL. Only http and https pass the outer
// boundary; anything else fails MALFORMED_INPUT.
func Parse(raw string) (*ParsedURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fault.New(fault.ErrMalformedInput, "urlx.parse", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fault.New(fault.ErrMalformedInput, "urlx.parse", raw, nil)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fault.New(fault.ErrMalformedInput, "urlx.parse", raw, nil)
	}

	parsed := &ParsedURL{
		Scheme:   scheme,
		Path:     u.EscapedPath(),
		Query:    u.RawQuery,
		Fragment: u.Fragment,
	}

	if u.User != nil {
		parsed.Userinfo = u.User.String()
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return nil, fault.New(fault.ErrMalformedInput, "urlx.parse", raw, err)
		}
		parsed.Port = port
	}

	// IP literal detection before IDN conversion: brackets are already
	// stripped by Hostname(), zone ids survive for link-local v6.
	if addr, err := netip.ParseAddr(host); err == nil {
		parsed.Hostname = addr.WithZone("").String()
		parsed.IsIPLiteral = true
		parsed.IP = addr.WithZone("")
		if addr.Is4() {
			parsed.IPVersion = 4
		} else {
			parsed.IPVersion = 6
		}
		return parsed, nil
	}

	ascii := host
	if !isASCII(host) {
		converted, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return nil, fault.New(fault.ErrMalformedInput, "urlx.parse", raw, err)
		}
		ascii = converted
		parsed.IsIDN = true
	}
	parsed.Hostname = ascii

	return parsed, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
