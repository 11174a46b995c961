// Package guard is the SSRF decision point. Check runs a URL through a
// fixed pipeline of policy steps — parse, userinfo, port policy,
// alternate-encoding and embedded-IP detection, IDN policy, hostname
// block/allow lists, then IP classification of the literal or of every
// resolved address — and emits a Decision. An allowed decision carries
// TransportRequirements pinned to the single validated IP, which is the
// anti-rebinding contract: the transport connects to that IP and never
// resolves again.
package guard

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/log"
	"github.com/oriys/novacore/urlx"
)

// DecisionRecorder receives one observation per guard decision. The
// metrics registry implements it; nil disables recording.
type DecisionRecorder interface {
	GuardDecision(allowed bool, reason string)
}

// Config is the guard policy. The zero value denies almost everything;
// DefaultConfig supplies the restrictive production defaults.
type Config struct {
	// AllowPrivateIPs unlocks the private class family only.
	AllowPrivateIPs bool
	// AllowLoopback unlocks the loopback class family only.
	AllowLoopback bool
	// AllowUserinfo permits user:pass@host URLs.
	AllowUserinfo bool
	// BlockIDN denies internationalized hostnames.
	BlockIDN bool
	// DetectAlternateEncodings denies octal/hex/decimal IP spellings.
	DetectAlternateEncodings bool
	// DetectEmbeddedIPs denies hostnames embedding a dotted IPv4.
	DetectEmbeddedIPs bool
	// AllowedPorts is the port allowlist; empty means any port.
	AllowedPorts []int
	// BlockedHostnames are case-insensitive suffix patterns ("foo"
	// matches "foo" and "sub.foo").
	BlockedHostnames []string
	// AllowedHostnames, when non-empty, restricts targets to matching
	// suffixes.
	AllowedHostnames []string

	MaxResponseBytes int64
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	AllowRedirects   bool
	MaxRedirects     int
	// CertificatePins are base64 SPKI SHA-256 pins enforced by the
	// transport.
	CertificatePins []string

	DNSTimeout time.Duration
	// DNSCacheTTLCeiling bounds how long a resolution is reused.
	DNSCacheTTLCeiling time.Duration
}

// DefaultConfig returns the restrictive defaults: public IPs only,
// ports 80/443, detection features on, metadata and internal hostnames
// blocked.
func DefaultConfig() Config {
	return Config{
		DetectAlternateEncodings: true,
		DetectEmbeddedIPs:        true,
		AllowedPorts:             []int{80, 443},
		BlockedHostnames:         DefaultBlockedHostnames(),
		MaxResponseBytes:         1 << 20,
		ConnectTimeout:           5 * time.Second,
		ReadTimeout:              10 * time.Second,
		MaxRedirects:             3,
		DNSTimeout:               5 * time.Second,
		DNSCacheTTLCeiling:       5 * time.Minute,
	}
}

// DefaultBlockedHostnames covers cloud metadata endpoints and common
// internal naming conventions.
func DefaultBlockedHostnames() []string {
	return []string{
		"metadata.google.internal",
		"metadata",
		"instance-data",
		"localhost",
		"localhost.localdomain",
		"internal",
		"intranet",
		"corp",
		"home",
		"lan",
		"local",
	}
}

// Guard evaluates URLs against the policy. Construct with New; the
// zero value is not usable.
type Guard struct {
	cfg      Config
	resolver Resolver
	clock    clockwork.Clock
	logger   *log.Logger
	rec      DecisionRecorder
}

// Options are the injectable collaborators.
type Options struct {
	// Store backs the DNS cache; nil disables caching.
	Store kv.Store
	// Resolver defaults to the stdlib resolver.
	Resolver Resolver
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger defaults to a no-op logger.
	Logger *log.Logger
	// Metrics is optional.
	Metrics DecisionRecorder
}

// New builds a Guard.
func New(cfg Config, opts Options) *Guard {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = &NetResolver{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Guard{
		cfg: cfg,
		resolver: &cachingResolver{
			next:    resolver,
			store:   opts.Store,
			ceiling: cfg.DNSCacheTTLCeiling,
			timeout: cfg.DNSTimeout,
		},
		clock:  clock,
		logger: log.OrNop(opts.Logger).Child(log.Context{Component: "guard"}),
		rec:    opts.Metrics,
	}
}

// Check evaluates rawURL. The returned decision always carries the full
// check trail and is side-effect-free apart from DNS cache writes.
func (g *Guard) Check(ctx context.Context, rawURL string) Decision {
	start := g.clock.Now()
	decision := Decision{Allowed: true, Timestamp: start}

	parsed, err := urlx.Parse(rawURL)
	if err != nil {
		decision.fail("parse", ReasonMalformedURL, "URL could not be parsed")
		return g.finish(rawURL, start, decision)
	}
	decision.pass("parse", parsed.Scheme+"://"+parsed.Hostname)

	if parsed.Userinfo != "" && !g.cfg.AllowUserinfo {
		decision.fail("userinfo", ReasonUserinfoPresent, "userinfo is not allowed in outbound URLs")
		return g.finish(rawURL, start, decision)
	}
	decision.pass("userinfo", "")

	port := parsed.EffectivePort()
	if len(g.cfg.AllowedPorts) > 0 && !containsInt(g.cfg.AllowedPorts, port) {
		decision.fail("port_policy", ReasonPortNotAllowed, fmt.Sprintf("port %d is not in the allowlist", port))
		return g.finish(rawURL, start, decision)
	}
	decision.pass("port_policy", fmt.Sprintf("port %d", port))

	if g.cfg.DetectAlternateEncodings && !parsed.IsIPLiteral {
		if enc, found := urlx.DetectAlternateEncoding(parsed.Hostname); found {
			decision.fail("alternate_encoding", ReasonAlternateEncoding,
				fmt.Sprintf("hostname is a %s encoding of %s", enc.Encoding, enc.Decoded))
			return g.finish(rawURL, start, decision)
		}
	}
	decision.pass("alternate_encoding", "")

	if g.cfg.DetectEmbeddedIPs && !parsed.IsIPLiteral {
		if ip, found := urlx.DetectEmbeddedIP(parsed.Hostname); found {
			decision.fail("embedded_ip", ReasonEmbeddedIP,
				fmt.Sprintf("hostname embeds %s", ip))
			return g.finish(rawURL, start, decision)
		}
	}
	decision.pass("embedded_ip", "")

	if parsed.IsIDN && g.cfg.BlockIDN {
		decision.fail("idn", ReasonIDNHomograph, "internationalized hostnames are blocked")
		return g.finish(rawURL, start, decision)
	}
	decision.pass("idn", "")

	if pattern, blocked := matchSuffix(g.cfg.BlockedHostnames, parsed.Hostname); blocked {
		decision.fail("hostname_blocklist", ReasonHostnameBlocked,
			fmt.Sprintf("hostname matches blocked pattern %q", pattern))
		return g.finish(rawURL, start, decision)
	}
	decision.pass("hostname_blocklist", "")

	if len(g.cfg.AllowedHostnames) > 0 {
		if _, allowed := matchSuffix(g.cfg.AllowedHostnames, parsed.Hostname); !allowed {
			decision.fail("hostname_allowlist", ReasonHostnameNotAllowed,
				"hostname is not in the allowlist")
			return g.finish(rawURL, start, decision)
		}
	}
	decision.pass("hostname_allowlist", "")

	toggles := urlx.ValidateOptions{
		AllowPrivate:  g.cfg.AllowPrivateIPs,
		AllowLoopback: g.cfg.AllowLoopback,
	}

	var connectTo netip.Addr
	if parsed.IsIPLiteral {
		res := urlx.ValidateIP(parsed.IP, toggles)
		if !res.Safe {
			decision.fail("ip_literal", classReason(res),
				fmt.Sprintf("address %s classified %s", res.Canonical, res.Class))
			return g.finish(rawURL, start, decision)
		}
		decision.pass("ip_literal", fmt.Sprintf("%s classified %s", res.Canonical, res.Class))
		connectTo = res.Addr
	} else {
		addrs, _, err := g.resolver.Resolve(ctx, parsed.Hostname)
		if err != nil {
			decision.fail("dns_resolution", ReasonDNSFailed, "hostname did not resolve")
			return g.finish(rawURL, start, decision)
		}
		decision.pass("dns_resolution", fmt.Sprintf("%d addresses", len(addrs)))

		// Every address must be safe: a mixed answer is treated as
		// hostile, never salvaged by picking the safe subset.
		results := make([]urlx.IPValidationResult, 0, len(addrs))
		for _, addr := range addrs {
			res := urlx.ValidateIP(addr, toggles)
			if !res.Safe {
				decision.fail("ip_classification", classReason(res),
					fmt.Sprintf("resolved address %s classified %s", res.Canonical, res.Class))
				return g.finish(rawURL, start, decision)
			}
			results = append(results, res)
		}
		sort.Slice(results, func(i, j int) bool {
			return results[i].Canonical < results[j].Canonical
		})
		decision.pass("ip_classification", fmt.Sprintf("pinned %s", results[0].Canonical))
		connectTo = results[0].Addr
	}

	decision.Transport = &TransportRequirements{
		OriginalURL:      rawURL,
		ConnectToIP:      connectTo.String(),
		Port:             port,
		UseTLS:           parsed.Scheme == "https",
		Hostname:         parsed.Hostname,
		RequestPath:      parsed.RequestPath(),
		MaxResponseBytes: g.cfg.MaxResponseBytes,
		ConnectTimeoutMs: g.cfg.ConnectTimeout.Milliseconds(),
		ReadTimeoutMs:    g.cfg.ReadTimeout.Milliseconds(),
		AllowRedirects:   g.cfg.AllowRedirects,
		MaxRedirects:     g.cfg.MaxRedirects,
		CertificatePins:  g.cfg.CertificatePins,
	}
	return g.finish(rawURL, start, decision)
}

func (g *Guard) finish(rawURL string, start time.Time, decision Decision) Decision {
	decision.DurationMs = g.clock.Since(start).Milliseconds()
	if g.rec != nil {
		g.rec.GuardDecision(decision.Allowed, decision.DenyReason)
	}
	if decision.Allowed {
		g.logger.Debug("guard allowed", map[string]any{
			"url": rawURL, "checks": len(decision.Checks),
		})
	} else {
		g.logger.Info("guard denied", map[string]any{
			"url": rawURL, "reason": decision.DenyReason,
		})
	}
	return decision
}

// matchSuffix matches hostname against suffix patterns: a pattern
// matches itself and any subdomain of itself, case-insensitively.
func matchSuffix(patterns []string, hostname string) (string, bool) {
	host := strings.ToLower(hostname)
	for _, p := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(p))
		if pattern == "" {
			continue
		}
		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return p, true
		}
	}
	return "", false
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
