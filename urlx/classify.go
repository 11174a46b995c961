package urlx

import (
	"net/netip"
)

// Classification is the finite tag set for IP address ranges. Only
// Public is safe by default; the embedded-transport tags (mapped,
// Teredo, 6to4, translated) defer to the classification of the IPv4
// address they carry.
type Classification string

const (
	LoopbackV4      Classification = "LOOPBACK_V4"
	LoopbackV6      Classification = "LOOPBACK_V6"
	Private10       Classification = "PRIVATE_10"
	Private172      Classification = "PRIVATE_172"
	Private192      Classification = "PRIVATE_192"
	PrivateFC       Classification = "PRIVATE_FC"
	LinkLocalV4     Classification = "LINK_LOCAL_V4"
	LinkLocalV6     Classification = "LINK_LOCAL_V6"
	CarrierGradeNAT Classification = "CARRIER_GRADE_NAT"
	MulticastV4     Classification = "MULTICAST_V4"
	MulticastV6     Classification = "MULTICAST_V6"
	DocumentationV4 Classification = "DOCUMENTATION_V4"
	DocumentationV6 Classification = "DOCUMENTATION_V6"
	Benchmarking    Classification = "BENCHMARKING"
	ThisNetwork     Classification = "THIS_NETWORK"
	Reserved        Classification = "RESERVED"
	Broadcast       Classification = "BROADCAST"
	IETFProtocol    Classification = "IETF_PROTOCOL"
	IPv4Mapped      Classification = "IPV4_MAPPED"
	IPv4Translated  Classification = "IPV4_TRANSLATED"
	Teredo          Classification = "TEREDO"
	SixToFour       Classification = "6TO4"
	Public          Classification = "PUBLIC"
	Unknown         Classification = "UNKNOWN"
)

// v4Range pairs a CIDR with its classification. First match wins, so
// more specific ranges come before the blocks containing them
// (broadcast before 240/4, link-local before any wider aggregate).
type v4Range struct {
	prefix netip.Prefix
	class  Classification
}

var v4Table = []v4Range{
	{netip.MustParsePrefix("127.0.0.0/8"), LoopbackV4},
	{netip.MustParsePrefix("10.0.0.0/8"), Private10},
	{netip.MustParsePrefix("172.16.0.0/12"), Private172},
	{netip.MustParsePrefix("192.168.0.0/16"), Private192},
	{netip.MustParsePrefix("169.254.0.0/16"), LinkLocalV4},
	{netip.MustParsePrefix("100.64.0.0/10"), CarrierGradeNAT},
	{netip.MustParsePrefix("224.0.0.0/4"), MulticastV4},
	{netip.MustParsePrefix("192.0.2.0/24"), DocumentationV4},
	{netip.MustParsePrefix("198.51.100.0/24"), DocumentationV4},
	{netip.MustParsePrefix("203.0.113.0/24"), DocumentationV4},
	{netip.MustParsePrefix("198.18.0.0/15"), Benchmarking},
	{netip.MustParsePrefix("0.0.0.0/8"), ThisNetwork},
	{netip.MustParsePrefix("255.255.255.255/32"), Broadcast},
	{netip.MustParsePrefix("240.0.0.0/4"), Reserved},
	{netip.MustParsePrefix("192.0.0.0/24"), IETFProtocol},
}

type v6Range struct {
	prefix netip.Prefix
	class  Classification
}

var v6Table = []v6Range{
	{netip.MustParsePrefix("::1/128"), LoopbackV6},
	{netip.MustParsePrefix("::/128"), ThisNetwork},
	{netip.MustParsePrefix("::ffff:0:0/96"), IPv4Mapped},
	// Both embedded-v4 translation prefixes: SIIT (RFC 2765) and
	// NAT64 well-known (RFC 6052). Either form carries the IPv4 in
	// the low 32 bits.
	{netip.MustParsePrefix("::ffff:0:0:0/96"), IPv4Translated},
	{netip.MustParsePrefix("64:ff9b::/96"), IPv4Translated},
	{netip.MustParsePrefix("fe80::/10"), LinkLocalV6},
	{netip.MustParsePrefix("fc00::/7"), PrivateFC},
	{netip.MustParsePrefix("ff00::/8"), MulticastV6},
	{netip.MustParsePrefix("2001:db8::/32"), DocumentationV6},
	{netip.MustParsePrefix("2001::/32"), Teredo},
	{netip.MustParsePrefix("2002::/16"), SixToFour},
}

// Classify returns the range tag for addr. IPv4-in-IPv6 mapped
// addresses classify as IPv4Mapped, not as their embedded range; use
// EmbeddedV4 to recurse.
func Classify(addr netip.Addr) Classification {
	if !addr.IsValid() {
		return Unknown
	}
	if addr.Is4() {
		for _, r := range v4Table {
			if r.prefix.Contains(addr) {
				return r.class
			}
		}
		return Public
	}
	for _, r := range v6Table {
		if r.prefix.Contains(addr) {
			return r.class
		}
	}
	return Public
}

// EmbeddedV4 extracts the IPv4 address carried by a mapped, translated,
// Teredo, or 6to4 IPv6 address. The boolean reports whether the
// classification embeds one.
func EmbeddedV4(addr netip.Addr, class Classification) (netip.Addr, bool) {
	if !addr.Is6() || addr.Is4() {
		return netip.Addr{}, false
	}
	b := addr.As16()
	switch class {
	case IPv4Mapped, IPv4Translated:
		return netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]}), true
	case Teredo:
		// The client IPv4 occupies the last 32 bits, obfuscated by XOR
		// with all-ones (RFC 4380 §4).
		return netip.AddrFrom4([4]byte{b[12] ^ 0xff, b[13] ^ 0xff, b[14] ^ 0xff, b[15] ^ 0xff}), true
	case SixToFour:
		// The IPv4 sits in bits 16..47 (RFC 3056 §2).
		return netip.AddrFrom4([4]byte{b[2], b[3], b[4], b[5]}), true
	default:
		return netip.Addr{}, false
	}
}

// ValidateOptions are the safety toggles. Each unlocks only its own
// class family; every other unsafe class stays unsafe.
type ValidateOptions struct {
	AllowPrivate  bool
	AllowLoopback bool
}

// IPValidationResult carries the verdict for one address.
type IPValidationResult struct {
	// Addr is the validated address.
	Addr netip.Addr
	// Canonical is the normalized text form: dotted-quad for IPv4,
	// RFC 5952 for IPv6.
	Canonical string
	// Class is the range tag.
	Class Classification
	// Embedded is the recursive result for mapped/Teredo/6to4/translated
	// addresses, nil otherwise.
	Embedded *IPValidationResult
	// Safe reports whether transport to this address is permitted under
	// the given options.
	Safe bool
}

// ValidateIP classifies addr and applies the safety toggles. Addresses
// embedding an IPv4 are safe only when the embedded address itself
// classifies Public; the toggles deliberately do not unlock embedded
// private ranges, since those forms exist mainly to smuggle them.
func ValidateIP(addr netip.Addr, opts ValidateOptions) IPValidationResult {
	class := Classify(addr)
	res := IPValidationResult{
		Addr:      addr,
		Canonical: addr.String(),
		Class:     class,
	}

	switch class {
	case Public:
		res.Safe = true
	case Private10, Private172, Private192, PrivateFC:
		res.Safe = opts.AllowPrivate
	case LoopbackV4, LoopbackV6:
		res.Safe = opts.AllowLoopback
	case IPv4Mapped, IPv4Translated, Teredo, SixToFour:
		if embedded, ok := EmbeddedV4(addr, class); ok {
			inner := ValidateIP(embedded, ValidateOptions{})
			res.Embedded = &inner
			res.Safe = inner.Class == Public
		}
	}
	return res
}
