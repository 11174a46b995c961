package urlx

import (
	"net/netip"
	"strconv"
	"strings"
)

// Encoding tags for alternate IPv4 spellings.
const (
	EncodingOctal   = "octal"
	EncodingHex     = "hex"
	EncodingDecimal = "decimal"
	EncodingMixed   = "mixed"
)

// AlternateEncoding is a hostname that claims to be an IPv4 address via
// a non-canonical spelling (octal, hex, or 32-bit integer forms that
// libc-style resolvers still accept).
type AlternateEncoding struct {
	// Decoded is the canonical dotted-quad the hostname decodes to.
	Decoded netip.Addr
	// Encoding is the tag describing the spelling.
	Encoding string
}

// DetectAlternateEncoding reports whether host is a non-canonical IPv4
// spelling, decoding it. Canonical dotted-quads return false; those are
// ordinary IP literals, handled upstream.
func DetectAlternateEncoding(host string) (AlternateEncoding, bool) {
	if _, err := netip.ParseAddr(host); err == nil {
		return AlternateEncoding{}, false
	}

	parts := strings.Split(host, ".")
	switch len(parts) {
	case 1:
		// Single 32-bit integer: decimal 2130706433, hex 0x7f000001,
		// octal 017700000001.
		v, enc, ok := parseIPv4Part(parts[0], 32)
		if !ok || enc == "" {
			return AlternateEncoding{}, false
		}
		return AlternateEncoding{Decoded: addrFromUint32(uint32(v)), Encoding: enc}, true
	case 4:
		// Dotted form where at least one octet uses octal or hex.
		var octets [4]byte
		sawAlternate := false
		encoding := ""
		for i, part := range parts {
			v, enc, ok := parseIPv4Part(part, 8)
			if !ok {
				return AlternateEncoding{}, false
			}
			octets[i] = byte(v)
			if enc != "" {
				sawAlternate = true
				switch {
				case encoding == "":
					encoding = enc
				case encoding != enc:
					encoding = EncodingMixed
				}
			}
		}
		if !sawAlternate {
			return AlternateEncoding{}, false
		}
		return AlternateEncoding{Decoded: netip.AddrFrom4(octets), Encoding: encoding}, true
	default:
		return AlternateEncoding{}, false
	}
}

// parseIPv4Part parses one component, returning its value, the encoding
// tag ("" for plain decimal), and validity. bits caps the value width.
func parseIPv4Part(s string, bits int) (uint64, string, bool) {
	if s == "" {
		return 0, "", false
	}
	max := uint64(1)<<uint(bits) - 1

	switch {
	case strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X"):
		v, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil || v > max {
			return 0, "", false
		}
		return v, EncodingHex, true
	case len(s) > 1 && s[0] == '0':
		v, err := strconv.ParseUint(s, 8, 64)
		if err != nil || v > max {
			return 0, "", false
		}
		return v, EncodingOctal, true
	default:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil || v > max {
			return 0, "", false
		}
		// A 1-3 digit decimal octet is the canonical spelling; larger
		// decimals only make sense as 32-bit forms.
		if bits == 8 {
			return v, "", true
		}
		if len(s) <= 3 {
			return 0, "", false
		}
		return v, EncodingDecimal, true
	}
}

func addrFromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
