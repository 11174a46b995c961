package urlx

import (
	"net/netip"
	"strconv"
	"strings"
)

// DetectEmbeddedIP reports whether a non-literal hostname contains four
// consecutive numeric labels forming an IPv4 address, as in
// foo-192-168-1-1.bar or 10.0.0.1.attacker.example. Rebinding services
// use this shape to steer wildcard DNS at internal targets, so the guard
// rejects it by default.
func DetectEmbeddedIP(host string) (netip.Addr, bool) {
	parts := strings.FieldsFunc(host, func(r rune) bool {
		return r == '-' || r == '.' || r == '_'
	})
	if len(parts) < 4 {
		return netip.Addr{}, false
	}
	for i := 0; i+4 <= len(parts); i++ {
		var octets [4]byte
		ok := true
		for j := 0; j < 4; j++ {
			v, valid := parseOctet(parts[i+j])
			if !valid {
				ok = false
				break
			}
			octets[j] = v
		}
		if ok {
			return netip.AddrFrom4(octets), true
		}
	}
	return netip.Addr{}, false
}

func parseOctet(s string) (byte, bool) {
	if s == "" || len(s) > 3 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil || v > 255 {
		return 0, false
	}
	return byte(v), true
}
