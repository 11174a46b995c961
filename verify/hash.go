package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeClaim collapses a claim to its canonical text: trimmed,
// internal whitespace runs collapsed to single spaces, lowercased.
// Claims equal under this normalization share one cache entry.
func NormalizeClaim(claim string) string {
	return strings.ToLower(strings.Join(strings.Fields(claim), " "))
}

// ClaimHash is the hex SHA-256 of the normalized claim, the verify:v1
// cache key suffix.
func ClaimHash(claim string) string {
	sum := sha256.Sum256([]byte(NormalizeClaim(claim)))
	return hex.EncodeToString(sum[:])
}
