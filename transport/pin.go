package transport

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"encoding/base64"
	"fmt"
)

// PinMismatchError reports that pins were configured and the server's
// leaf certificate matched none of them.
type PinMismatchError struct {
	Hostname string
	// Presented is the base64 SPKI SHA-256 the server offered.
	Presented string
}

func (e *PinMismatchError) Error() string {
	return fmt.Sprintf("certificate pin mismatch for %s (presented %s)", e.Hostname, e.Presented)
}

// SPKIFingerprint computes the base64 SHA-256 of a certificate's
// SubjectPublicKeyInfo, the form pins are configured in.
func SPKIFingerprint(rawSPKI []byte) string {
	sum := sha256.Sum256(rawSPKI)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyPins compares the connection's leaf certificate SPKI hash
// against the pin set in constant time. An empty pin set passes;
// configured pins with no match fail.
func VerifyPins(state tls.ConnectionState, pins []string) error {
	if len(pins) == 0 {
		return nil
	}
	if len(state.PeerCertificates) == 0 {
		return &PinMismatchError{Hostname: state.ServerName}
	}
	leaf := state.PeerCertificates[0]
	presented := SPKIFingerprint(leaf.RawSubjectPublicKeyInfo)
	for _, pin := range pins {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(pin)) == 1 {
			return nil
		}
	}
	return &PinMismatchError{Hostname: state.ServerName, Presented: presented}
}
