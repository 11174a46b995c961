package guard

import (
	"time"

	"github.com/oriys/novacore/urlx"
)

// Deny reasons. Every denial carries exactly one; class-specific IP
// reasons come from classReason.
const (
	ReasonMalformedURL       = "MALFORMED_URL"
	ReasonUserinfoPresent    = "USERINFO_PRESENT"
	ReasonPortNotAllowed     = "PORT_NOT_ALLOWED"
	ReasonAlternateEncoding  = "ALTERNATE_IP_ENCODING"
	ReasonEmbeddedIP         = "EMBEDDED_IP_IN_HOSTNAME"
	ReasonIDNHomograph       = "IDN_HOMOGRAPH"
	ReasonHostnameBlocked    = "HOSTNAME_BLOCKED"
	ReasonHostnameNotAllowed = "HOSTNAME_NOT_IN_ALLOWLIST"
	ReasonDNSFailed          = "DNS_RESOLUTION_FAILED"
)

// classReason maps an unsafe classification to its deny reason. Embedded
// transports report the family of the IPv4 they carry.
func classReason(res urlx.IPValidationResult) string {
	if res.Embedded != nil {
		return classReason(*res.Embedded)
	}
	switch res.Class {
	case urlx.LoopbackV4, urlx.LoopbackV6:
		return "LOOPBACK_IP"
	case urlx.Private10, urlx.Private172, urlx.Private192, urlx.PrivateFC:
		return "PRIVATE_IP"
	case urlx.LinkLocalV4, urlx.LinkLocalV6:
		return "LINK_LOCAL_IP"
	case urlx.CarrierGradeNAT:
		return "CARRIER_GRADE_NAT_IP"
	case urlx.MulticastV4, urlx.MulticastV6:
		return "MULTICAST_IP"
	case urlx.DocumentationV4, urlx.DocumentationV6:
		return "DOCUMENTATION_IP"
	case urlx.Benchmarking:
		return "BENCHMARKING_IP"
	case urlx.ThisNetwork:
		return "THIS_NETWORK_IP"
	case urlx.Reserved:
		return "RESERVED_IP"
	case urlx.Broadcast:
		return "BROADCAST_IP"
	case urlx.IETFProtocol:
		return "IETF_PROTOCOL_IP"
	default:
		return "PRIVATE_IP"
	}
}

// CheckResult is one guard step, recorded whether it passed or failed.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

// TransportRequirements pins everything the transport needs so no
// resolution or policy decision happens after the guard: the connection
// goes to ConnectToIP, never to a hostname.
type TransportRequirements struct {
	OriginalURL      string   `json:"originalUrl"`
	ConnectToIP      string   `json:"connectToIp"`
	Port             int      `json:"port"`
	UseTLS           bool     `json:"useTls"`
	Hostname         string   `json:"hostname"`
	RequestPath      string   `json:"requestPath"`
	MaxResponseBytes int64    `json:"maxResponseBytes"`
	ConnectTimeoutMs int64    `json:"connectTimeoutMs"`
	ReadTimeoutMs    int64    `json:"readTimeoutMs"`
	AllowRedirects   bool     `json:"allowRedirects"`
	MaxRedirects     int      `json:"maxRedirects"`
	CertificatePins  []string `json:"certificatePins,omitempty"`
}

// Decision is the guard verdict. Allowed is true iff Transport is
// non-nil; the decision itself is safe to log in full.
type Decision struct {
	Allowed    bool                   `json:"allowed"`
	DenyReason string                 `json:"denyReason,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Checks     []CheckResult          `json:"checks"`
	DurationMs int64                  `json:"durationMs"`
	Timestamp  time.Time              `json:"timestamp"`
	Transport  *TransportRequirements `json:"transport,omitempty"`
}

func (d *Decision) pass(name, details string) {
	d.Checks = append(d.Checks, CheckResult{Name: name, Passed: true, Details: details})
}

func (d *Decision) fail(name, reason, details string) {
	d.Checks = append(d.Checks, CheckResult{Name: name, Passed: false, Details: details})
	d.Allowed = false
	d.DenyReason = reason
	d.Message = details
}
