// Package flags implements the three feature-flag layers: static
// capabilities frozen at startup, dynamic runtime-mutable values cached
// over the KV store, and per-user bucketed rollouts with a stable hash.
//
// Static flags gate the protections themselves (web fetch, verification,
// cert validation) and default restrictive. Dynamic flags tune behavior
// at runtime without a deploy. Per-user flags stage rollouts; evaluation
// is a pure function of the user descriptor and the compiled-in
// definitions, so two processes always agree.
package flags

// StaticConfig is the startup input for the static layer.
type StaticConfig struct {
	WebFetchEnabled     bool
	VerificationEnabled bool
	AllowPrivateIPs     bool
	AllowLocalhost      bool
	ValidateCerts       bool
	WebhooksEnabled     bool
	RemindersEnabled    bool
}

// Static holds boolean capabilities computed once at startup. Values are
// read-only after construction; callers must not retain mutable views.
type Static struct {
	webFetchEnabled     bool
	verificationEnabled bool
	allowPrivateIPs     bool
	allowLocalhost      bool
	validateCerts       bool
	webhooksEnabled     bool
	remindersEnabled    bool
}

// NewStatic freezes the static capability set from configuration.
func NewStatic(cfg StaticConfig) *Static {
	return &Static{
		webFetchEnabled:     cfg.WebFetchEnabled,
		verificationEnabled: cfg.VerificationEnabled,
		allowPrivateIPs:     cfg.AllowPrivateIPs,
		allowLocalhost:      cfg.AllowLocalhost,
		validateCerts:       cfg.ValidateCerts,
		webhooksEnabled:     cfg.WebhooksEnabled,
		remindersEnabled:    cfg.RemindersEnabled,
	}
}

// WebFetchEnabled reports whether server-side URL fetching is allowed at all.
func (s *Static) WebFetchEnabled() bool { return s.webFetchEnabled }

// VerificationEnabled reports whether claim verification may fetch sources.
func (s *Static) VerificationEnabled() bool { return s.verificationEnabled }

// AllowPrivateIPs reports whether the guard admits RFC 1918 and ULA targets.
func (s *Static) AllowPrivateIPs() bool { return s.allowPrivateIPs }

// AllowLocalhost reports whether the guard admits loopback targets.
func (s *Static) AllowLocalhost() bool { return s.allowLocalhost }

// ValidateCerts reports whether TLS certificate validation is enforced.
func (s *Static) ValidateCerts() bool { return s.validateCerts }

// WebhooksEnabled reports whether outbound webhook delivery runs.
func (s *Static) WebhooksEnabled() bool { return s.webhooksEnabled }

// RemindersEnabled reports whether the reminder scheduler runs.
func (s *Static) RemindersEnabled() bool { return s.remindersEnabled }
