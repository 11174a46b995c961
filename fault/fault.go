// Package fault provides error classification for novacore.
//
// Every failure crossing a component boundary maps to exactly one of the
// sentinel kinds below. Callers use errors.Is/errors.As for typed
// assertions rather than string matching; the wire code for a kind is
// obtained via Code.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrMalformedInput indicates a parse failure of a URL, claim, event,
	// or configuration value.
	ErrMalformedInput = errors.New("malformed input")

	// ErrPolicyDenied indicates an SSRF guard denial. The wrapping Error
	// carries the sub-reason from the classification tables.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrBackendUnavailable indicates the KV store, DNS, or network is
	// unreachable.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrTimeout indicates a deadline was exceeded on a specific stage.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates a caller-initiated abort.
	ErrCancelled = errors.New("operation cancelled")

	// ErrTooLarge indicates a response body or payload exceeded its cap.
	ErrTooLarge = errors.New("too large")

	// ErrUnauthorized indicates an admission gate rejected missing or
	// invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an admission gate rejected a valid subject
	// (blocked user, revoked session).
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a shape mismatch in the KV store, a duplicate
	// single-use token, or a lost CAS on a delivery.
	ErrConflict = errors.New("conflict")

	// ErrRateLimited indicates a rate limiter reject. The wrapping Error
	// carries RetryAfter seconds.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderError indicates an upstream returned a terminal non-2xx
	// (webhook receiver, verification source).
	ErrProviderError = errors.New("provider error")

	// ErrInternal indicates an unclassified failure. Always logged with
	// the underlying error; never exposed verbatim outside the process.
	ErrInternal = errors.New("internal error")
)

// Error wraps an underlying error with novacore classification.
// It preserves the original error in the chain for inspection via errors.As.
type Error struct {
	// Kind is the sentinel error for classification (e.g., ErrPolicyDenied).
	Kind error
	// Op is the operation that failed (e.g., "kv.get", "guard.check").
	Op string
	// Subject is the key, URL, or id involved, if any.
	Subject string
	// Reason is a machine-readable sub-reason (guard deny reasons,
	// provider status), if any.
	Reason string
	// RetryAfter is the suggested wait in seconds; set for ErrRateLimited.
	RetryAfter int
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Subject != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Subject, e.Kind, e.Err)
	case e.Subject != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Subject, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// New creates a classified error.
func New(kind error, op, subject string, err error) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Subject: subject,
		Err:     err,
	}
}

// Denied creates a POLICY_DENIED error carrying the guard sub-reason.
func Denied(op, subject, reason string) *Error {
	return &Error{
		Kind:    ErrPolicyDenied,
		Op:      op,
		Subject: subject,
		Reason:  reason,
	}
}

// Limited creates a RATE_LIMITED error carrying the retry-after hint.
func Limited(op, subject string, retryAfter int) *Error {
	return &Error{
		Kind:       ErrRateLimited,
		Op:         op,
		Subject:    subject,
		RetryAfter: retryAfter,
	}
}

// FromContext classifies a context error, distinguishing caller cancellation
// from deadline expiry. Returns nil if err is nil.
func FromContext(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return New(ErrTimeout, op, "", err)
	case errors.Is(err, context.Canceled):
		return New(ErrCancelled, op, "", err)
	default:
		return New(ErrInternal, op, "", err)
	}
}

// codes maps each sentinel kind to its wire code.
var codes = map[error]string{
	ErrMalformedInput:     "MALFORMED_INPUT",
	ErrPolicyDenied:       "POLICY_DENIED",
	ErrBackendUnavailable: "BACKEND_UNAVAILABLE",
	ErrTimeout:            "TIMEOUT",
	ErrCancelled:          "CANCELLED",
	ErrTooLarge:           "TOO_LARGE",
	ErrUnauthorized:       "UNAUTHORIZED",
	ErrForbidden:          "FORBIDDEN",
	ErrConflict:           "CONFLICT",
	ErrRateLimited:        "RATE_LIMITED",
	ErrProviderError:      "PROVIDER_ERROR",
	ErrInternal:           "INTERNAL",
}

// Code returns the wire code for an error's kind. Unclassified errors
// report INTERNAL.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for kind, code := range codes {
		if errors.Is(err, kind) {
			return code
		}
	}
	return "INTERNAL"
}

// userMessages are the only strings shown to end users. INTERNAL and
// anything unclassified collapse to a generic sentinel; details stay in
// the logs.
var userMessages = map[string]string{
	"MALFORMED_INPUT":     "invalid input",
	"POLICY_DENIED":       "URL not allowed",
	"BACKEND_UNAVAILABLE": "service temporarily unavailable",
	"TIMEOUT":             "request timed out",
	"CANCELLED":           "request cancelled",
	"TOO_LARGE":           "response too large",
	"UNAUTHORIZED":        "authentication required",
	"FORBIDDEN":           "access denied",
	"CONFLICT":            "conflicting request",
	"RATE_LIMITED":        "too many requests",
	"PROVIDER_ERROR":      "upstream service error",
}

// UserMessage returns the user-visible message for an error. The mapping
// never leaks internal detail.
func UserMessage(err error) string {
	if msg, ok := userMessages[Code(err)]; ok {
		return msg
	}
	return "something went wrong"
}

// RetryAfter extracts the retry-after hint from a RATE_LIMITED error,
// or 0 when absent.
func RetryAfter(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Reason extracts the machine-readable sub-reason, or "" when absent.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
