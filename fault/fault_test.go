package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_Is(t *testing.T) {
	err := New(ErrConflict, "kv.set", "webhook:w1", errors.New("wrong shape"))

	if !errors.Is(err, ErrConflict) {
		t.Errorf("errors.Is(err, ErrConflict) = false, want true")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("errors.Is(err, ErrTimeout) = true, want false")
	}
}

func TestError_UnwrapPreservesChain(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := New(ErrBackendUnavailable, "kv.get", "dns:v1:example.com", inner)

	if !errors.Is(err, inner) {
		t.Errorf("wrapped chain lost the underlying error")
	}

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatalf("errors.As(*Error) = false, want true")
	}
	if fe.Op != "kv.get" {
		t.Errorf("Op = %q, want %q", fe.Op, "kv.get")
	}
}

func TestError_MessageShape(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "op subject kind err",
			err:  New(ErrConflict, "kv.incr", "rate:u1:60", errors.New("not an integer")),
			want: "kv.incr rate:u1:60: conflict: not an integer",
		},
		{
			name: "op subject kind",
			err:  Denied("guard.check", "http://10.0.0.1/", "PRIVATE_IP"),
			want: "guard.check http://10.0.0.1/: policy denied",
		},
		{
			name: "op kind",
			err:  New(ErrInternal, "verify.run", "", nil),
			want: "verify.run: internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind error
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantKind: ErrTimeout},
		{name: "cancel", err: context.Canceled, wantKind: ErrCancelled},
		{name: "wrapped deadline", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), wantKind: ErrTimeout},
		{name: "other", err: errors.New("boom"), wantKind: ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromContext("transport.do", tt.err)
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("FromContext(%v) kind = %v, want %v", tt.err, got, tt.wantKind)
			}
		})
	}

	if got := FromContext("transport.do", nil); got != nil {
		t.Errorf("FromContext(nil) = %v, want nil", got)
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "policy denied", err: Denied("guard.check", "u", "LOOPBACK_IP"), want: "POLICY_DENIED"},
		{name: "rate limited", err: Limited("rate.increment", "u1", 42), want: "RATE_LIMITED"},
		{name: "bare sentinel", err: ErrTooLarge, want: "TOO_LARGE"},
		{name: "wrapped sentinel", err: fmt.Errorf("read body: %w", ErrTooLarge), want: "TOO_LARGE"},
		{name: "unclassified", err: errors.New("mystery"), want: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}

	if got := Code(nil); got != "" {
		t.Errorf("Code(nil) = %q, want empty", got)
	}
}

func TestUserMessage_NeverLeaksInternal(t *testing.T) {
	internal := New(ErrInternal, "verify.run", "", errors.New("nil pointer in scorer"))
	if got := UserMessage(internal); got != "something went wrong" {
		t.Errorf("UserMessage(internal) = %q, want generic sentinel", got)
	}

	denied := Denied("guard.check", "http://169.254.169.254/", "HOSTNAME_BLOCKED")
	if got := UserMessage(denied); got != "URL not allowed" {
		t.Errorf("UserMessage(denied) = %q, want %q", got, "URL not allowed")
	}
}

func TestLimited_CarriesRetryAfter(t *testing.T) {
	err := Limited("rate.increment", "user:u1", 17)
	if got := RetryAfter(err); got != 17 {
		t.Errorf("RetryAfter = %d, want 17", got)
	}
	if got := RetryAfter(errors.New("plain")); got != 0 {
		t.Errorf("RetryAfter(plain) = %d, want 0", got)
	}
}

func TestReason(t *testing.T) {
	err := Denied("guard.check", "http://0177.0.0.1/", "ALTERNATE_IP_ENCODING")
	if got := Reason(err); got != "ALTERNATE_IP_ENCODING" {
		t.Errorf("Reason = %q, want ALTERNATE_IP_ENCODING", got)
	}
}
