// Package truststore holds the small trust records admission control
// reads: rate-limit counters, conversation sessions, single-use ack
// tokens, user blocks, veto tallies, and the audit trail. Every record
// is subject-keyed and TTL'd in the KV store; each is written by the
// component that observes the behavior and read at admission time.
package truststore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

// RateResult is one increment's view of the window.
type RateResult struct {
	// Count is this request's position in the window, strictly 1..N.
	Count int64
	// ResetsAt is when the window rolls over.
	ResetsAt time.Time
}

// RateLimit counts requests per subject in fixed windows. The bucket
// index is part of the key, so a rollover starts a fresh counter and
// the TTL garbage-collects the old one.
type RateLimit struct {
	kv    kv.Store
	clock clockwork.Clock
}

// NewRateLimit builds a rate limiter. A nil clock means the real clock.
func NewRateLimit(store kv.Store, clock clockwork.Clock) *RateLimit {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimit{kv: store, clock: clock}
}

// Increment counts one request against the subject's current window.
// Windows are whole seconds; anything shorter would truncate to a zero
// bucket divisor.
func (r *RateLimit) Increment(ctx context.Context, subject string, window time.Duration) (RateResult, error) {
	if window < time.Second {
		return RateResult{}, fmt.Errorf("rate window %s below one second: %w", window, fault.ErrMalformedInput)
	}
	now := r.clock.Now()
	bucket := now.Unix() / int64(window.Seconds())
	key := fmt.Sprintf("rate:%s:%s", subject, strconv.FormatInt(bucket, 10))

	count, err := r.kv.Incr(ctx, key)
	if err != nil {
		return RateResult{}, err
	}
	if count == 1 {
		// First write owns the TTL; a lost Expire means the counter
		// lives one extra window, never that counts leak across windows
		// (the bucket index changes).
		if err := r.kv.Expire(ctx, key, window); err != nil {
			return RateResult{}, err
		}
	}
	resetsAt := time.Unix((bucket+1)*int64(window.Seconds()), 0).UTC()
	return RateResult{Count: count, ResetsAt: resetsAt}, nil
}
