package truststore

import (
	"context"
	"strconv"
	"time"

	"github.com/oriys/novacore/kv"
)

// Vetoes tallies refused-suggestion events per user and window label
// (for example "daily" or an ISO week). The tally informs how assertive
// later suggestions may be.
type Vetoes struct {
	kv kv.Store
}

// NewVetoes builds the veto tally.
func NewVetoes(store kv.Store) *Vetoes {
	return &Vetoes{kv: store}
}

func vetoKey(userID, window string) string {
	return "veto:" + userID + ":" + window
}

// Track counts one veto and returns the post-increment tally. The
// first write in a window owns the TTL.
func (v *Vetoes) Track(ctx context.Context, userID, window string, ttl time.Duration) (int64, error) {
	key := vetoKey(userID, window)
	count, err := v.kv.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 && ttl > 0 {
		if err := v.kv.Expire(ctx, key, ttl); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Count reads the current tally; an absent window is zero.
func (v *Vetoes) Count(ctx context.Context, userID, window string) (int64, error) {
	raw, ok, err := v.kv.Get(ctx, vetoKey(userID, window))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
