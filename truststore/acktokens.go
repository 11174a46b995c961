package truststore

import (
	"context"
	"time"

	"github.com/oriys/novacore/kv"
)

// AckTokens issues single-use acknowledgement tokens. Validation is
// consume-on-success: the token is removed atomically with the check,
// so of any number of concurrent validators exactly one wins.
type AckTokens struct {
	kv kv.Store
}

// NewAckTokens builds the token store.
func NewAckTokens(store kv.Store) *AckTokens {
	return &AckTokens{kv: store}
}

func ackKey(token string) string {
	return "ack:" + token
}

// Save stores the token for the user until the TTL lapses.
func (a *AckTokens) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return a.kv.Set(ctx, ackKey(token), userID, ttl)
}

// Validate consumes the token if it exists and belongs to the user.
// The CompareAndDelete both enforces ownership and guarantees single
// use: a stale read of someone else's racing validation loses there.
func (a *AckTokens) Validate(ctx context.Context, token, userID string) (bool, error) {
	return a.kv.CompareAndDelete(ctx, ackKey(token), userID)
}
