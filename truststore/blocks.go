package truststore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/canonjson"
	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

// blockRecord is the stored shape at block:<userId>.
type blockRecord struct {
	UserID       string    `json:"userId"`
	Reason       string    `json:"reason"`
	BlockedAt    time.Time `json:"blockedAt"`
	BlockedUntil time.Time `json:"blockedUntil"`
}

// BlockStatus answers the admission question.
type BlockStatus struct {
	Blocked bool
	Reason  string
	Until   time.Time
}

// Blocks records temporary user blocks. Expiry is delegated to the KV
// TTL; an expired block reads as not blocked.
type Blocks struct {
	kv    kv.Store
	clock clockwork.Clock
}

// NewBlocks builds the block store.
func NewBlocks(store kv.Store, clock clockwork.Clock) *Blocks {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Blocks{kv: store, clock: clock}
}

func blockKey(userID string) string {
	return "block:" + userID
}

// Block blocks the user for the given duration.
func (b *Blocks) Block(ctx context.Context, userID, reason string, ttl time.Duration) error {
	now := b.clock.Now().UTC()
	rec := blockRecord{
		UserID:       userID,
		Reason:       reason,
		BlockedAt:    now,
		BlockedUntil: now.Add(ttl),
	}
	raw, err := canonjson.Marshal(rec)
	if err != nil {
		return fault.New(fault.ErrInternal, "block.write", userID, err)
	}
	return b.kv.Set(ctx, blockKey(userID), string(raw), ttl)
}

// Unblock lifts a block early; unblocking an unblocked user is a no-op.
func (b *Blocks) Unblock(ctx context.Context, userID string) error {
	_, err := b.kv.Delete(ctx, blockKey(userID))
	return err
}

// IsBlocked reports the user's block status.
func (b *Blocks) IsBlocked(ctx context.Context, userID string) (BlockStatus, error) {
	raw, ok, err := b.kv.Get(ctx, blockKey(userID))
	if err != nil {
		return BlockStatus{}, err
	}
	if !ok {
		return BlockStatus{}, nil
	}
	var rec blockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return BlockStatus{}, fault.New(fault.ErrInternal, "block.read", userID, err)
	}
	return BlockStatus{Blocked: true, Reason: rec.Reason, Until: rec.BlockedUntil}, nil
}
