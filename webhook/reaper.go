package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/log"
)

// Reaper reclaims deliveries stranded in_progress by a crashed worker.
// A delivery is stale once its last attempt started more than twice the
// webhook timeout ago and no live work claim remains.
type Reaper struct {
	store    *Store
	clock    clockwork.Clock
	logger   *log.Logger
	interval time.Duration
}

// NewReaper builds a Reaper. interval <= 0 defaults to 30s.
func NewReaper(store *Store, clock clockwork.Clock, logger *log.Logger, interval time.Duration) *Reaper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reaper{
		store:    store,
		clock:    clock,
		logger:   log.OrNop(logger).Child(log.Context{Component: "webhook-reaper"}),
		interval: interval,
	}
}

// Run scans until the context ends.
func (r *Reaper) Run(ctx context.Context) error {
	for {
		if n, err := r.ReapOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("reap pass failed", map[string]any{"error": err.Error()})
		} else if n > 0 {
			r.logger.Info("reclaimed stale deliveries", map[string]any{"count": n})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(r.interval):
		}
	}
}

// ReapOnce scans the in-flight list and returns how many deliveries it
// reclaimed to pending.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	ids, err := r.store.InflightIDs(ctx)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	now := r.clock.Now()
	for _, id := range ids {
		d, err := r.store.GetDelivery(ctx, id)
		if err != nil {
			if errors.Is(err, kv.ErrAbsent) {
				_, _ = r.store.kv.LRem(ctx, keyInflight, 0, id)
				continue
			}
			return reclaimed, err
		}
		if d.Status != DeliveryInProgress || d.AttemptedAt == nil {
			continue
		}

		hook, err := r.store.GetWebhook(ctx, d.WebhookID)
		if err != nil {
			continue
		}
		staleAfter := 2 * time.Duration(hook.Options.TimeoutMs) * time.Millisecond
		if now.Sub(*d.AttemptedAt) < staleAfter {
			continue
		}
		// A live claim means a slow worker is still on it.
		claimed, err := r.store.kv.Exists(ctx, keyDeliveryClaim+d.ID)
		if err != nil || claimed {
			continue
		}

		d.Status = DeliveryPending
		d.ScheduledAt = now
		if err := r.store.Requeue(ctx, d); err != nil {
			return reclaimed, err
		}
		reclaimed++
		r.logger.Warn("delivery reclaimed", map[string]any{
			"deliveryId": d.ID, "webhookId": d.WebhookID, "attempt": d.Attempt,
		})
	}
	return reclaimed, nil
}
