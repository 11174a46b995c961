package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/canonjson"
	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

// Key layout. Queue scores are scheduledAt in unix milliseconds.
const (
	keyWebhook       = "webhook:"          // + id
	keyWebhookUser   = "webhook:user:"     // + userId, set of ids
	keyWebhookFails  = "webhook:fails:"    // + id, atomic counter
	keyDelivery      = "delivery:"         // + id
	keyQueue         = "delivery:queue:"   // + userId, sorted set
	keyQueueUsers    = "delivery:users"    // set
	keyInflight      = "delivery:inflight" // list
	keyDeliveryLog   = "delivery:log:"     // + webhookId, capped list
	keyDeliveryOnce  = "delivery:once:"    // + eventId:webhookId
	keyDeliveryClaim = "delivery:claim:"   // + deliveryId
)

// deliveryLogCap bounds the per-webhook archive.
const deliveryLogCap = 100

// archivedDeliveryTTL keeps terminal delivery records readable for a
// day after they leave the queues.
const archivedDeliveryTTL = 24 * time.Hour

// MinSecretLength is the shortest accepted webhook secret.
const MinSecretLength = 32

// Store persists webhooks and deliveries over the KV substrate.
type Store struct {
	kv    kv.Store
	clock clockwork.Clock
}

// NewStore builds a Store. A nil clock means the real clock.
func NewStore(store kv.Store, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{kv: store, clock: clock}
}

// CreateWebhook validates and persists a new subscription. Missing id,
// status, and option fields take defaults.
func (s *Store) CreateWebhook(ctx context.Context, w *Webhook) error {
	if len(w.Secret) < MinSecretLength {
		return fault.New(fault.ErrMalformedInput, "webhook.create", w.Name,
			fmt.Errorf("secret shorter than %d bytes", MinSecretLength))
	}
	if w.URL == "" || w.UserID == "" {
		return fault.New(fault.ErrMalformedInput, "webhook.create", w.Name,
			fmt.Errorf("url and userId are required"))
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = StatusActive
	}
	w.Options = w.Options.withDefaults()
	now := s.clock.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	if err := s.saveWebhook(ctx, w); err != nil {
		return err
	}
	if _, err := s.kv.SAdd(ctx, keyWebhookUser+w.UserID, w.ID); err != nil {
		return err
	}
	return nil
}

// GetWebhook loads one subscription; absence is kv.ErrAbsent.
func (s *Store) GetWebhook(ctx context.Context, id string) (*Webhook, error) {
	raw, ok, err := s.kv.Get(ctx, keyWebhook+id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("webhook %s: %w", id, kv.ErrAbsent)
	}
	var w Webhook
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fault.New(fault.ErrInternal, "webhook.get", id, err)
	}
	return &w, nil
}

// UpdateWebhook persists mutations and stamps updatedAt.
func (s *Store) UpdateWebhook(ctx context.Context, w *Webhook) error {
	w.UpdatedAt = s.clock.Now()
	return s.saveWebhook(ctx, w)
}

// DeleteWebhook removes the subscription and its user-set membership.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	w, err := s.GetWebhook(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.kv.SRem(ctx, keyWebhookUser+w.UserID, id); err != nil {
		return err
	}
	if _, err := s.kv.Delete(ctx, keyWebhook+id); err != nil {
		return err
	}
	_, err = s.kv.Delete(ctx, keyWebhookFails+id)
	return err
}

// ListWebhooks returns every subscription owned by the user.
func (s *Store) ListWebhooks(ctx context.Context, userID string) ([]*Webhook, error) {
	ids, err := s.kv.SMembers(ctx, keyWebhookUser+userID)
	if err != nil {
		return nil, err
	}
	hooks := make([]*Webhook, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWebhook(ctx, id)
		if err != nil {
			// Set membership can outlive the record briefly; skip.
			continue
		}
		hooks = append(hooks, w)
	}
	return hooks, nil
}

func (s *Store) saveWebhook(ctx context.Context, w *Webhook) error {
	raw, err := canonjson.Marshal(w)
	if err != nil {
		return fault.New(fault.ErrInternal, "webhook.save", w.ID, err)
	}
	return s.kv.Set(ctx, keyWebhook+w.ID, string(raw), 0)
}

// RecordDeliverySuccess resets the consecutive-failure streak and bumps
// totals.
func (s *Store) RecordDeliverySuccess(ctx context.Context, webhookID string) error {
	if err := s.kv.Set(ctx, keyWebhookFails+webhookID, "0", 0); err != nil {
		return err
	}
	w, err := s.GetWebhook(ctx, webhookID)
	if err != nil {
		return err
	}
	w.Totals.Delivered++
	w.Totals.Succeeded++
	w.Totals.ConsecutiveFailures = 0
	return s.UpdateWebhook(ctx, w)
}

// RecordDeliveryFailure bumps the streak on an atomic counter; crossing
// the threshold flips the webhook to failed and stamps lastFailureAt,
// after which no new deliveries enqueue.
func (s *Store) RecordDeliveryFailure(ctx context.Context, webhookID string) error {
	streak, err := s.kv.Incr(ctx, keyWebhookFails+webhookID)
	if err != nil {
		return err
	}
	w, err := s.GetWebhook(ctx, webhookID)
	if err != nil {
		return err
	}
	w.Totals.Delivered++
	w.Totals.Failed++
	w.Totals.ConsecutiveFailures = streak
	if streak >= FailureThreshold && w.Status == StatusActive {
		w.Status = StatusFailed
		at := s.clock.Now()
		w.LastFailureAt = &at
	}
	return s.UpdateWebhook(ctx, w)
}

// SaveDelivery persists the delivery record.
func (s *Store) SaveDelivery(ctx context.Context, d *Delivery) error {
	raw, err := canonjson.Marshal(d)
	if err != nil {
		return fault.New(fault.ErrInternal, "delivery.save", d.ID, err)
	}
	return s.kv.Set(ctx, keyDelivery+d.ID, string(raw), 0)
}

// GetDelivery loads one delivery; absence is kv.ErrAbsent.
func (s *Store) GetDelivery(ctx context.Context, id string) (*Delivery, error) {
	raw, ok, err := s.kv.Get(ctx, keyDelivery+id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("delivery %s: %w", id, kv.ErrAbsent)
	}
	var d Delivery
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fault.New(fault.ErrInternal, "delivery.get", id, err)
	}
	return &d, nil
}

// ClaimOnce takes the per-(event, webhook) idempotency claim; false
// means another publish already enqueued this pair.
func (s *Store) ClaimOnce(ctx context.Context, eventID, webhookID string, ttl time.Duration) (bool, error) {
	return s.kv.SetNX(ctx, keyDeliveryOnce+eventID+":"+webhookID, "1", ttl)
}

// Enqueue persists the delivery and registers it in the queue
// structures: the user's scheduledAt-ordered queue, the active-users
// set, and the global in-flight list.
func (s *Store) Enqueue(ctx context.Context, d *Delivery) error {
	if err := s.SaveDelivery(ctx, d); err != nil {
		return err
	}
	if err := s.kv.ZAdd(ctx, keyQueue+d.UserID, scheduleScore(d.ScheduledAt), d.ID); err != nil {
		return err
	}
	if _, err := s.kv.SAdd(ctx, keyQueueUsers, d.UserID); err != nil {
		return err
	}
	if _, err := s.kv.RPush(ctx, keyInflight, d.ID); err != nil {
		return err
	}
	return nil
}

// Requeue re-registers an already in-flight delivery for a later
// attempt.
func (s *Store) Requeue(ctx context.Context, d *Delivery) error {
	if err := s.SaveDelivery(ctx, d); err != nil {
		return err
	}
	return s.kv.ZAdd(ctx, keyQueue+d.UserID, scheduleScore(d.ScheduledAt), d.ID)
}

// QueueUsers returns users with registered queues.
func (s *Store) QueueUsers(ctx context.Context) ([]string, error) {
	return s.kv.SMembers(ctx, keyQueueUsers)
}

// WebhookUsers returns users owning at least one webhook.
func (s *Store) WebhookUsers(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, keyWebhookUser+"*")
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, k[len(keyWebhookUser):])
	}
	return users, nil
}

// QueueDepth reports how many deliveries are scheduled for one user.
func (s *Store) QueueDepth(ctx context.Context, userID string) (int64, error) {
	return s.kv.ZCard(ctx, keyQueue+userID)
}

// DueDeliveries returns delivery ids scheduled at or before now, in
// scheduledAt order.
func (s *Store) DueDeliveries(ctx context.Context, userID string, now time.Time) ([]string, error) {
	entries, err := s.kv.ZRangeByScore(ctx, keyQueue+userID, 0, scheduleScore(now))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Member)
	}
	return ids, nil
}

// Claim takes the per-delivery work claim so exactly one worker sends
// it. The TTL covers a crashed worker: the reaper reclaims after it
// lapses.
func (s *Store) Claim(ctx context.Context, deliveryID, owner string, ttl time.Duration) (bool, error) {
	return s.kv.SetNX(ctx, keyDeliveryClaim+deliveryID, owner, ttl)
}

// ReleaseClaim drops the work claim after the attempt concludes.
func (s *Store) ReleaseClaim(ctx context.Context, deliveryID string) error {
	_, err := s.kv.Delete(ctx, keyDeliveryClaim+deliveryID)
	return err
}

// Archive finalizes a terminal delivery: into the capped per-webhook
// log, out of the queue structures, record retained with a TTL.
func (s *Store) Archive(ctx context.Context, d *Delivery) error {
	raw, err := canonjson.Marshal(d)
	if err != nil {
		return fault.New(fault.ErrInternal, "delivery.archive", d.ID, err)
	}
	logKey := keyDeliveryLog + d.WebhookID
	if _, err := s.kv.LPush(ctx, logKey, string(raw)); err != nil {
		return err
	}
	if err := s.kv.LTrim(ctx, logKey, 0, deliveryLogCap-1); err != nil {
		return err
	}
	if _, err := s.kv.ZRem(ctx, keyQueue+d.UserID, d.ID); err != nil {
		return err
	}
	if _, err := s.kv.LRem(ctx, keyInflight, 0, d.ID); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, keyDelivery+d.ID, string(raw), archivedDeliveryTTL); err != nil {
		return err
	}
	return nil
}

// DeliveryLog returns the archived deliveries for a webhook, newest
// first.
func (s *Store) DeliveryLog(ctx context.Context, webhookID string, limit int64) ([]*Delivery, error) {
	if limit <= 0 || limit > deliveryLogCap {
		limit = deliveryLogCap
	}
	raws, err := s.kv.LRange(ctx, keyDeliveryLog+webhookID, 0, limit-1)
	if err != nil {
		return nil, err
	}
	out := make([]*Delivery, 0, len(raws))
	for _, raw := range raws {
		var d Delivery
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fault.New(fault.ErrInternal, "delivery.log", webhookID, err)
		}
		out = append(out, &d)
	}
	return out, nil
}

// InflightIDs snapshots the global in-flight list for the reaper.
func (s *Store) InflightIDs(ctx context.Context) ([]string, error) {
	return s.kv.LRange(ctx, keyInflight, 0, -1)
}

func scheduleScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}
