package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/log"
)

// onceTTL bounds how long a (event, webhook) pair stays deduplicated.
const onceTTL = 24 * time.Hour

// Engine fans events out to matching subscriptions as pending
// deliveries. Sending is the worker pool's job.
type Engine struct {
	store  *Store
	clock  clockwork.Clock
	logger *log.Logger
}

// NewEngine builds an Engine.
func NewEngine(store *Store, clock clockwork.Clock, logger *log.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		store:  store,
		clock:  clock,
		logger: log.OrNop(logger).Child(log.Context{Component: "webhook"}),
	}
}

// Publish enqueues one delivery per matching webhook: owner matches,
// status active, event type subscribed, severity at or above the
// webhook's minimum. Idempotent per (event.id, webhookId); republishing
// an event never duplicates deliveries. Returns the created delivery
// ids.
func (e *Engine) Publish(ctx context.Context, ev Event) ([]string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Category == "" {
		ev.Category = CategoryOf(ev.Type)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}

	hooks, err := e.store.ListWebhooks(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}

	var created []string
	for _, w := range hooks {
		if w.Status != StatusActive || !w.Subscribed(ev.Type) {
			continue
		}
		if !severityAdmits(w.Options.MinSeverity, ev.Severity) {
			continue
		}

		won, err := e.store.ClaimOnce(ctx, ev.ID, w.ID, onceTTL)
		if err != nil {
			return created, err
		}
		if !won {
			e.logger.Debug("duplicate publish suppressed", map[string]any{
				"eventId": ev.ID, "webhookId": w.ID,
			})
			continue
		}

		id, err := e.enqueue(ctx, ev, w)
		if err != nil {
			return created, err
		}
		created = append(created, id)
	}
	return created, nil
}

func (e *Engine) enqueue(ctx context.Context, ev Event, w *Webhook) (string, error) {
	deliveryID := uuid.NewString()
	body, signature, err := SignedPayload(w.Secret, deliveryID, ev, w.ID, 1)
	if err != nil {
		return "", err
	}

	now := e.clock.Now()
	d := &Delivery{
		ID:          deliveryID,
		WebhookID:   w.ID,
		EventID:     ev.ID,
		EventType:   ev.Type,
		UserID:      ev.UserID,
		URL:         w.URL,
		Payload:     body,
		Signature:   signature,
		Status:      DeliveryPending,
		Attempt:     1,
		MaxAttempts: 1 + w.Options.MaxRetries,
		CreatedAt:   now,
		ScheduledAt: now,
		AttemptLog:  []AttemptEntry{},
	}
	if err := e.store.Enqueue(ctx, d); err != nil {
		return "", err
	}

	e.logger.Info("delivery enqueued", map[string]any{
		"deliveryId": d.ID, "webhookId": w.ID, "event": ev.Type,
	})
	return d.ID, nil
}
