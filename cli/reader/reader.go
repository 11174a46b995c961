package reader

import (
	"context"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/reminder"
	"github.com/oriys/novacore/webhook"
)

// Reader aggregates read-only views over the webhook store and the
// reminder schedule.
type Reader struct {
	webhooks  *webhook.Store
	reminders *reminder.Scheduler
	clock     clockwork.Clock
}

// New builds a Reader. A nil clock means the real clock.
func New(webhooks *webhook.Store, reminders *reminder.Scheduler, clock clockwork.Clock) *Reader {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reader{webhooks: webhooks, reminders: reminders, clock: clock}
}

// Webhooks lists registered webhooks, all users or one, sorted by id
// for stable output.
func (r *Reader) Webhooks(ctx context.Context, userID string) ([]WebhookSummary, error) {
	users := []string{userID}
	if userID == "" {
		all, err := r.webhooks.WebhookUsers(ctx)
		if err != nil {
			return nil, err
		}
		users = all
	}

	var out []WebhookSummary
	for _, u := range users {
		hooks, err := r.webhooks.ListWebhooks(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, h := range hooks {
			out = append(out, WebhookSummary{
				ID:        h.ID,
				UserID:    h.UserID,
				Name:      h.Name,
				URL:       h.URL,
				Status:    h.Status,
				Events:    len(h.Events),
				Delivered: h.Totals.Delivered,
				Failed:    h.Totals.Failed,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Webhook loads one webhook with its secret stripped.
func (r *Reader) Webhook(ctx context.Context, id string) (*WebhookDetail, error) {
	h, err := r.webhooks.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	return &WebhookDetail{
		ID:            h.ID,
		UserID:        h.UserID,
		Name:          h.Name,
		Description:   h.Description,
		URL:           h.URL,
		Status:        h.Status,
		Events:        h.Events,
		CreatedAt:     h.CreatedAt,
		UpdatedAt:     h.UpdatedAt,
		LastFailureAt: h.LastFailureAt,
		Delivered:     h.Totals.Delivered,
		Failed:        h.Totals.Failed,
		MaxRetries:    h.Options.MaxRetries,
		TimeoutMs:     h.Options.TimeoutMs,
		MinSeverity:   h.Options.MinSeverity,
	}, nil
}

// Deliveries returns the recent delivery log for one webhook, newest
// first.
func (r *Reader) Deliveries(ctx context.Context, webhookID string, limit int64) ([]DeliverySummary, error) {
	records, err := r.webhooks.DeliveryLog(ctx, webhookID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]DeliverySummary, 0, len(records))
	for _, d := range records {
		out = append(out, DeliverySummary{
			ID:          d.ID,
			EventType:   d.EventType,
			Status:      d.Status,
			Attempt:     d.Attempt,
			MaxAttempts: d.MaxAttempts,
			ScheduledAt: d.ScheduledAt,
			AttemptedAt: d.AttemptedAt,
			CompletedAt: d.CompletedAt,
			Error:       d.Error,
		})
	}
	return out, nil
}

// Stats derives the aggregate snapshot.
func (r *Reader) Stats(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{TakenAt: r.clock.Now().UTC()}

	users, err := r.webhooks.WebhookUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		hooks, err := r.webhooks.ListWebhooks(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, h := range hooks {
			snap.Webhooks.Total++
			switch h.Status {
			case webhook.StatusActive:
				snap.Webhooks.Active++
			case webhook.StatusPaused:
				snap.Webhooks.Paused++
			case webhook.StatusDisabled:
				snap.Webhooks.Disabled++
			case webhook.StatusFailed:
				snap.Webhooks.Failed++
			}
		}
	}

	queueUsers, err := r.webhooks.QueueUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range queueUsers {
		depth, err := r.webhooks.QueueDepth(ctx, u)
		if err != nil {
			return nil, err
		}
		snap.Deliveries.Queued += depth
	}
	inflight, err := r.webhooks.InflightIDs(ctx)
	if err != nil {
		return nil, err
	}
	snap.Deliveries.Inflight = len(inflight)

	if r.reminders != nil {
		due, err := r.reminders.DueCount(ctx)
		if err != nil {
			return nil, err
		}
		snap.Reminders.Due = due
	}

	return snap, nil
}
