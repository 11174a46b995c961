package reader

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/reminder"
	"github.com/oriys/novacore/webhook"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestReader(t *testing.T) (*Reader, *webhook.Store, *reminder.Scheduler, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := kv.NewMemory(clock)
	hooks := webhook.NewStore(store, clock)
	reminders := reminder.NewScheduler(reminder.Config{}, store, nil, clock, nil)
	return New(hooks, reminders, clock), hooks, reminders, clock
}

func seedWebhook(t *testing.T, hooks *webhook.Store, id, userID, status string) *webhook.Webhook {
	t.Helper()
	h := &webhook.Webhook{
		ID:     id,
		UserID: userID,
		Name:   "hook " + id,
		URL:    "https://consumer.example.com/" + id,
		Secret: testSecret,
		Events: []string{"goal.completed", "quest.completed"},
	}
	require.NoError(t, hooks.CreateWebhook(t.Context(), h))
	if status != "" && status != webhook.StatusActive {
		h.Status = status
		require.NoError(t, hooks.UpdateWebhook(t.Context(), h))
	}
	return h
}

func TestWebhooksListsAcrossUsers(t *testing.T) {
	r, hooks, _, _ := newTestReader(t)
	seedWebhook(t, hooks, "wh-b", "user-2", webhook.StatusPaused)
	seedWebhook(t, hooks, "wh-a", "user-1", "")

	all, err := r.Webhooks(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "wh-a", all[0].ID, "sorted by id")
	assert.Equal(t, "wh-b", all[1].ID)
	assert.Equal(t, webhook.StatusPaused, all[1].Status)
	assert.Equal(t, 2, all[0].Events)

	one, err := r.Webhooks(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "wh-a", one[0].ID)
}

func TestWebhookDetailOmitsSecret(t *testing.T) {
	r, hooks, _, _ := newTestReader(t)
	seedWebhook(t, hooks, "wh-1", "user-1", "")

	detail, err := r.Webhook(t.Context(), "wh-1")
	require.NoError(t, err)
	assert.Equal(t, "wh-1", detail.ID)
	assert.Equal(t, []string{"goal.completed", "quest.completed"}, detail.Events)
	assert.NotZero(t, detail.MaxRetries)
	assert.NotZero(t, detail.TimeoutMs)
}

func TestWebhookAbsent(t *testing.T) {
	r, _, _, _ := newTestReader(t)
	_, err := r.Webhook(t.Context(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrAbsent)
}

func TestDeliveriesReadsLog(t *testing.T) {
	r, hooks, _, clock := newTestReader(t)
	h := seedWebhook(t, hooks, "wh-1", "user-1", "")

	now := clock.Now()
	d := &webhook.Delivery{
		ID:          "del-1",
		WebhookID:   h.ID,
		EventID:     "ev-1",
		EventType:   "goal.completed",
		UserID:      h.UserID,
		URL:         h.URL,
		Payload:     []byte(`{}`),
		Status:      webhook.DeliveryDelivered,
		Attempt:     1,
		MaxAttempts: 4,
		CreatedAt:   now,
		ScheduledAt: now,
	}
	require.NoError(t, hooks.Enqueue(t.Context(), d))
	require.NoError(t, hooks.Archive(t.Context(), d))

	log, err := r.Deliveries(t.Context(), h.ID, 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "del-1", log[0].ID)
	assert.Equal(t, "goal.completed", log[0].EventType)
	assert.Equal(t, webhook.DeliveryDelivered, log[0].Status)
}

func TestStatsSnapshot(t *testing.T) {
	r, hooks, reminders, clock := newTestReader(t)
	seedWebhook(t, hooks, "wh-1", "user-1", "")
	seedWebhook(t, hooks, "wh-2", "user-1", webhook.StatusPaused)
	seedWebhook(t, hooks, "wh-3", "user-2", webhook.StatusFailed)

	now := clock.Now()
	for i, id := range []string{"del-1", "del-2"} {
		d := &webhook.Delivery{
			ID:          id,
			WebhookID:   "wh-1",
			EventID:     "ev-" + id,
			EventType:   "goal.completed",
			UserID:      "user-1",
			URL:         "https://consumer.example.com/wh-1",
			Payload:     []byte(`{}`),
			Status:      webhook.DeliveryPending,
			Attempt:     1,
			MaxAttempts: 4,
			CreatedAt:   now,
			ScheduledAt: now.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, hooks.Enqueue(t.Context(), d))
	}

	require.NoError(t, reminders.Schedule(t.Context(), &reminder.Reminder{
		ID:          "rem-1",
		UserID:      "user-1",
		Title:       "stand up",
		Channels:    []string{reminder.ChannelPush},
		ScheduledAt: now.Add(time.Hour),
	}))

	snap, err := r.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Webhooks.Total)
	assert.Equal(t, 1, snap.Webhooks.Active)
	assert.Equal(t, 1, snap.Webhooks.Paused)
	assert.Equal(t, 1, snap.Webhooks.Failed)
	assert.Equal(t, int64(2), snap.Deliveries.Queued)
	assert.Equal(t, 2, snap.Deliveries.Inflight)
	assert.Equal(t, int64(1), snap.Reminders.Due)
	assert.Equal(t, now.UTC(), snap.TakenAt)
}

func TestStatsEmpty(t *testing.T) {
	r, _, _, _ := newTestReader(t)
	snap, err := r.Stats(t.Context())
	require.NoError(t, err)
	assert.Zero(t, snap.Webhooks.Total)
	assert.Zero(t, snap.Deliveries.Queued)
	assert.Zero(t, snap.Reminders.Due)
}
