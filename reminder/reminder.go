// Package reminder schedules and dispatches user reminders. Due
// reminders come off a scheduledAt-scored sorted set; each is claimed
// once, storm-protected, capped per user per batch, and sent over the
// first notification channel that works.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/canonjson"
	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/log"
)

// Reminder statuses.
const (
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
	StatusFailed    = "failed"
)

// Notification channels in fallback order.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// channelOrder fixes the fallback sequence regardless of how the
// reminder lists its channels.
var channelOrder = []string{ChannelPush, ChannelEmail, ChannelSMS}

const (
	keyReminder   = "reminder:"            // + id
	keyDue        = "reminder:due"         // sorted set
	keyIdempotent = "reminder:idempotent:" // + id
)

// Reminder is one scheduled notification.
type Reminder struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
	// Channels is the ordered subset of push, email, sms this reminder
	// may use.
	Channels      []string `json:"channels"`
	Status        string   `json:"status"`
	SentVia       string   `json:"sentVia,omitempty"`
	FailureReason string   `json:"failureReason,omitempty"`
}

// Notifier delivers one reminder over one channel.
type Notifier interface {
	Notify(ctx context.Context, channel string, r *Reminder) error
}

// Stats summarize one ProcessPending batch.
type Stats struct {
	Sent     int
	Failed   int
	Skipped  int // already claimed by another worker
	Deferred int // left for the next batch by the per-user cap
}

// Config tunes the scheduler.
type Config struct {
	// MaxAge plus Grace bounds how stale a reminder may be and still
	// send (defaults 2h + 5m). Older reminders fail as too old instead
	// of storming users after an outage.
	MaxAge time.Duration
	Grace  time.Duration
	// PerUserBatchCap bounds sends per user per batch (default 2);
	// excess stays queued.
	PerUserBatchCap int
	// IdempotencyTTL guards double sends across workers (default 24h).
	IdempotencyTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAge <= 0 {
		c.MaxAge = 2 * time.Hour
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Minute
	}
	if c.PerUserBatchCap <= 0 {
		c.PerUserBatchCap = 2
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = 24 * time.Hour
	}
	return c
}

// Scheduler stores reminders and processes the due queue.
type Scheduler struct {
	cfg      Config
	kv       kv.Store
	notifier Notifier
	clock    clockwork.Clock
	logger   *log.Logger
}

// NewScheduler builds a Scheduler.
func NewScheduler(cfg Config, store kv.Store, notifier Notifier, clock clockwork.Clock, logger *log.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		kv:       store,
		notifier: notifier,
		clock:    clock,
		logger:   log.OrNop(logger).Child(log.Context{Component: "reminder"}),
	}
}

// Schedule stores the reminder and queues it for its scheduledAt.
func (s *Scheduler) Schedule(ctx context.Context, r *Reminder) error {
	if r.ID == "" || r.UserID == "" {
		return fault.New(fault.ErrMalformedInput, "reminder.schedule", r.ID,
			fmt.Errorf("id and userId are required"))
	}
	r.Status = StatusScheduled
	if err := s.save(ctx, r); err != nil {
		return err
	}
	return s.kv.ZAdd(ctx, keyDue, float64(r.ScheduledAt.UnixMilli()), r.ID)
}

// Get loads one reminder; absence is kv.ErrAbsent.
func (s *Scheduler) Get(ctx context.Context, id string) (*Reminder, error) {
	raw, ok, err := s.kv.Get(ctx, keyReminder+id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("reminder %s: %w", id, kv.ErrAbsent)
	}
	var r Reminder
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fault.New(fault.ErrInternal, "reminder.get", id, err)
	}
	return &r, nil
}

// DueCount reports how many reminders are waiting in the queue,
// including ones scheduled in the future.
func (s *Scheduler) DueCount(ctx context.Context) (int64, error) {
	return s.kv.ZCard(ctx, keyDue)
}

// Cancel removes a reminder from the queue and the store.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if _, err := s.kv.ZRem(ctx, keyDue, id); err != nil {
		return err
	}
	_, err := s.kv.Delete(ctx, keyReminder+id)
	return err
}

// ProcessPending handles every reminder due at now, in scheduledAt
// order, and returns batch stats.
func (s *Scheduler) ProcessPending(ctx context.Context, now time.Time) (Stats, error) {
	entries, err := s.kv.ZRangeByScore(ctx, keyDue, 0, float64(now.UnixMilli()))
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	perUser := map[string]int{}
	for _, entry := range entries {
		r, err := s.Get(ctx, entry.Member)
		if err != nil {
			// Cancelled out from under the queue entry.
			_, _ = s.kv.ZRem(ctx, keyDue, entry.Member)
			continue
		}

		// The cap defers before claiming, so deferred reminders stay
		// sendable next batch.
		if perUser[r.UserID] >= s.cfg.PerUserBatchCap {
			stats.Deferred++
			continue
		}

		won, err := s.kv.SetNX(ctx, keyIdempotent+r.ID, "1", s.cfg.IdempotencyTTL)
		if err != nil {
			return stats, err
		}
		if !won {
			stats.Skipped++
			_, _ = s.kv.ZRem(ctx, keyDue, r.ID)
			continue
		}

		if now.Sub(r.ScheduledAt) > s.cfg.MaxAge+s.cfg.Grace {
			r.Status = StatusFailed
			r.FailureReason = "too old"
			if err := s.finalize(ctx, r); err != nil {
				return stats, err
			}
			stats.Failed++
			s.logger.Warn("reminder dropped as stale", map[string]any{
				"reminderId": r.ID, "scheduledAt": r.ScheduledAt,
			})
			continue
		}

		perUser[r.UserID]++
		if s.dispatch(ctx, r) {
			stats.Sent++
		} else {
			stats.Failed++
		}
		if err := s.finalize(ctx, r); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// dispatch tries the fallback channels the reminder allows and mutates
// its status in place.
func (s *Scheduler) dispatch(ctx context.Context, r *Reminder) bool {
	var lastErr error
	for _, channel := range channelOrder {
		if !contains(r.Channels, channel) {
			continue
		}
		if err := s.notifier.Notify(ctx, channel, r); err != nil {
			lastErr = err
			s.logger.Debug("channel failed", map[string]any{
				"reminderId": r.ID, "channel": channel, "error": err.Error(),
			})
			continue
		}
		r.Status = StatusSent
		r.SentVia = channel
		s.logger.Info("reminder sent", map[string]any{
			"reminderId": r.ID, "channel": channel,
		})
		return true
	}

	r.Status = StatusFailed
	if lastErr != nil {
		r.FailureReason = lastErr.Error()
	} else {
		r.FailureReason = "no usable channel"
	}
	return false
}

func (s *Scheduler) finalize(ctx context.Context, r *Reminder) error {
	if err := s.save(ctx, r); err != nil {
		return err
	}
	_, err := s.kv.ZRem(ctx, keyDue, r.ID)
	return err
}

func (s *Scheduler) save(ctx context.Context, r *Reminder) error {
	raw, err := canonjson.Marshal(r)
	if err != nil {
		return fault.New(fault.ErrInternal, "reminder.save", r.ID, err)
	}
	return s.kv.Set(ctx, keyReminder+r.ID, string(raw), 0)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
