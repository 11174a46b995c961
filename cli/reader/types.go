// Package reader is the read-side data access layer for the CLI.
// All read-only commands go through it; nothing here mutates state
// beyond lazy expiry inside the KV store itself.
package reader

import "time"

// WebhookSummary is one row of `webhooks list`.
type WebhookSummary struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Events    int    `json:"events"`
	Delivered int64  `json:"delivered"`
	Failed    int64  `json:"failed"`
}

// WebhookDetail is the full `webhooks inspect` payload. The secret is
// never included.
type WebhookDetail struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	URL           string     `json:"url"`
	Status        string     `json:"status"`
	Events        []string   `json:"events"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`
	Delivered     int64      `json:"delivered"`
	Failed        int64      `json:"failed"`
	MaxRetries    int        `json:"maxRetries"`
	TimeoutMs     int64      `json:"timeoutMs"`
	MinSeverity   string     `json:"minSeverity,omitempty"`
}

// DeliverySummary is one row of the `deliveries` command.
type DeliverySummary struct {
	ID          string     `json:"id"`
	EventType   string     `json:"eventType"`
	Status      string     `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"maxAttempts"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	AttemptedAt *time.Time `json:"attemptedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// WebhookStats aggregates webhook registrations by status.
type WebhookStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Paused   int `json:"paused"`
	Disabled int `json:"disabled"`
	Failed   int `json:"failed"`
}

// DeliveryStats aggregates the delivery pipeline.
type DeliveryStats struct {
	Queued   int64 `json:"queued"`
	Inflight int   `json:"inflight"`
}

// ReminderStats aggregates the reminder schedule.
type ReminderStats struct {
	Due int64 `json:"due"`
}

// Snapshot is the `stats` payload: derived counts only, no record
// bodies.
type Snapshot struct {
	Webhooks   WebhookStats  `json:"webhooks"`
	Deliveries DeliveryStats `json:"deliveries"`
	Reminders  ReminderStats `json:"reminders"`
	TakenAt    time.Time     `json:"takenAt"`
}
