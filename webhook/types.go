// Package webhook delivers signed event notifications to subscriber
// URLs. Subscriptions and deliveries live in the KV store; Publish fans
// an event out to matching webhooks as pending deliveries, a worker
// pool sends them through the URL guard with bounded retries, and a
// reaper reclaims deliveries stranded by crashed workers.
package webhook

import (
	"strings"
	"time"
)

// Webhook statuses.
const (
	StatusActive   = "active"
	StatusPaused   = "paused"
	StatusDisabled = "disabled"
	StatusFailed   = "failed"
)

// Delivery statuses.
const (
	DeliveryPending    = "pending"
	DeliveryInProgress = "in_progress"
	DeliveryDelivered  = "delivered"
	DeliveryFailed     = "failed"
	DeliveryRetrying   = "retrying"
)

// Severity levels for event filtering, lowest to highest.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// FailureThreshold is the consecutive-failure count that flips a
// webhook to failed and stops new deliveries.
const FailureThreshold = 20

// MaxConcurrentPerWebhook caps simultaneous in-progress deliveries per
// webhook.
const MaxConcurrentPerWebhook = 4

// Options tune delivery behavior per webhook. Zero values take the
// documented defaults via withDefaults.
type Options struct {
	MaxRetries             int               `json:"maxRetries"`
	RetryDelayMs           int64             `json:"retryDelayMs"`
	RetryBackoffMultiplier float64           `json:"retryBackoffMultiplier"`
	TimeoutMs              int64             `json:"timeoutMs"`
	CustomHeaders          map[string]string `json:"customHeaders,omitempty"`
	// MinSeverity filters events below it; empty admits everything.
	MinSeverity string `json:"minSeverity,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelayMs <= 0 {
		o.RetryDelayMs = 1000
	}
	if o.RetryBackoffMultiplier <= 0 {
		o.RetryBackoffMultiplier = 2
	}
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 10000
	}
	return o
}

// Totals accumulate delivery outcomes over the webhook's lifetime.
type Totals struct {
	Delivered           int64 `json:"delivered"`
	Succeeded           int64 `json:"succeeded"`
	Failed              int64 `json:"failed"`
	ConsecutiveFailures int64 `json:"consecutiveFailures"`
}

// Webhook is one subscription.
type Webhook struct {
	ID          string   `json:"id"`
	UserID      string   `json:"userId"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url"`
	Secret      string   `json:"secret"`
	Events      []string `json:"events"`
	Status      string   `json:"status"`

	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	LastFailureAt *time.Time `json:"lastFailureAt,omitempty"`

	Totals  Totals  `json:"totals"`
	Options Options `json:"options"`
}

// Subscribed reports whether the webhook wants this event type.
func (w *Webhook) Subscribed(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Event is the domain occurrence webhooks subscribe to. Type is dotted
// (goal.completed); Category is its first segment.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Category      string         `json:"category"`
	UserID        string         `json:"userId"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          map[string]any `json:"data"`
	Source        string         `json:"source,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	APIVersion    string         `json:"apiVersion"`
	Environment   string         `json:"environment"`
}

// CategoryOf derives the category from a dotted event type.
func CategoryOf(eventType string) string {
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		return eventType[:i]
	}
	return eventType
}

var severityRank = map[string]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// severityAdmits reports whether an event severity satisfies the
// webhook's minimum. Unset minimum admits everything; an event without
// a severity counts as info.
func severityAdmits(min, eventSeverity string) bool {
	if min == "" {
		return true
	}
	return severityRank[eventSeverity] >= severityRank[min]
}

// AttemptEntry is one line of a delivery's attempt log.
type AttemptEntry struct {
	Attempt        int       `json:"attempt"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"` // success | failure
	ResponseStatus int       `json:"responseStatus,omitempty"`
	ResponseTimeMs int64     `json:"responseTimeMs,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Delivery is one signed payload on its way to one webhook.
type Delivery struct {
	ID        string `json:"id"`
	WebhookID string `json:"webhookId"`
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	UserID    string `json:"userId"`
	URL       string `json:"url"`
	// Payload holds the canonical JSON bytes actually sent.
	Payload   []byte `json:"payload"`
	Signature string `json:"signature"`
	Status    string `json:"status"`

	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"maxAttempts"`

	ResponseStatus int    `json:"responseStatus,omitempty"`
	ResponseBody   string `json:"responseBody,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	AttemptedAt *time.Time `json:"attemptedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"errorCode,omitempty"`
	AttemptLog []AttemptEntry `json:"attemptLog"`
}

// Terminal reports whether the delivery will never be attempted again.
func (d *Delivery) Terminal() bool {
	return d.Status == DeliveryDelivered || d.Status == DeliveryFailed
}
