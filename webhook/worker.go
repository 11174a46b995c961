package webhook

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/guard"
	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/log"
	"github.com/oriys/novacore/transport"
)

// responseBodyCap bounds how much of the receiver's response is kept.
const responseBodyCap = 4 * 1024

// Recorder observes delivery outcomes; nil disables recording.
type Recorder interface {
	WebhookDelivery(outcome string)
}

// SendResult is what the worker needs from one request.
type SendResult struct {
	Status   int
	Body     []byte
	TimingMs int64
}

// Sender performs one delivery request. GuardedSender is the
// production implementation; tests script their own.
type Sender interface {
	Send(ctx context.Context, rawURL string, body []byte, headers map[string]string, timeoutMs int64) (*SendResult, error)
}

// GuardedSender runs every delivery URL through the SSRF guard and the
// pinned transport, redirects disabled. A webhook URL that stops
// resolving safely stops receiving deliveries.
type GuardedSender struct {
	guard  *guard.Guard
	client *transport.Client
}

var _ Sender = (*GuardedSender)(nil)

// NewGuardedSender builds the production sender.
func NewGuardedSender(g *guard.Guard, client *transport.Client) *GuardedSender {
	return &GuardedSender{guard: g, client: client}
}

// Send implements Sender.
func (s *GuardedSender) Send(ctx context.Context, rawURL string, body []byte, headers map[string]string, timeoutMs int64) (*SendResult, error) {
	decision := s.guard.Check(ctx, rawURL)
	if !decision.Allowed {
		return nil, fault.Denied("webhook.send", rawURL, decision.DenyReason)
	}
	req := *decision.Transport
	req.AllowRedirects = false
	if timeoutMs > 0 {
		req.ReadTimeoutMs = timeoutMs
	}
	resp, err := s.client.Do(ctx, req, http.MethodPost, body, headers)
	if err != nil {
		return nil, err
	}
	return &SendResult{Status: resp.Status, Body: resp.Body, TimingMs: resp.TimingMs}, nil
}

// WorkerConfig tunes the delivery pool.
type WorkerConfig struct {
	// Workers is the pool size (default 4).
	Workers int
	// PollInterval paces queue scans (default 1s).
	PollInterval time.Duration
	// UserAgent goes on every delivery request.
	UserAgent string
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "novacore-webhooks/1.0"
	}
	return c
}

// Worker drains delivery queues: claim, send, account, retry or
// archive.
type Worker struct {
	id     string
	cfg    WorkerConfig
	store  *Store
	sender Sender
	clock  clockwork.Clock
	logger *log.Logger
	rec    Recorder

	// sems caps in-progress deliveries per webhook.
	sems sync.Map // webhookID -> *semaphore.Weighted

	mu   sync.Mutex
	rand *rand.Rand
}

// NewWorker builds a Worker.
func NewWorker(cfg WorkerConfig, store *Store, sender Sender, clock clockwork.Clock, logger *log.Logger, rec Recorder) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		id:     uuid.NewString(),
		cfg:    cfg.withDefaults(),
		store:  store,
		sender: sender,
		clock:  clock,
		logger: log.OrNop(logger).Child(log.Context{Component: "webhook-worker"}),
		rec:    rec,
		rand:   rand.New(rand.NewSource(clock.Now().UnixNano())),
	}
}

// Run polls until the context ends.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Warn("delivery pass failed", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock.After(w.cfg.PollInterval):
		}
	}
}

// ProcessOnce runs one pass over every user queue and returns how many
// deliveries were attempted.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	users, err := w.store.QueueUsers(ctx)
	if err != nil {
		return 0, err
	}
	now := w.clock.Now()

	var due []string
	for _, user := range users {
		ids, err := w.store.DueDeliveries(ctx, user, now)
		if err != nil {
			return 0, err
		}
		due = append(due, ids...)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var attempted sync.Map
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for _, id := range due {
		g.Go(func() error {
			ok, err := w.process(gctx, id)
			if err != nil {
				w.logger.Warn("delivery processing failed", map[string]any{
					"deliveryId": id, "error": err.Error(),
				})
				return nil
			}
			if ok {
				attempted.Store(id, struct{}{})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	attempted.Range(func(any, any) bool { n++; return true })
	return n, nil
}

// process runs one delivery attempt end to end. The returned bool
// reports whether this worker actually attempted the send (false when
// the claim was lost, the webhook slot was full, or the delivery was
// no longer ready).
func (w *Worker) process(ctx context.Context, deliveryID string) (bool, error) {
	d, err := w.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, kv.ErrAbsent) {
			return false, nil
		}
		return false, err
	}
	if d.Status != DeliveryPending && d.Status != DeliveryRetrying {
		return false, nil
	}

	hook, err := w.store.GetWebhook(ctx, d.WebhookID)
	if err != nil {
		return false, err
	}

	claimTTL := 2 * time.Duration(hook.Options.TimeoutMs) * time.Millisecond
	won, err := w.store.Claim(ctx, d.ID, w.id, claimTTL)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}
	defer func() { _ = w.store.ReleaseClaim(ctx, d.ID) }()

	sem := w.webhookSem(d.WebhookID)
	if !sem.TryAcquire(1) {
		return false, nil
	}
	defer sem.Release(1)

	now := w.clock.Now()
	d.Status = DeliveryInProgress
	d.AttemptedAt = &now
	if err := w.store.SaveDelivery(ctx, d); err != nil {
		return false, err
	}

	result, sendErr := w.send(ctx, d, hook)
	return true, w.settle(ctx, d, hook, result, sendErr)
}

func (w *Worker) send(ctx context.Context, d *Delivery, hook *Webhook) (*SendResult, error) {
	headers := map[string]string{
		"Content-Type":     "application/json",
		"User-Agent":       w.cfg.UserAgent,
		"X-Nova-Event":     d.EventType,
		"X-Nova-Delivery":  d.ID,
		"X-Nova-Webhook":   d.WebhookID,
		"X-Nova-Signature": d.Signature,
		"X-Nova-Attempt":   strconv.Itoa(d.Attempt),
	}
	for k, v := range hook.Options.CustomHeaders {
		headers[k] = v
	}

	sctx, cancel := context.WithTimeout(ctx, time.Duration(hook.Options.TimeoutMs)*time.Millisecond)
	defer cancel()
	return w.sender.Send(sctx, d.URL, d.Payload, headers, hook.Options.TimeoutMs)
}

// settle applies the attempt outcome: delivered, retrying with jittered
// backoff, or terminally failed with webhook failure accounting.
func (w *Worker) settle(ctx context.Context, d *Delivery, hook *Webhook, result *SendResult, sendErr error) error {
	now := w.clock.Now()
	entry := AttemptEntry{Attempt: d.Attempt, Timestamp: now}

	success := sendErr == nil && result.Status >= 200 && result.Status < 300
	if result != nil {
		entry.ResponseStatus = result.Status
		entry.ResponseTimeMs = result.TimingMs
		d.ResponseStatus = result.Status
		d.ResponseBody = capBody(result.Body)
		d.ResponseTimeMs = result.TimingMs
	}

	if success {
		entry.Status = "success"
		d.AttemptLog = append(d.AttemptLog, entry)
		d.Status = DeliveryDelivered
		d.CompletedAt = &now
		d.Error = ""
		d.ErrorCode = ""

		w.record("delivered")
		if err := w.store.Archive(ctx, d); err != nil {
			return err
		}
		w.logger.Info("delivery succeeded", map[string]any{
			"deliveryId": d.ID, "webhookId": d.WebhookID, "attempt": d.Attempt,
		})
		return w.store.RecordDeliverySuccess(ctx, d.WebhookID)
	}

	entry.Status = "failure"
	if sendErr != nil {
		entry.Error = sendErr.Error()
		d.Error = sendErr.Error()
		d.ErrorCode = fault.Code(sendErr)
	} else {
		entry.Error = "non-2xx response"
		d.Error = "non-2xx response"
		d.ErrorCode = "PROVIDER_ERROR"
	}
	d.AttemptLog = append(d.AttemptLog, entry)

	if d.Attempt < d.MaxAttempts {
		delay := w.backoff(hook.Options, d.Attempt)
		d.Attempt++
		d.Status = DeliveryRetrying
		d.ScheduledAt = now.Add(delay)

		body, signature, err := Resign(hook.Secret, d.Payload, d.Attempt)
		if err != nil {
			return err
		}
		d.Payload = body
		d.Signature = signature

		w.record("retrying")
		w.logger.Warn("delivery attempt failed", map[string]any{
			"deliveryId": d.ID, "webhookId": d.WebhookID,
			"attempt": d.Attempt - 1, "nextAttemptAt": d.ScheduledAt,
		})
		return w.store.Requeue(ctx, d)
	}

	d.Status = DeliveryFailed
	d.CompletedAt = &now
	w.record("failed")
	if err := w.store.Archive(ctx, d); err != nil {
		return err
	}
	w.logger.Error("delivery exhausted", map[string]any{
		"deliveryId": d.ID, "webhookId": d.WebhookID, "attempts": d.Attempt,
	})
	return w.store.RecordDeliveryFailure(ctx, d.WebhookID)
}

// backoff is retryDelayMs * multiplier^(attempt-1) with full jitter:
// uniform in [0, delay].
func (w *Worker) backoff(opts Options, attempt int) time.Duration {
	delay := float64(opts.RetryDelayMs)
	for i := 1; i < attempt; i++ {
		delay *= opts.RetryBackoffMultiplier
	}
	w.mu.Lock()
	jittered := w.rand.Int63n(int64(delay) + 1)
	w.mu.Unlock()
	return time.Duration(jittered) * time.Millisecond
}

func (w *Worker) webhookSem(webhookID string) *semaphore.Weighted {
	if sem, ok := w.sems.Load(webhookID); ok {
		return sem.(*semaphore.Weighted)
	}
	sem, _ := w.sems.LoadOrStore(webhookID, semaphore.NewWeighted(MaxConcurrentPerWebhook))
	return sem.(*semaphore.Weighted)
}

func (w *Worker) record(outcome string) {
	if w.rec != nil {
		w.rec.WebhookDelivery(outcome)
	}
}

func capBody(body []byte) string {
	if len(body) > responseBodyCap {
		body = body[:responseBodyCap]
	}
	return string(body)
}

