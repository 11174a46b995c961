package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/canonjson"
	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/log"
)

// AnalyticsEvent is one usage observation.
type AnalyticsEvent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	UserID     string         `json:"userId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Sink receives flushed batches in accepted order.
type Sink interface {
	Write(ctx context.Context, batch []AnalyticsEvent) error
}

// Recorder buffers analytics events up to a cap. Hitting the cap
// flushes synchronously inside Record, so an accepted event is never
// dropped; a failed flush leaves the batch buffered for the next try.
type Recorder struct {
	cap    int
	sink   Sink
	clock  clockwork.Clock
	logger *log.Logger

	mu  sync.Mutex
	buf []AnalyticsEvent
}

// NewRecorder builds a Recorder. cap <= 0 defaults to 100.
func NewRecorder(cap int, sink Sink, clock clockwork.Clock, logger *log.Logger) *Recorder {
	if cap <= 0 {
		cap = 100
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{
		cap:    cap,
		sink:   sink,
		clock:  clock,
		logger: log.OrNop(logger).Child(log.Context{Component: "events"}),
	}
}

// Record accepts one event, assigning id and timestamp when unset.
// Reaching the cap triggers an in-line flush; if that flush fails the
// event is still buffered and the error reported.
func (r *Recorder) Record(ctx context.Context, ev AnalyticsEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.clock.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, ev)
	if len(r.buf) < r.cap {
		return nil
	}
	return r.flushLocked(ctx)
}

// Flush drains the buffer to the sink in accepted order.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

// Buffered reports how many events await a flush.
func (r *Recorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

func (r *Recorder) flushLocked(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.sink.Write(ctx, r.buf); err != nil {
		r.logger.Warn("analytics flush failed", map[string]any{
			"buffered": len(r.buf), "error": err.Error(),
		})
		return fault.New(fault.ErrBackendUnavailable, "events.flush", "", err)
	}
	r.buf = r.buf[:0]
	return nil
}

// analyticsKey is the capped KV list backing the default sink.
const analyticsKey = "analytics:events"

// KVSink appends batches to the analytics:events list, trimmed to a
// cap so the backend never grows unbounded.
type KVSink struct {
	kv  kv.Store
	cap int64
}

var _ Sink = (*KVSink)(nil)

// NewKVSink builds the list sink. cap <= 0 defaults to 10000.
func NewKVSink(store kv.Store, cap int64) *KVSink {
	if cap <= 0 {
		cap = 10000
	}
	return &KVSink{kv: store, cap: cap}
}

// Write implements Sink.
func (s *KVSink) Write(ctx context.Context, batch []AnalyticsEvent) error {
	values := make([]string, 0, len(batch))
	for _, ev := range batch {
		raw, err := canonjson.Marshal(ev)
		if err != nil {
			return fault.New(fault.ErrInternal, "events.sink", ev.ID, err)
		}
		values = append(values, string(raw))
	}
	if _, err := s.kv.RPush(ctx, analyticsKey, values...); err != nil {
		return err
	}
	return s.kv.LTrim(ctx, analyticsKey, -s.cap, -1)
}
