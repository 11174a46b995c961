package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
	"github.com/oriys/novacore/webhook"
)

func TestFactoryStampsEvents(t *testing.T) {
	clock := clockwork.NewFakeClock()
	factory := NewFactory("production", clock)

	ev := factory.GoalCompleted("user-1", "g-1", "learn go")
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, TypeGoalCompleted, ev.Type)
	assert.Equal(t, "goal", ev.Category)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, clock.Now().UTC(), ev.Timestamp)
	assert.Equal(t, APIVersion, ev.APIVersion)
	assert.Equal(t, "production", ev.Environment)
	assert.Equal(t, "g-1", ev.Data["goalId"])

	other := factory.GoalCompleted("user-1", "g-1", "learn go")
	assert.NotEqual(t, ev.ID, other.ID, "every event gets its own id")
}

func TestFactoryCategories(t *testing.T) {
	factory := NewFactory("test", clockwork.NewFakeClock())
	tests := []struct {
		ev       webhook.Event
		category string
	}{
		{factory.QuestStarted("u", "q", "n"), "quest"},
		{factory.StepCompleted("u", "q", "s"), "step"},
		{factory.SparkCreated("u", "s"), "spark"},
		{factory.MemoryStored("u", "m"), "memory"},
		{factory.ChatMessageSent("u", "c", 10), "chat"},
		{factory.UserRegistered("u"), "user"},
		{factory.SystemMaintenance(webhook.SeverityCritical, "down"), "system"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.category, tt.ev.Category, tt.ev.Type)
	}
}

func TestSystemMaintenanceSeverity(t *testing.T) {
	factory := NewFactory("test", clockwork.NewFakeClock())
	ev := factory.SystemMaintenance(webhook.SeverityWarning, "rolling restart")
	assert.Equal(t, webhook.SeverityWarning, ev.Severity)
}

// collectSink records batches; fail makes writes error.
type collectSink struct {
	mu      sync.Mutex
	batches [][]AnalyticsEvent
	fail    bool
}

func (s *collectSink) Write(_ context.Context, batch []AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	cp := make([]AnalyticsEvent, len(batch))
	copy(cp, batch)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *collectSink) all() []AnalyticsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AnalyticsEvent
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func TestRecorderBuffersUntilFlush(t *testing.T) {
	sink := &collectSink{}
	rec := NewRecorder(10, sink, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Record(ctx, AnalyticsEvent{Name: fmt.Sprintf("ev-%d", i)}))
	}
	assert.Equal(t, 3, rec.Buffered())
	assert.Empty(t, sink.all())

	require.NoError(t, rec.Flush(ctx))
	assert.Zero(t, rec.Buffered())

	got := sink.all()
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("ev-%d", i), ev.Name, "accepted order preserved")
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestRecorderCapTriggersSynchronousFlush(t *testing.T) {
	sink := &collectSink{}
	rec := NewRecorder(2, sink, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, AnalyticsEvent{Name: "a"}))
	assert.Empty(t, sink.all())

	require.NoError(t, rec.Record(ctx, AnalyticsEvent{Name: "b"}))
	assert.Len(t, sink.all(), 2, "hitting the cap flushes in-line")
	assert.Zero(t, rec.Buffered())
}

func TestRecorderFailedFlushKeepsEvents(t *testing.T) {
	sink := &collectSink{fail: true}
	rec := NewRecorder(2, sink, clockwork.NewFakeClock(), nil)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, AnalyticsEvent{Name: "a"}))
	err := rec.Record(ctx, AnalyticsEvent{Name: "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrBackendUnavailable)
	assert.Equal(t, 2, rec.Buffered(), "accepted events survive a failed flush")

	// The sink recovers and a later flush drains everything.
	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	require.NoError(t, rec.Flush(ctx))
	assert.Len(t, sink.all(), 2)
	assert.Zero(t, rec.Buffered())
}

func TestKVSinkCapped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := kv.NewMemory(clock)
	sink := NewKVSink(store, 5)
	ctx := context.Background()

	var batch []AnalyticsEvent
	for i := 0; i < 8; i++ {
		batch = append(batch, AnalyticsEvent{ID: fmt.Sprintf("e-%d", i), Name: "n", Timestamp: clock.Now()})
	}
	require.NoError(t, sink.Write(ctx, batch))

	values, err := store.LRange(ctx, analyticsKey, 0, -1)
	require.NoError(t, err)
	assert.Len(t, values, 5, "the list keeps only the newest cap entries")
	assert.Contains(t, values[0], "e-3")
	assert.Contains(t, values[4], "e-7")
}
