package kv

import (
	"errors"
	"sync"
	"testing"

	"github.com/oriys/novacore/fault"
)

type countingRecorder struct {
	mu   sync.Mutex
	ops  map[string]int
	errs map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: make(map[string]int), errs: make(map[string]int)}
}

func (r *countingRecorder) KVOp(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op]++
	if err != nil {
		r.errs[op]++
	}
}

func TestInstrument_CountsOutcomes(t *testing.T) {
	ctx := t.Context()
	rec := newCountingRecorder()
	store := Instrument(NewMemory(nil), rec)

	if err := store.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, _, err := store.Get(ctx, "k"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); err != nil {
		t.Fatalf("Get(missing): %v", err)
	}

	// Shape conflict counts as an errored op.
	if _, err := store.LPush(ctx, "k", "x"); !errors.Is(err, fault.ErrConflict) {
		t.Fatalf("LPush = %v, want CONFLICT", err)
	}

	if rec.ops["set"] != 1 || rec.ops["get"] != 2 || rec.ops["lpush"] != 1 {
		t.Errorf("op counts = %v", rec.ops)
	}
	if rec.errs["lpush"] != 1 || rec.errs["get"] != 0 {
		t.Errorf("err counts = %v", rec.errs)
	}
}

func TestInstrument_NilRecorderReturnsUnwrapped(t *testing.T) {
	mem := NewMemory(nil)
	if got := Instrument(mem, nil); got != Store(mem) {
		t.Errorf("Instrument(nil recorder) wrapped the store")
	}
}
