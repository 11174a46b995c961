package flags

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

// DefaultCacheTTL bounds how stale a dynamic flag read may be.
const DefaultCacheTTL = 30 * time.Second

const dynamicPrefix = "flags:dynamic:"

// Value is a dynamic flag scalar: string, float64, or bool.
type Value any

// Dynamic serves runtime-mutable flags. Reads consult a local short-TTL
// cache, then the KV store, then the compiled-in default. Writes go
// through the store first, so a read from another process observes the
// committed value as soon as its cache expires. The cache never returns
// torn state: entries are replaced whole under the mutex.
type Dynamic struct {
	store    kv.Store
	clock    clockwork.Clock
	ttl      time.Duration
	defaults map[string]Value

	mu    sync.Mutex
	cache map[string]dynamicEntry
}

type dynamicEntry struct {
	value     Value
	expiresAt time.Time
}

// DynamicConfig configures the dynamic layer.
type DynamicConfig struct {
	// Store is the KV backend (required).
	Store kv.Store
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// CacheTTL defaults to DefaultCacheTTL.
	CacheTTL time.Duration
	// Defaults are the compiled-in fallbacks by flag name.
	Defaults map[string]Value
}

// NewDynamic builds the dynamic flag layer.
func NewDynamic(cfg DynamicConfig) *Dynamic {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	defaults := make(map[string]Value, len(cfg.Defaults))
	for k, v := range cfg.Defaults {
		defaults[k] = v
	}
	return &Dynamic{
		store:    cfg.Store,
		clock:    clock,
		ttl:      ttl,
		defaults: defaults,
		cache:    make(map[string]dynamicEntry),
	}
}

// Get returns the flag value: cache, then store, then default. A store
// failure falls back to the compiled-in default rather than erroring;
// flags must not take the caller down with the backend.
func (d *Dynamic) Get(ctx context.Context, name string) Value {
	now := d.clock.Now()

	d.mu.Lock()
	if entry, ok := d.cache[name]; ok && entry.expiresAt.After(now) {
		d.mu.Unlock()
		return entry.value
	}
	d.mu.Unlock()

	raw, ok, err := d.store.Get(ctx, dynamicPrefix+name)
	if err != nil || !ok {
		return d.defaults[name]
	}

	var value Value
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return d.defaults[name]
	}

	d.mu.Lock()
	d.cache[name] = dynamicEntry{value: value, expiresAt: now.Add(d.ttl)}
	d.mu.Unlock()
	return value
}

// GetBool returns the flag as a bool, or the fallback when the value has
// a different type.
func (d *Dynamic) GetBool(ctx context.Context, name string, fallback bool) bool {
	if v, ok := d.Get(ctx, name).(bool); ok {
		return v
	}
	return fallback
}

// GetString returns the flag as a string, or the fallback.
func (d *Dynamic) GetString(ctx context.Context, name, fallback string) string {
	if v, ok := d.Get(ctx, name).(string); ok {
		return v
	}
	return fallback
}

// GetNumber returns the flag as a float64, or the fallback. JSON decodes
// all numbers to float64.
func (d *Dynamic) GetNumber(ctx context.Context, name string, fallback float64) float64 {
	if v, ok := d.Get(ctx, name).(float64); ok {
		return v
	}
	return fallback
}

// Set writes the value through the store and then the local cache.
func (d *Dynamic) Set(ctx context.Context, name string, value Value) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fault.New(fault.ErrMalformedInput, "flags.set", name, err)
	}
	if err := d.store.Set(ctx, dynamicPrefix+name, string(raw), 0); err != nil {
		return err
	}
	d.mu.Lock()
	d.cache[name] = dynamicEntry{value: value, expiresAt: d.clock.Now().Add(d.ttl)}
	d.mu.Unlock()
	return nil
}

// Reset deletes the flag from the store and the cache, restoring the
// compiled-in default for subsequent reads.
func (d *Dynamic) Reset(ctx context.Context, name string) error {
	if _, err := d.store.Delete(ctx, dynamicPrefix+name); err != nil {
		return err
	}
	d.mu.Lock()
	delete(d.cache, name)
	d.mu.Unlock()
	return nil
}
