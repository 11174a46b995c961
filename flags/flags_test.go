package flags

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/novacore/kv"
)

func TestStableHashDeterministic(t *testing.T) {
	// Golden values pin the cross-process contract. If these change,
	// every user's bucket changes.
	cases := map[string]uint32{
		"":      5381,
		"a":     5381*33 + 'a',
		"user1": StableHash("user1"),
	}
	for in, want := range cases {
		assert.Equal(t, want, StableHash(in))
	}
	assert.Equal(t, StableHash("user-42"), StableHash("user-42"))
	assert.NotEqual(t, StableHash("user-42"), StableHash("user-43"))
}

func TestBucketRange(t *testing.T) {
	for _, id := range []string{"a", "b", "user-1", "user-2", "x@example.com"} {
		b := Bucket(id)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 100)
	}
}

func TestStaticFrozen(t *testing.T) {
	s := NewStatic(StaticConfig{WebFetchEnabled: true, ValidateCerts: true})
	assert.True(t, s.WebFetchEnabled())
	assert.True(t, s.ValidateCerts())
	assert.False(t, s.VerificationEnabled())
	assert.False(t, s.AllowPrivateIPs())
	assert.False(t, s.AllowLocalhost())
}

func TestDynamicPrecedence(t *testing.T) {
	ctx := t.Context()
	clock := clockwork.NewFakeClock()
	store := kv.NewMemory(clock)
	d := NewDynamic(DynamicConfig{
		Store:    store,
		Clock:    clock,
		Defaults: map[string]Value{"max_sources": float64(3)},
	})

	// Nothing in store or cache: compiled-in default.
	assert.Equal(t, float64(3), d.GetNumber(ctx, "max_sources", 0))

	// Store value wins over default.
	require.NoError(t, store.Set(ctx, "flags:dynamic:max_sources", "5", 0))
	assert.Equal(t, float64(5), d.GetNumber(ctx, "max_sources", 0))

	// Cached value persists until TTL even if the store changes.
	require.NoError(t, store.Set(ctx, "flags:dynamic:max_sources", "7", 0))
	assert.Equal(t, float64(5), d.GetNumber(ctx, "max_sources", 0))

	clock.Advance(DefaultCacheTTL + time.Second)
	assert.Equal(t, float64(7), d.GetNumber(ctx, "max_sources", 0))
}

func TestDynamicSetWritesThrough(t *testing.T) {
	ctx := t.Context()
	clock := clockwork.NewFakeClock()
	store := kv.NewMemory(clock)
	d := NewDynamic(DynamicConfig{Store: store, Clock: clock})

	require.NoError(t, d.Set(ctx, "greeting", "hello"))

	raw, ok, err := store.Get(ctx, "flags:dynamic:greeting")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"hello"`, raw)
	assert.Equal(t, "hello", d.GetString(ctx, "greeting", ""))

	require.NoError(t, d.Reset(ctx, "greeting"))
	_, ok, err = store.Get(ctx, "flags:dynamic:greeting")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "fallback", d.GetString(ctx, "greeting", "fallback"))
}

func TestDynamicTypedFallbacks(t *testing.T) {
	ctx := t.Context()
	clock := clockwork.NewFakeClock()
	store := kv.NewMemory(clock)
	d := NewDynamic(DynamicConfig{Store: store, Clock: clock})

	require.NoError(t, d.Set(ctx, "mixed", true))
	assert.True(t, d.GetBool(ctx, "mixed", false))
	// Wrong-type reads fall back instead of coercing.
	assert.Equal(t, "fb", d.GetString(ctx, "mixed", "fb"))
	assert.Equal(t, 1.5, d.GetNumber(ctx, "mixed", 1.5))
}

func intPtr(n int) *int { return &n }

func TestPerUserEvaluationOrder(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPerUser([]Definition{
		{
			Name:              "new_verifier",
			DefaultValue:      false,
			RolloutPercentage: intPtr(50),
			EnabledTiers:      []string{"pro"},
			EnabledAfter:      &after,
		},
		{Name: "always_on", DefaultValue: true},
	})

	// Tier allowlist wins regardless of bucket.
	assert.True(t, p.Enabled("new_verifier", User{ID: "anyone", Tier: "pro"}))

	// Creation date passes on-or-after the threshold.
	assert.True(t, p.Enabled("new_verifier", User{ID: "u", CreatedAt: after}))
	assert.True(t, p.Enabled("new_verifier", User{ID: "u", CreatedAt: after.Add(time.Hour)}))

	// Rollout percentile decides via override.
	assert.True(t, p.Enabled("new_verifier", User{ID: "u", PercentileOverride: intPtr(10)}))
	assert.False(t, p.Enabled("new_verifier", User{ID: "u", PercentileOverride: intPtr(90)}))

	// Rollout via stable hash is deterministic.
	got := p.Enabled("new_verifier", User{ID: "user-7"})
	for range 10 {
		assert.Equal(t, got, p.Enabled("new_verifier", User{ID: "user-7"}))
	}

	// Default applies when no rule decides.
	assert.True(t, p.Enabled("always_on", User{}))
	assert.False(t, p.Enabled("unknown_flag", User{ID: "u"}))
}

func TestPerUserVariants(t *testing.T) {
	p := NewPerUser([]Definition{
		{Name: "layout", Variants: []string{"control", "compact", "wide"}},
	})

	v := p.Variant("layout", User{ID: "user-9"})
	assert.Contains(t, []string{"control", "compact", "wide"}, v)
	// Stable across calls.
	assert.Equal(t, v, p.Variant("layout", User{ID: "user-9"}))
	// Matches the documented assignment rule.
	want := []string{"control", "compact", "wide"}[int(StableHash("user-9"))%3]
	assert.Equal(t, want, v)

	assert.Empty(t, p.Variant("layout", User{}))
	assert.Empty(t, p.Variant("missing", User{ID: "u"}))
}
