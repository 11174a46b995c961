package truststore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

func newStore(t *testing.T) (kv.Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return kv.NewMemory(clock), clock
}

func TestRateLimitCountsWithinWindow(t *testing.T) {
	store, clock := newStore(t)
	rl := NewRateLimit(store, clock)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		res, err := rl.Increment(ctx, "user-1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, res.Count)
		assert.True(t, res.ResetsAt.After(clock.Now()))
	}
}

func TestRateLimitWindowRollover(t *testing.T) {
	store, clock := newStore(t)
	rl := NewRateLimit(store, clock)
	ctx := context.Background()

	res, err := rl.Increment(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)

	clock.Advance(2 * time.Minute)
	res, err = rl.Increment(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count, "a new window starts at one")
}

func TestRateLimitRejectsSubSecondWindow(t *testing.T) {
	store, clock := newStore(t)
	rl := NewRateLimit(store, clock)
	ctx := context.Background()

	for _, window := range []time.Duration{0, 500 * time.Millisecond, time.Second - 1} {
		_, err := rl.Increment(ctx, "user-1", window)
		require.ErrorIs(t, err, fault.ErrMalformedInput, "window %s", window)
	}

	_, err := rl.Increment(ctx, "user-1", time.Second)
	require.NoError(t, err)
}

func TestRateLimitSubjectsIndependent(t *testing.T) {
	store, clock := newStore(t)
	rl := NewRateLimit(store, clock)
	ctx := context.Background()

	_, err := rl.Increment(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	res, err := rl.Increment(ctx, "user-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
}

func TestSessionsLifecycle(t *testing.T) {
	store, clock := newStore(t)
	sessions := NewSessions(store, clock, time.Hour)
	ctx := context.Background()

	created, err := sessions.Create(ctx, "conv-1", "user-1")
	require.NoError(t, err)
	assert.Zero(t, created.MessageCount)

	clock.Advance(time.Minute)
	updated, err := sessions.RecordActivity(ctx, "conv-1", 120)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.MessageCount)
	assert.Equal(t, int64(120), updated.TokenCount)
	assert.True(t, updated.LastActivityAt.After(created.LastActivityAt))

	got, err := sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, int64(120), got.TokenCount)
	assert.Equal(t, created.StartedAt, got.StartedAt)

	require.NoError(t, sessions.Delete(ctx, "conv-1"))
	_, err = sessions.Get(ctx, "conv-1")
	assert.ErrorIs(t, err, kv.ErrAbsent)
}

func TestSessionsTouchRefreshesTTL(t *testing.T) {
	store, clock := newStore(t)
	sessions := NewSessions(store, clock, time.Hour)
	ctx := context.Background()

	_, err := sessions.Create(ctx, "conv-1", "user-1")
	require.NoError(t, err)

	clock.Advance(50 * time.Minute)
	require.NoError(t, sessions.Touch(ctx, "conv-1"))

	// Without the touch the session would expire at the one hour mark.
	clock.Advance(30 * time.Minute)
	got, err := sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(-30*time.Minute).UTC(), got.LastActivityAt)

	clock.Advance(2 * time.Hour)
	_, err = sessions.Get(ctx, "conv-1")
	assert.ErrorIs(t, err, kv.ErrAbsent)
}

func TestSessionsTouchAbsent(t *testing.T) {
	store, clock := newStore(t)
	sessions := NewSessions(store, clock, time.Hour)

	err := sessions.Touch(context.Background(), "missing")
	assert.ErrorIs(t, err, kv.ErrAbsent)
}

func TestAckTokenSingleUse(t *testing.T) {
	store, _ := newStore(t)
	tokens := NewAckTokens(store)
	ctx := context.Background()

	require.NoError(t, tokens.Save(ctx, "tok-1", "user-1", time.Hour))

	ok, err := tokens.Validate(ctx, "tok-1", "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tokens.Validate(ctx, "tok-1", "user-1")
	require.NoError(t, err)
	assert.False(t, ok, "a token validates exactly once")
}

func TestAckTokenWrongUser(t *testing.T) {
	store, _ := newStore(t)
	tokens := NewAckTokens(store)
	ctx := context.Background()

	require.NoError(t, tokens.Save(ctx, "tok-1", "user-1", time.Hour))

	ok, err := tokens.Validate(ctx, "tok-1", "user-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// The failed validation must not have consumed it.
	ok, err = tokens.Validate(ctx, "tok-1", "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAckTokenConcurrentValidators(t *testing.T) {
	store, _ := newStore(t)
	tokens := NewAckTokens(store)
	ctx := context.Background()

	require.NoError(t, tokens.Save(ctx, "tok-1", "user-1", time.Hour))

	const validators = 16
	var wg sync.WaitGroup
	wins := make(chan bool, validators)
	for i := 0; i < validators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := tokens.Validate(ctx, "tok-1", "user-1")
			require.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent validator wins")
}

func TestAckTokenExpiry(t *testing.T) {
	store, clock := newStore(t)
	tokens := NewAckTokens(store)
	ctx := context.Background()

	require.NoError(t, tokens.Save(ctx, "tok-1", "user-1", time.Minute))
	clock.Advance(2 * time.Minute)

	ok, err := tokens.Validate(ctx, "tok-1", "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlocksLifecycle(t *testing.T) {
	store, clock := newStore(t)
	blocks := NewBlocks(store, clock)
	ctx := context.Background()

	status, err := blocks.IsBlocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, status.Blocked)

	require.NoError(t, blocks.Block(ctx, "user-1", "abusive requests", time.Hour))
	status, err = blocks.IsBlocked(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, status.Blocked)
	assert.Equal(t, "abusive requests", status.Reason)
	assert.Equal(t, clock.Now().UTC().Add(time.Hour), status.Until)

	require.NoError(t, blocks.Unblock(ctx, "user-1"))
	status, err = blocks.IsBlocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, status.Blocked)
}

func TestBlockExpires(t *testing.T) {
	store, clock := newStore(t)
	blocks := NewBlocks(store, clock)
	ctx := context.Background()

	require.NoError(t, blocks.Block(ctx, "user-1", "cooldown", time.Minute))
	clock.Advance(2 * time.Minute)

	status, err := blocks.IsBlocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, status.Blocked, "an expired block reads as not blocked")
}

func TestVetoesTrackAndCount(t *testing.T) {
	store, clock := newStore(t)
	vetoes := NewVetoes(store)
	ctx := context.Background()

	count, err := vetoes.Count(ctx, "user-1", "2026-08-25")
	require.NoError(t, err)
	assert.Zero(t, count)

	for i := int64(1); i <= 3; i++ {
		count, err = vetoes.Track(ctx, "user-1", "2026-08-25", 24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	count, err = vetoes.Count(ctx, "user-1", "2026-08-25")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	clock.Advance(25 * time.Hour)
	count, err = vetoes.Count(ctx, "user-1", "2026-08-25")
	require.NoError(t, err)
	assert.Zero(t, count, "the window TTL clears the tally")
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	token := CreateCursor("entry-42", ts)

	id, gotTS, err := ParseCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "entry-42", id)
	assert.Equal(t, ts, gotTS)

	token = CreateCursor("entry-43", time.Time{})
	id, gotTS, err = ParseCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "entry-43", id)
	assert.True(t, gotTS.IsZero())
}

func TestCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "not base64!!", "bm90IGpzb24", "e30"} {
		_, _, err := ParseCursor(token)
		require.Error(t, err, "token %q", token)
		assert.ErrorIs(t, err, fault.ErrMalformedInput)
	}
}

func TestAuditLogAndPagination(t *testing.T) {
	store, clock := newStore(t)
	audit := NewAudit(store, clock)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 7; i++ {
		entry, err := audit.Log(ctx, "user-1", fmt.Sprintf("action-%d", i), map[string]any{"n": i})
		require.NoError(t, err)
		ids = append(ids, entry.ID)
		clock.Advance(time.Second)
	}

	// Newest first, three pages of three/three/one.
	var seen []string
	cursor := ""
	pages := 0
	for {
		page, err := audit.ListUser(ctx, "user-1", cursor, 3)
		require.NoError(t, err)
		for _, e := range page.Entries {
			seen = append(seen, e.ID)
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	require.Len(t, seen, 7)
	for i := 0; i < 7; i++ {
		assert.Equal(t, ids[6-i], seen[i], "newest first, no duplicates across pages")
	}
}

func TestAuditGlobalSeesAllUsers(t *testing.T) {
	store, clock := newStore(t)
	audit := NewAudit(store, clock)
	ctx := context.Background()

	_, err := audit.Log(ctx, "user-1", "login", nil)
	require.NoError(t, err)
	_, err = audit.Log(ctx, "user-2", "login", nil)
	require.NoError(t, err)

	page, err := audit.ListGlobal(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Entries, 2)

	userPage, err := audit.ListUser(ctx, "user-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, userPage.Entries, 1)
}

// Repeated requests inside one window count up and roll over cleanly
// while blocks and vetoes accumulate alongside.
func TestAdmissionScenario(t *testing.T) {
	store, clock := newStore(t)
	rl := NewRateLimit(store, clock)
	blocks := NewBlocks(store, clock)
	vetoes := NewVetoes(store)
	ctx := context.Background()

	const limit = 10
	var last RateResult
	for i := 0; i < 12; i++ {
		res, err := rl.Increment(ctx, "user-1", time.Minute)
		require.NoError(t, err)
		last = res
	}
	assert.Greater(t, last.Count, int64(limit), "the 11th and 12th requests exceed the limit")

	// Repeated overruns earn a veto, then a block.
	count, err := vetoes.Track(ctx, "user-1", "rate", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.NoError(t, blocks.Block(ctx, "user-1", "rate limit exceeded", 10*time.Minute))

	status, err := blocks.IsBlocked(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, status.Blocked)

	// The block lapses; a fresh window admits again.
	clock.Advance(11 * time.Minute)
	status, err = blocks.IsBlocked(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, status.Blocked)

	res, err := rl.Increment(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
}
