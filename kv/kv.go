// Package kv defines the key/value substrate every novacore component
// builds on: strings with TTL, lists, sets, hashes, sorted sets, atomic
// counters, and glob key scans.
//
// A key holds exactly one shape at a time. Operations against a key of a
// different shape fail with fault.ErrConflict; backend failures surface as
// fault.ErrBackendUnavailable and are never conflated with absence.
// Absence is reported explicitly, either as a boolean result or as
// ErrAbsent for operations that require the key to exist.
//
// Two backends ship with the module: the in-process Memory store and the
// Redis store in kv/redis. Both satisfy Store; tests run against Memory
// with a fake clock and against miniredis.
package kv

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrAbsent reports that an operation requiring an existing key found none.
// Use errors.Is(err, ErrAbsent) for typed assertions.
var ErrAbsent = errors.New("key absent")

// ZEntry is one member of a sorted set with its score.
type ZEntry struct {
	Member string
	Score  float64
}

// Store is the key/value contract. All operations observe expiry: an
// expired key behaves as absent. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the string value, reporting absence via the boolean.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes string shape, replacing any existing shape.
	// ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes the value only when the key is absent, reporting
	// whether the write won. Backs idempotency claims.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes the key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// CompareAndDelete deletes the key only when its current string value
	// equals expect, atomically. Backs single-use tokens.
	CompareAndDelete(ctx context.Context, key, expect string) (bool, error)
	// Exists reports key presence, observing expiry.
	Exists(ctx context.Context, key string) (bool, error)
	// Expire sets a fresh TTL on any shape; fails with ErrAbsent when the
	// key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns remaining seconds, -1 when the key has no expiry, and
	// -2 when the key is absent.
	TTL(ctx context.Context, key string) (int64, error)

	// Incr atomically increments an integer-valued string key, creating
	// it at 0 first. Non-integer values fail with fault.ErrConflict.
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	LPush(ctx context.Context, key string, values ...string) (int64, error)
	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	// LRange follows Redis semantics: negative indices count from the
	// end; an absent key yields an empty slice.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRem(ctx context.Context, key string, count int64, value string) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRangeByScore returns entries with min <= score <= max, ascending
	// by score then member.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ZEntry, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Keys returns the keys matching a glob pattern with * wildcards.
	// The result is a snapshot; mutating the store afterwards does not
	// invalidate it. Backends must not block the store for longer than a
	// scan (never KEYS on Redis).
	Keys(ctx context.Context, pattern string) ([]string, error)

	Ping(ctx context.Context) error
	FlushAll(ctx context.Context) error
	Close() error
}

// MatchGlob reports whether s matches pattern, where * matches any run of
// characters (including none). * is the only metacharacter.
func MatchGlob(pattern, s string) bool {
	segs := strings.Split(pattern, "*")
	if len(segs) == 1 {
		return pattern == s
	}
	if !strings.HasPrefix(s, segs[0]) {
		return false
	}
	s = s[len(segs[0]):]
	for i := 1; i < len(segs)-1; i++ {
		idx := strings.Index(s, segs[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(segs[i]):]
	}
	return strings.HasSuffix(s, segs[len(segs)-1])
}
