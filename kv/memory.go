package kv

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/novacore/fault"
)

type shape int

const (
	shapeString shape = iota
	shapeList
	shapeSet
	shapeHash
	shapeZSet
)

func (s shape) String() string {
	switch s {
	case shapeString:
		return "string"
	case shapeList:
		return "list"
	case shapeSet:
		return "set"
	case shapeHash:
		return "hash"
	case shapeZSet:
		return "zset"
	default:
		return "unknown"
	}
}

type entry struct {
	shape     shape
	str       string
	list      []string
	set       map[string]struct{}
	hash      map[string]string
	zset      map[string]float64
	expiresAt time.Time // zero means no expiry
}

// Memory is the in-process Store. A single mutex guards the whole map, so
// every operation, including get-then-delete pairs expressed as
// CompareAndDelete, is atomic. TTLs read the injected clock.
type Memory struct {
	mu    sync.Mutex
	items map[string]*entry
	clock clockwork.Clock
}

var _ Store = (*Memory)(nil)

// NewMemory builds an empty in-process store. A nil clock selects the
// real clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		items: make(map[string]*entry),
		clock: clock,
	}
}

// live returns the entry for key if present and unexpired, deleting it
// when expiry is due. Callers must hold mu.
func (m *Memory) live(key string) *entry {
	e, ok := m.items[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.items, key)
		return nil
	}
	return e
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.clock.Now().Add(ttl)
}

func wrongShape(op, key string, want, got shape) error {
	return fault.New(fault.ErrConflict, op, key,
		fmt.Errorf("operation requires %s shape, key holds %s", want, got))
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return "", false, nil
	}
	if e.shape != shapeString {
		return "", false, wrongShape("kv.get", key, shapeString, e.shape)
	}
	return e.str, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = &entry{shape: shapeString, str: value, expiresAt: m.expiry(ttl)}
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live(key) != nil {
		return false, nil
	}
	m.items[key] = &entry{shape: shapeString, str: value, expiresAt: m.expiry(ttl)}
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live(key) == nil {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, expect string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return false, nil
	}
	if e.shape != shapeString {
		return false, wrongShape("kv.compareAndDelete", key, shapeString, e.shape)
	}
	if e.str != expect {
		return false, nil
	}
	delete(m.items, key)
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(key) != nil, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return fmt.Errorf("kv.expire %s: %w", key, ErrAbsent)
	}
	if ttl <= 0 {
		delete(m.items, key)
		return nil
	}
	e.expiresAt = m.clock.Now().Add(ttl)
	return nil
}

func (m *Memory) TTL(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		return -2, nil
	}
	if e.expiresAt.IsZero() {
		return -1, nil
	}
	return int64(math.Ceil(e.expiresAt.Sub(m.clock.Now()).Seconds())), nil
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrBy(ctx, key, 1)
}

func (m *Memory) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.live(key)
	if e == nil {
		e = &entry{shape: shapeString, str: "0"}
		m.items[key] = e
	}
	if e.shape != shapeString {
		return 0, wrongShape("kv.incrBy", key, shapeString, e.shape)
	}
	n, err := strconv.ParseInt(e.str, 10, 64)
	if err != nil {
		return 0, fault.New(fault.ErrConflict, "kv.incrBy", key,
			fmt.Errorf("value %q is not an integer", e.str))
	}
	n += delta
	e.str = strconv.FormatInt(n, 10)
	return n, nil
}

// listEntry returns the live list entry for key, creating one when create
// is set. Callers must hold mu.
func (m *Memory) listEntry(op, key string, create bool) (*entry, error) {
	e := m.live(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{shape: shapeList}
		m.items[key] = e
	}
	if e.shape != shapeList {
		return nil, wrongShape(op, key, shapeList, e.shape)
	}
	return e, nil
}

func (m *Memory) LPush(_ context.Context, key string, values ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.lpush", key, true)
	if err != nil {
		return 0, err
	}
	for _, v := range values {
		e.list = append([]string{v}, e.list...)
	}
	return int64(len(e.list)), nil
}

func (m *Memory) RPush(_ context.Context, key string, values ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.rpush", key, true)
	if err != nil {
		return 0, err
	}
	e.list = append(e.list, values...)
	return int64(len(e.list)), nil
}

func (m *Memory) LPop(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.lpop", key, false)
	if err != nil || e == nil || len(e.list) == 0 {
		return "", false, err
	}
	v := e.list[0]
	e.list = e.list[1:]
	if len(e.list) == 0 {
		delete(m.items, key)
	}
	return v, true, nil
}

func (m *Memory) RPop(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.rpop", key, false)
	if err != nil || e == nil || len(e.list) == 0 {
		return "", false, err
	}
	v := e.list[len(e.list)-1]
	e.list = e.list[:len(e.list)-1]
	if len(e.list) == 0 {
		delete(m.items, key)
	}
	return v, true, nil
}

// normalizeRange maps Redis-style start/stop (negatives from the end) to
// [lo, hi) bounds over a list of length n. An empty result is (0, 0).
func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n || stop < 0 {
		return 0, 0
	}
	return start, stop + 1
}

func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.lrange", key, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	lo, hi := normalizeRange(start, stop, int64(len(e.list)))
	out := make([]string, hi-lo)
	copy(out, e.list[lo:hi])
	return out, nil
}

func (m *Memory) LLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.llen", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.list)), nil
}

func (m *Memory) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.ltrim", key, false)
	if err != nil || e == nil {
		return err
	}
	lo, hi := normalizeRange(start, stop, int64(len(e.list)))
	trimmed := make([]string, hi-lo)
	copy(trimmed, e.list[lo:hi])
	if len(trimmed) == 0 {
		delete(m.items, key)
		return nil
	}
	e.list = trimmed
	return nil
}

func (m *Memory) LRem(_ context.Context, key string, count int64, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.listEntry("kv.lrem", key, false)
	if err != nil || e == nil {
		return 0, err
	}

	var removed int64
	keep := func(limit int64, fromTail bool) {
		out := e.list[:0]
		if fromTail {
			// Walk backwards, collect survivors, then restore order.
			var rev []string
			for i := len(e.list) - 1; i >= 0; i-- {
				v := e.list[i]
				if v == value && (limit == 0 || removed < limit) {
					removed++
					continue
				}
				rev = append(rev, v)
			}
			for i := len(rev) - 1; i >= 0; i-- {
				out = append(out, rev[i])
			}
		} else {
			for _, v := range e.list {
				if v == value && (limit == 0 || removed < limit) {
					removed++
					continue
				}
				out = append(out, v)
			}
		}
		e.list = out
	}

	switch {
	case count > 0:
		keep(count, false)
	case count < 0:
		keep(-count, true)
	default:
		keep(0, false)
	}
	if len(e.list) == 0 {
		delete(m.items, key)
	}
	return removed, nil
}

func (m *Memory) setEntry(op, key string, create bool) (*entry, error) {
	e := m.live(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{shape: shapeSet, set: make(map[string]struct{})}
		m.items[key] = e
	}
	if e.shape != shapeSet {
		return nil, wrongShape(op, key, shapeSet, e.shape)
	}
	return e, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.setEntry("kv.sadd", key, true)
	if err != nil {
		return 0, err
	}
	var added int64
	for _, v := range members {
		if _, ok := e.set[v]; !ok {
			e.set[v] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.setEntry("kv.srem", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	var removed int64
	for _, v := range members {
		if _, ok := e.set[v]; ok {
			delete(e.set, v)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(m.items, key)
	}
	return removed, nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.setEntry("kv.smembers", key, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(e.set))
	for v := range e.set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.setEntry("kv.sismember", key, false)
	if err != nil || e == nil {
		return false, err
	}
	_, ok := e.set[member]
	return ok, nil
}

func (m *Memory) SCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.setEntry("kv.scard", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.set)), nil
}

func (m *Memory) hashEntry(op, key string, create bool) (*entry, error) {
	e := m.live(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{shape: shapeHash, hash: make(map[string]string)}
		m.items[key] = e
	}
	if e.shape != shapeHash {
		return nil, wrongShape(op, key, shapeHash, e.shape)
	}
	return e, nil
}

func (m *Memory) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.hashEntry("kv.hget", key, false)
	if err != nil || e == nil {
		return "", false, err
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

func (m *Memory) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.hashEntry("kv.hset", key, true)
	if err != nil {
		return err
	}
	for f, v := range fields {
		e.hash[f] = v
	}
	return nil
}

func (m *Memory) HDel(_ context.Context, key string, fields ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.hashEntry("kv.hdel", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	var removed int64
	for _, f := range fields {
		if _, ok := e.hash[f]; ok {
			delete(e.hash, f)
			removed++
		}
	}
	if len(e.hash) == 0 {
		delete(m.items, key)
	}
	return removed, nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.hashEntry("kv.hgetall", key, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e == nil {
		return out, nil
	}
	for f, v := range e.hash {
		out[f] = v
	}
	return out, nil
}

func (m *Memory) zsetEntry(op, key string, create bool) (*entry, error) {
	e := m.live(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{shape: shapeZSet, zset: make(map[string]float64)}
		m.items[key] = e
	}
	if e.shape != shapeZSet {
		return nil, wrongShape(op, key, shapeZSet, e.shape)
	}
	return e, nil
}

func (m *Memory) ZAdd(_ context.Context, key string, score float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.zsetEntry("kv.zadd", key, true)
	if err != nil {
		return err
	}
	e.zset[member] = score
	return nil
}

func (m *Memory) ZRangeByScore(_ context.Context, key string, min, max float64) ([]ZEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.zsetEntry("kv.zrangebyscore", key, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []ZEntry{}, nil
	}
	out := make([]ZEntry, 0, len(e.zset))
	for member, score := range e.zset {
		if score >= min && score <= max {
			out = append(out, ZEntry{Member: member, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out, nil
}

func (m *Memory) ZRem(_ context.Context, key string, members ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.zsetEntry("kv.zrem", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	var removed int64
	for _, member := range members {
		if _, ok := e.zset[member]; ok {
			delete(e.zset, member)
			removed++
		}
	}
	if len(e.zset) == 0 {
		delete(m.items, key)
	}
	return removed, nil
}

func (m *Memory) ZCard(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.zsetEntry("kv.zcard", key, false)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.zset)), nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for key := range m.items {
		if m.live(key) == nil {
			continue
		}
		if MatchGlob(pattern, key) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Ping(_ context.Context) error {
	return nil
}

func (m *Memory) FlushAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*entry)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
