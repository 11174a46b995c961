package kv

import (
	"context"
	"time"
)

// OpRecorder receives one observation per store operation. The metrics
// registry implements it; a nil recorder disables instrumentation.
type OpRecorder interface {
	KVOp(op string, err error)
}

// Instrumented wraps a Store and records per-operation outcomes.
type Instrumented struct {
	next Store
	rec  OpRecorder
}

// Instrument wraps store with outcome recording. A nil recorder returns
// the store unwrapped.
func Instrument(store Store, rec OpRecorder) Store {
	if rec == nil {
		return store
	}
	return &Instrumented{next: store, rec: rec}
}

var _ Store = (*Instrumented)(nil)

func (s *Instrumented) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.next.Get(ctx, key)
	s.rec.KVOp("get", err)
	return v, ok, err
}

func (s *Instrumented) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	err := s.next.Set(ctx, key, value, ttl)
	s.rec.KVOp("set", err)
	return err
}

func (s *Instrumented) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	won, err := s.next.SetNX(ctx, key, value, ttl)
	s.rec.KVOp("setnx", err)
	return won, err
}

func (s *Instrumented) Delete(ctx context.Context, key string) (bool, error) {
	ok, err := s.next.Delete(ctx, key)
	s.rec.KVOp("delete", err)
	return ok, err
}

func (s *Instrumented) CompareAndDelete(ctx context.Context, key, expect string) (bool, error) {
	ok, err := s.next.CompareAndDelete(ctx, key, expect)
	s.rec.KVOp("compareAndDelete", err)
	return ok, err
}

func (s *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.next.Exists(ctx, key)
	s.rec.KVOp("exists", err)
	return ok, err
}

func (s *Instrumented) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := s.next.Expire(ctx, key, ttl)
	s.rec.KVOp("expire", err)
	return err
}

func (s *Instrumented) TTL(ctx context.Context, key string) (int64, error) {
	n, err := s.next.TTL(ctx, key)
	s.rec.KVOp("ttl", err)
	return n, err
}

func (s *Instrumented) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.next.Incr(ctx, key)
	s.rec.KVOp("incr", err)
	return n, err
}

func (s *Instrumented) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := s.next.IncrBy(ctx, key, delta)
	s.rec.KVOp("incrBy", err)
	return n, err
}

func (s *Instrumented) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := s.next.LPush(ctx, key, values...)
	s.rec.KVOp("lpush", err)
	return n, err
}

func (s *Instrumented) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := s.next.RPush(ctx, key, values...)
	s.rec.KVOp("rpush", err)
	return n, err
}

func (s *Instrumented) LPop(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.next.LPop(ctx, key)
	s.rec.KVOp("lpop", err)
	return v, ok, err
}

func (s *Instrumented) RPop(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.next.RPop(ctx, key)
	s.rec.KVOp("rpop", err)
	return v, ok, err
}

func (s *Instrumented) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vs, err := s.next.LRange(ctx, key, start, stop)
	s.rec.KVOp("lrange", err)
	return vs, err
}

func (s *Instrumented) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.next.LLen(ctx, key)
	s.rec.KVOp("llen", err)
	return n, err
}

func (s *Instrumented) LTrim(ctx context.Context, key string, start, stop int64) error {
	err := s.next.LTrim(ctx, key, start, stop)
	s.rec.KVOp("ltrim", err)
	return err
}

func (s *Instrumented) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	n, err := s.next.LRem(ctx, key, count, value)
	s.rec.KVOp("lrem", err)
	return n, err
}

func (s *Instrumented) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := s.next.SAdd(ctx, key, members...)
	s.rec.KVOp("sadd", err)
	return n, err
}

func (s *Instrumented) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := s.next.SRem(ctx, key, members...)
	s.rec.KVOp("srem", err)
	return n, err
}

func (s *Instrumented) SMembers(ctx context.Context, key string) ([]string, error) {
	vs, err := s.next.SMembers(ctx, key)
	s.rec.KVOp("smembers", err)
	return vs, err
}

func (s *Instrumented) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.next.SIsMember(ctx, key, member)
	s.rec.KVOp("sismember", err)
	return ok, err
}

func (s *Instrumented) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.next.SCard(ctx, key)
	s.rec.KVOp("scard", err)
	return n, err
}

func (s *Instrumented) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, ok, err := s.next.HGet(ctx, key, field)
	s.rec.KVOp("hget", err)
	return v, ok, err
}

func (s *Instrumented) HSet(ctx context.Context, key string, fields map[string]string) error {
	err := s.next.HSet(ctx, key, fields)
	s.rec.KVOp("hset", err)
	return err
}

func (s *Instrumented) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	n, err := s.next.HDel(ctx, key, fields...)
	s.rec.KVOp("hdel", err)
	return n, err
}

func (s *Instrumented) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.next.HGetAll(ctx, key)
	s.rec.KVOp("hgetall", err)
	return m, err
}

func (s *Instrumented) ZAdd(ctx context.Context, key string, score float64, member string) error {
	err := s.next.ZAdd(ctx, key, score, member)
	s.rec.KVOp("zadd", err)
	return err
}

func (s *Instrumented) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]ZEntry, error) {
	es, err := s.next.ZRangeByScore(ctx, key, min, max)
	s.rec.KVOp("zrangebyscore", err)
	return es, err
}

func (s *Instrumented) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	n, err := s.next.ZRem(ctx, key, members...)
	s.rec.KVOp("zrem", err)
	return n, err
}

func (s *Instrumented) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.next.ZCard(ctx, key)
	s.rec.KVOp("zcard", err)
	return n, err
}

func (s *Instrumented) Keys(ctx context.Context, pattern string) ([]string, error) {
	ks, err := s.next.Keys(ctx, pattern)
	s.rec.KVOp("keys", err)
	return ks, err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	err := s.next.Ping(ctx)
	s.rec.KVOp("ping", err)
	return err
}

func (s *Instrumented) FlushAll(ctx context.Context) error {
	err := s.next.FlushAll(ctx)
	s.rec.KVOp("flushall", err)
	return err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
