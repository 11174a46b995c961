// Package redis provides the Redis-backed kv.Store.
//
// Every operation runs under a per-operation timeout in addition to the
// caller's context. Redis error surfaces are mapped onto the novacore
// taxonomy: absent keys are reported via the kv.Store absence contracts,
// WRONGTYPE becomes fault.ErrConflict, and transport failures become
// fault.ErrBackendUnavailable. Key scans use cursor SCAN, never KEYS.
package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

const (
	defaultOpTimeout = 5 * time.Second
	scanBatch        = 256
)

// Config holds Redis store settings.
type Config struct {
	// URL is a Redis connection URL (redis://host:port/db).
	URL string
	// OpTimeout bounds each store operation. Zero selects the default.
	OpTimeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("redis: url is required")
	}
	return nil
}

// Store implements kv.Store against a Redis server.
type Store struct {
	client    *goredis.Client
	opTimeout time.Duration
}

var _ kv.Store = (*Store)(nil)

// New creates a Redis store from the given configuration. The connection
// is established lazily; use Ping to verify reachability.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Store{
		client:    goredis.NewClient(opts),
		opTimeout: timeout,
	}, nil
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// classify maps a Redis client error onto the fault taxonomy.
func classify(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return fault.New(fault.ErrCancelled, op, key, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fault.New(fault.ErrTimeout, op, key, err)
	case strings.HasPrefix(err.Error(), "WRONGTYPE"):
		return fault.New(fault.ErrConflict, op, key, err)
	case strings.Contains(err.Error(), "not an integer"):
		return fault.New(fault.ErrConflict, op, key, err)
	default:
		return fault.New(fault.ErrBackendUnavailable, op, key, err)
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.client.Get(cctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("kv.get", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	return classify("kv.set", key, s.client.Set(cctx, key, value, ttl).Err())
}

func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	won, err := s.client.SetNX(cctx, key, value, ttl).Result()
	if err != nil {
		return false, classify("kv.setnx", key, err)
	}
	return won, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.Del(cctx, key).Result()
	if err != nil {
		return false, classify("kv.delete", key, err)
	}
	return n > 0, nil
}

// compareAndDelete deletes the key only when its value matches, server
// side, so two racing validators cannot both win.
var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *Store) CompareAndDelete(ctx context.Context, key, expect string) (bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := compareAndDelete.Run(cctx, s.client, []string{key}, expect).Int()
	if err != nil {
		return false, classify("kv.compareAndDelete", key, err)
	}
	return n == 1, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.Exists(cctx, key).Result()
	if err != nil {
		return false, classify("kv.exists", key, err)
	}
	return n > 0, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err := s.client.Expire(cctx, key, ttl).Result()
	if err != nil {
		return classify("kv.expire", key, err)
	}
	if !ok {
		return fmt.Errorf("kv.expire %s: %w", key, kv.ErrAbsent)
	}
	return nil
}

func (s *Store) TTL(ctx context.Context, key string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	d, err := s.client.TTL(cctx, key).Result()
	if err != nil {
		return 0, classify("kv.ttl", key, err)
	}
	// go-redis passes the Redis sentinels through unscaled.
	switch {
	case d == -2 || d == -2*time.Second:
		return -2, nil
	case d == -1 || d == -time.Second:
		return -1, nil
	default:
		return int64(math.Ceil(d.Seconds())), nil
	}
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.Incr(cctx, key).Result()
	if err != nil {
		return 0, classify("kv.incr", key, err)
	}
	return n, nil
}

func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.IncrBy(cctx, key, delta).Result()
	if err != nil {
		return 0, classify("kv.incrBy", key, err)
	}
	return n, nil
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.LPush(cctx, key, toArgs(values)...).Result()
	if err != nil {
		return 0, classify("kv.lpush", key, err)
	}
	return n, nil
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.RPush(cctx, key, toArgs(values)...).Result()
	if err != nil {
		return 0, classify("kv.rpush", key, err)
	}
	return n, nil
}

func (s *Store) LPop(ctx context.Context, key string) (string, bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.client.LPop(cctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("kv.lpop", key, err)
	}
	return v, true, nil
}

func (s *Store) RPop(ctx context.Context, key string) (string, bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.client.RPop(cctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("kv.rpop", key, err)
	}
	return v, true, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	vs, err := s.client.LRange(cctx, key, start, stop).Result()
	if err != nil {
		return nil, classify("kv.lrange", key, err)
	}
	return vs, nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.LLen(cctx, key).Result()
	if err != nil {
		return 0, classify("kv.llen", key, err)
	}
	return n, nil
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return classify("kv.ltrim", key, s.client.LTrim(cctx, key, start, stop).Err())
}

func (s *Store) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.LRem(cctx, key, count, value).Result()
	if err != nil {
		return 0, classify("kv.lrem", key, err)
	}
	return n, nil
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.SAdd(cctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, classify("kv.sadd", key, err)
	}
	return n, nil
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.SRem(cctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, classify("kv.srem", key, err)
	}
	return n, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	vs, err := s.client.SMembers(cctx, key).Result()
	if err != nil {
		return nil, classify("kv.smembers", key, err)
	}
	return vs, nil
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	ok, err := s.client.SIsMember(cctx, key, member).Result()
	if err != nil {
		return false, classify("kv.sismember", key, err)
	}
	return ok, nil
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.SCard(cctx, key).Result()
	if err != nil {
		return 0, classify("kv.scard", key, err)
	}
	return n, nil
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	v, err := s.client.HGet(cctx, key, field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("kv.hget", key, err)
	}
	return v, true, nil
}

func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return classify("kv.hset", key, s.client.HSet(cctx, key, fields).Err())
}

func (s *Store) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.HDel(cctx, key, fields...).Result()
	if err != nil {
		return 0, classify("kv.hdel", key, err)
	}
	return n, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	m, err := s.client.HGetAll(cctx, key).Result()
	if err != nil {
		return nil, classify("kv.hgetall", key, err)
	}
	return m, nil
}

func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	err := s.client.ZAdd(cctx, key, goredis.Z{Score: score, Member: member}).Err()
	return classify("kv.zadd", key, err)
}

func formatScore(f float64) string {
	switch {
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsInf(f, 1):
		return "+inf"
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]kv.ZEntry, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	zs, err := s.client.ZRangeByScoreWithScores(cctx, key, &goredis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, classify("kv.zrangebyscore", key, err)
	}
	out := make([]kv.ZEntry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, kv.ZEntry{Member: member, Score: z.Score})
	}
	return out, nil
}

func (s *Store) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.ZRem(cctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, classify("kv.zrem", key, err)
	}
	return n, nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	n, err := s.client.ZCard(cctx, key).Result()
	if err != nil {
		return 0, classify("kv.zcard", key, err)
	}
	return n, nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()

	// SCAN may repeat keys across cursor pages; dedupe before returning.
	seen := make(map[string]struct{})
	iter := s.client.Scan(cctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(cctx) {
		seen[iter.Val()] = struct{}{}
	}
	if err := iter.Err(); err != nil {
		return nil, classify("kv.keys", pattern, err)
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return classify("kv.ping", "", s.client.Ping(cctx).Err())
}

func (s *Store) FlushAll(ctx context.Context) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()
	return classify("kv.flushall", "", s.client.FlushAll(cctx).Err())
}

// Close releases the client connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
