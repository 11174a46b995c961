package guard

import (
	"context"
	"encoding/json"
	"net"
	"net/netip"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oriys/novacore/fault"
	"github.com/oriys/novacore/kv"
)

const dnsCachePrefix = "dns:v1:"

// Resolver resolves a hostname to addresses. The returned TTL is the
// shortest record TTL when the resolver knows it, or 0 when it does not
// (the cache ceiling applies either way).
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, time.Duration, error)
}

// NetResolver adapts net.Resolver. A and AAAA are both requested via
// the "ip" network. The stdlib does not surface record TTLs, so it
// reports 0 and the cache falls back to the configured ceiling.
type NetResolver struct {
	R *net.Resolver
}

// Resolve implements Resolver.
func (n *NetResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, time.Duration, error) {
	r := n.R
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, 0, err
	}
	return addrs, 0, nil
}

// dnsRecord is the dns:v1 cache value.
type dnsRecord struct {
	Addrs      []string `json:"addrs"`
	TTLSeconds int64    `json:"ttlSeconds"`
}

// cachingResolver wraps a Resolver with the KV-backed dns:v1 cache and
// collapses concurrent lookups for the same host. The cache is advisory:
// a cache failure degrades to a live lookup.
type cachingResolver struct {
	next    Resolver
	store   kv.Store
	ceiling time.Duration
	timeout time.Duration
	group   singleflight.Group
}

func (c *cachingResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, time.Duration, error) {
	if c.store != nil {
		if raw, ok, err := c.store.Get(ctx, dnsCachePrefix+host); err == nil && ok {
			var rec dnsRecord
			if err := json.Unmarshal([]byte(raw), &rec); err == nil {
				addrs := make([]netip.Addr, 0, len(rec.Addrs))
				for _, s := range rec.Addrs {
					if a, err := netip.ParseAddr(s); err == nil {
						addrs = append(addrs, a)
					}
				}
				if len(addrs) > 0 {
					return addrs, time.Duration(rec.TTLSeconds) * time.Second, nil
				}
			}
		}
	}

	v, err, _ := c.group.Do(host, func() (any, error) {
		lctx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		addrs, ttl, err := c.next.Resolve(lctx, host)
		if err != nil {
			if lctx.Err() != nil {
				return nil, fault.FromContext("guard.resolve", lctx.Err())
			}
			return nil, fault.New(fault.ErrBackendUnavailable, "guard.resolve", host, err)
		}
		if len(addrs) == 0 {
			return nil, fault.New(fault.ErrBackendUnavailable, "guard.resolve", host, nil)
		}

		cacheTTL := c.ceiling
		if ttl > 0 && ttl < cacheTTL {
			cacheTTL = ttl
		}
		if c.store != nil && cacheTTL > 0 {
			texts := make([]string, len(addrs))
			for i, a := range addrs {
				texts[i] = a.String()
			}
			sort.Strings(texts)
			if raw, err := json.Marshal(dnsRecord{Addrs: texts, TTLSeconds: int64(cacheTTL / time.Second)}); err == nil {
				// Advisory write; resolution already succeeded.
				_ = c.store.Set(ctx, dnsCachePrefix+host, string(raw), cacheTTL)
			}
		}
		return addrs, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return v.([]netip.Addr), 0, nil
}
