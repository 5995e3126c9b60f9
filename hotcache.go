package memcache

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pior/memcache/internal"
	"github.com/zeebo/xxh3"
)

// hotCacheEntry mirrors a cached value plus its expiration, with an
// extended flag marking that one caller already claimed the
// stale-while-revalidate refresh for it.
type hotCacheEntry struct {
	data     []byte
	expires  time.Time
	extended bool
}

// hotCacheShard guards one bucket of the local cache. Sharding (rather than
// one global map+mutex) keeps lock contention down under concurrent Get
// traffic; keys are routed to shards with a consistent jump hash so the
// shard count can change without invalidating every entry at once.
type hotCacheShard struct {
	mu    sync.Mutex
	store map[string]*hotCacheEntry
}

// HotCacheConfig tunes ProbabilisticHotCache. Mirrors the original Python
// client's probabilistic hot-cache extra.
type HotCacheConfig struct {
	// CacheTTL is how long a promoted value is served from local memory.
	CacheTTL time.Duration

	// MaxLastAccessAge bounds how recently the server must have last seen a
	// hit for a miss-path response to be considered a promotion candidate.
	MaxLastAccessAge time.Duration

	// ProbabilityFactor gates promotion: a hot candidate is promoted with
	// probability 1/ProbabilityFactor. Must be >= 1.
	ProbabilityFactor int

	// MaxStaleWhileRevalidate is how far past expiration a cached value is
	// still served (by exactly one caller, who refreshes it) instead of
	// falling through to the underlying client.
	MaxStaleWhileRevalidate time.Duration

	// AllowedPrefixes restricts promotion to keys starting with one of
	// these prefixes. Empty means every key is eligible.
	AllowedPrefixes []string

	// Shards is the number of lock shards backing the local store. Zero
	// selects a sensible default.
	Shards int
}

func (c HotCacheConfig) withDefaults() HotCacheConfig {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Second
	}
	if c.MaxLastAccessAge <= 0 {
		c.MaxLastAccessAge = 2 * time.Second
	}
	if c.ProbabilityFactor <= 0 {
		c.ProbabilityFactor = 1
	}
	if c.MaxStaleWhileRevalidate <= 0 {
		c.MaxStaleWhileRevalidate = 10 * time.Second
	}
	if c.Shards <= 0 {
		c.Shards = 32
	}
	return c
}

// ProbabilisticHotCache sits in front of a *HighLevelCommands, keeping
// frequently-read keys in local process memory to shave the network
// round-trip off the hottest reads without promoting every key a process
// happens to touch once.
type ProbabilisticHotCache struct {
	inner  *HighLevelCommands
	cfg    HotCacheConfig
	shards []*hotCacheShard
}

// NewProbabilisticHotCache wraps inner with a local cache tuned by cfg.
func NewProbabilisticHotCache(inner *HighLevelCommands, cfg HotCacheConfig) *ProbabilisticHotCache {
	cfg = cfg.withDefaults()
	shards := make([]*hotCacheShard, cfg.Shards)
	for i := range shards {
		shards[i] = &hotCacheShard{store: make(map[string]*hotCacheEntry)}
	}
	return &ProbabilisticHotCache{inner: inner, cfg: cfg, shards: shards}
}

func (p *ProbabilisticHotCache) shardFor(key string) *hotCacheShard {
	h := xxh3.HashString(key)
	idx := internal.JumpHash(h, len(p.shards))
	return p.shards[idx]
}

func (p *ProbabilisticHotCache) allowed(key string) bool {
	if len(p.cfg.AllowedPrefixes) == 0 {
		return true
	}
	for _, prefix := range p.cfg.AllowedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// lookup returns (found, isHot, data). found=false with isHot=true means the
// caller won the stale-while-revalidate refresh and must repopulate.
func (p *ProbabilisticHotCache) lookup(key string) (found, isHot bool, data []byte) {
	shard := p.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.store[key]
	if !ok {
		return false, false, nil
	}

	now := time.Now()
	ttl := entry.expires.Sub(now)
	switch {
	case ttl > 0:
		return true, true, entry.data
	case !entry.extended && -ttl < p.cfg.MaxStaleWhileRevalidate:
		entry.expires = entry.expires.Add(p.cfg.MaxStaleWhileRevalidate)
		entry.extended = true
		return false, true, nil
	default:
		delete(shard.store, key)
		return false, false, nil
	}
}

func (p *ProbabilisticHotCache) store(key string, data []byte) {
	shard := p.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.store[key] = &hotCacheEntry{data: data, expires: time.Now().Add(p.cfg.CacheTTL)}
}

func (p *ProbabilisticHotCache) clearIfExpired(key string) {
	shard := p.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if entry, ok := shard.store[key]; ok && time.Now().After(entry.expires) {
		delete(shard.store, key)
	}
}

// Get serves key from the local cache when present and fresh; otherwise it
// falls through to the wrapped client and probabilistically promotes the
// result for next time. out receives the decoded value on a hit or miss
// from upstream, matching HighLevelCommands.Get's contract.
func (p *ProbabilisticHotCache) Get(ctx context.Context, key any, out any, opts ...GetOption) (bool, error) {
	k := toKey(key)

	allowed := p.allowed(k.Key)
	var isHot bool
	if allowed {
		found, hot, data := p.lookup(k.Key)
		isHot = hot
		if found {
			return true, json.Unmarshal(data, out)
		}
	}

	found, hit, lastAccess, err := p.inner.GetWithMeta(ctx, key, out, opts...)
	if err != nil {
		return false, err
	}
	if !found {
		if isHot {
			p.clearIfExpired(k.Key)
		}
		return false, nil
	}

	if allowed && !isHot && hit && time.Duration(lastAccess)*time.Second <= p.cfg.MaxLastAccessAge {
		if rand.Intn(p.cfg.ProbabilityFactor) == 0 {
			isHot = true
		}
	}
	if isHot {
		if data, err := json.Marshal(out); err == nil {
			p.store(k.Key, data)
		}
	}

	return true, nil
}
