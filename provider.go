package memcache

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/zeebo/xxh3"
)

// ErrNoServersAvailable is returned when a PoolProvider has no server to
// route a key to.
var ErrNoServersAvailable = errors.New("memcache: no servers available")

// PoolProvider resolves a key to the ServerPool responsible for it and
// exposes the full set of pools for fan-out operations (Ping, Stats, Close).
type PoolProvider interface {
	// PickServer returns the pool that owns hashKey.
	PickServer(hashKey string) (*ServerPool, error)

	// Pools returns every pool known to the provider.
	Pools() []*ServerPool

	Close() error
}

// virtualNodesPerServer is the default ring density. It matches the ratio
// the library has shipped with historically: enough virtual nodes to keep
// key distribution even across a fleet without growing the ring unreasonably
// for small clusters.
const virtualNodesPerServer = 150

// HashRingProvider distributes keys over a set of pools with consistent
// hashing: each server address is hashed into virtualNodesPerServer points
// on a ring, and a key is routed to the pool owning the next point at or
// after its own hash. Removing or adding a server only reshuffles the keys
// that land in its arc of the ring.
type HashRingProvider struct {
	mu           sync.RWMutex
	pools        map[string]*ServerPool
	ring         []uint64
	ringOwner    map[uint64]string
	virtualNodes int
}

// NewHashRingProvider builds a HashRingProvider over the given pools, keyed
// by ServerPool.Address(). virtualNodes <= 0 selects virtualNodesPerServer.
func NewHashRingProvider(pools []*ServerPool, virtualNodes int) *HashRingProvider {
	if virtualNodes <= 0 {
		virtualNodes = virtualNodesPerServer
	}
	p := &HashRingProvider{
		pools:        make(map[string]*ServerPool, len(pools)),
		virtualNodes: virtualNodes,
	}
	for _, pool := range pools {
		p.pools[pool.Address()] = pool
	}
	p.rebuildRing()
	return p
}

func (p *HashRingProvider) rebuildRing() {
	// Sorting server ids before hashing keeps virtual node placement stable
	// regardless of map iteration order.
	addrs := make([]string, 0, len(p.pools))
	for addr := range p.pools {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	ring := make([]uint64, 0, len(addrs)*p.virtualNodes)
	owner := make(map[uint64]string, len(addrs)*p.virtualNodes)
	for _, addr := range addrs {
		for i := 0; i < p.virtualNodes; i++ {
			vnode := addr + "#" + strconv.Itoa(i)
			h := xxh3.HashString(vnode)
			ring = append(ring, h)
			owner[h] = addr
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i] < ring[j] })

	p.ring = ring
	p.ringOwner = owner
}

// PickServer implements PoolProvider.
func (p *HashRingProvider) PickServer(hashKey string) (*ServerPool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.pools) == 0 {
		return nil, ErrNoServersAvailable
	}
	if len(p.ring) == 0 {
		return nil, ErrNoServersAvailable
	}

	h := xxh3.HashString(hashKey)
	idx := sort.Search(len(p.ring), func(i int) bool { return p.ring[i] >= h })
	if idx == len(p.ring) {
		idx = 0
	}

	addr := p.ringOwner[p.ring[idx]]
	pool, ok := p.pools[addr]
	if !ok {
		return nil, ErrNoServersAvailable
	}
	return pool, nil
}

// Pools implements PoolProvider.
func (p *HashRingProvider) Pools() []*ServerPool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pools := make([]*ServerPool, 0, len(p.pools))
	for _, pool := range p.pools {
		pools = append(pools, pool)
	}
	return pools
}

// AddServer adds a pool to the ring, re-deriving virtual node placement.
func (p *HashRingProvider) AddServer(pool *ServerPool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools[pool.Address()] = pool
	p.rebuildRing()
}

// RemoveServer drops a pool from the ring by address. The caller is
// responsible for closing the removed pool.
func (p *HashRingProvider) RemoveServer(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pools, addr)
	p.rebuildRing()
}

// Close closes every pool known to the provider.
func (p *HashRingProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, pool := range p.pools {
		pool.pool.Close()
	}
	return firstErr
}

// StaticProvider always routes to a single pool. Useful for the gutter pool
// (a fixed fallback fleet, never hash-routed) and for single-server setups.
type StaticProvider struct {
	pool *ServerPool
}

// NewStaticProvider wraps a single pool as a PoolProvider.
func NewStaticProvider(pool *ServerPool) *StaticProvider {
	return &StaticProvider{pool: pool}
}

func (p *StaticProvider) PickServer(hashKey string) (*ServerPool, error) {
	if p.pool == nil {
		return nil, ErrNoServersAvailable
	}
	return p.pool, nil
}

func (p *StaticProvider) Pools() []*ServerPool {
	if p.pool == nil {
		return nil
	}
	return []*ServerPool{p.pool}
}

func (p *StaticProvider) Close() error {
	if p.pool == nil {
		return nil
	}
	p.pool.pool.Close()
	return nil
}
