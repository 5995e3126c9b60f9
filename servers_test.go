package memcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticServers_List(t *testing.T) {
	servers := NewStaticServers("server1:11211", "server2:11211", "server3:11211")

	list := servers.List()

	assert.Len(t, list, 3)
	assert.Equal(t, "server1:11211", list[0])
	assert.Equal(t, "server2:11211", list[1])
	assert.Equal(t, "server3:11211", list[2])
}

func TestStaticServers_EmptyList(t *testing.T) {
	servers := NewStaticServers()

	list := servers.List()

	assert.Len(t, list, 0)
}

func TestStaticServers_SingleServer(t *testing.T) {
	servers := NewStaticServers("localhost:11211")

	list := servers.List()

	assert.Len(t, list, 1)
	assert.Equal(t, "localhost:11211", list[0])
}

func TestStaticServers_ConcurrentAccess(t *testing.T) {
	servers := NewStaticServers("server1:11211", "server2:11211", "server3:11211")

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			list := servers.List()
			assert.Len(t, list, 3)
		}()
	}

	wg.Wait()
}

// fakePools builds minimal PoolProvider-routable *ServerPool stand-ins: the
// hash ring only ever needs each pool's Address(), so pools with no live
// connections are fine for routing tests.
func fakePools(addrs ...string) []*ServerPool {
	pools := make([]*ServerPool, len(addrs))
	for i, addr := range addrs {
		pools[i] = &ServerPool{addr: addr}
	}
	return pools
}

func TestHashRingProvider_SingleServer(t *testing.T) {
	provider := NewHashRingProvider(fakePools("localhost:11211"), 0)

	pool, err := provider.PickServer("test-key")
	assert.NoError(t, err)
	assert.Equal(t, "localhost:11211", pool.Address())
}

func TestHashRingProvider_ConsistentRouting(t *testing.T) {
	servers := NewStaticServers("server1:11211", "server2:11211", "server3:11211")
	provider := NewHashRingProvider(fakePools(servers.List()...), 0)

	key := "consistent-key"
	pool1, err := provider.PickServer(key)
	assert.NoError(t, err)

	for range 10 {
		pool, err := provider.PickServer(key)
		assert.NoError(t, err)
		assert.Equal(t, pool1.Address(), pool.Address())
	}
}

func TestHashRingProvider_Concurrent(t *testing.T) {
	provider := NewHashRingProvider(fakePools("server1:11211", "server2:11211", "server3:11211"), 0)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			key := string(rune('a' + index%26))
			pool, err := provider.PickServer(key)
			assert.NoError(t, err)
			assert.NotEmpty(t, pool.Address())
		}(i)
	}

	wg.Wait()
}

func TestHashRingProvider_NoServers(t *testing.T) {
	provider := NewHashRingProvider(nil, 0)

	_, err := provider.PickServer("any-key")
	assert.ErrorIs(t, err, ErrNoServersAvailable)
}
