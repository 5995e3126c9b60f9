package memcache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/pior/memcache/meta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHotCacheConfig_Defaults(t *testing.T) {
	cfg := HotCacheConfig{}.withDefaults()

	assert.Equal(t, 10*time.Second, cfg.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.MaxLastAccessAge)
	assert.Equal(t, 1, cfg.ProbabilityFactor)
	assert.Equal(t, 10*time.Second, cfg.MaxStaleWhileRevalidate)
	assert.Equal(t, 32, cfg.Shards)
}

func TestProbabilisticHotCache_Allowed(t *testing.T) {
	p := NewProbabilisticHotCache(nil, HotCacheConfig{AllowedPrefixes: []string{"user:", "session:"}})

	assert.True(t, p.allowed("user:123"))
	assert.True(t, p.allowed("session:abc"))
	assert.False(t, p.allowed("order:1"))

	pAny := NewProbabilisticHotCache(nil, HotCacheConfig{})
	assert.True(t, pAny.allowed("anything"))
}

func TestProbabilisticHotCache_StoreThenLookupFresh(t *testing.T) {
	p := NewProbabilisticHotCache(nil, HotCacheConfig{CacheTTL: time.Minute})

	p.store("k", []byte("data"))

	found, isHot, data := p.lookup("k")
	assert.True(t, found)
	assert.True(t, isHot)
	assert.Equal(t, []byte("data"), data)
}

func TestProbabilisticHotCache_LookupMiss(t *testing.T) {
	p := NewProbabilisticHotCache(nil, HotCacheConfig{})

	found, isHot, data := p.lookup("missing")
	assert.False(t, found)
	assert.False(t, isHot)
	assert.Nil(t, data)
}

func TestProbabilisticHotCache_StaleWhileRevalidate_OneWinnerThenEviction(t *testing.T) {
	p := NewProbabilisticHotCache(nil, HotCacheConfig{
		CacheTTL:                time.Millisecond,
		MaxStaleWhileRevalidate: time.Hour,
	})

	p.store("k", []byte("stale-data"))
	time.Sleep(5 * time.Millisecond)

	// First caller past expiry wins the stale-while-revalidate refresh.
	found, isHot, _ := p.lookup("k")
	assert.False(t, found)
	assert.True(t, isHot, "expired-but-extendable entry should still be reported hot so caller repopulates")

	// A second caller in the same window must not also win it.
	found, isHot, _ = p.lookup("k")
	assert.False(t, found)
	assert.False(t, isHot)
}

func TestProbabilisticHotCache_ExpiredPastStaleWindowIsEvicted(t *testing.T) {
	p := NewProbabilisticHotCache(nil, HotCacheConfig{
		CacheTTL:                time.Millisecond,
		MaxStaleWhileRevalidate: time.Millisecond,
	})

	p.store("k", []byte("data"))
	time.Sleep(10 * time.Millisecond)

	found, isHot, _ := p.lookup("k")
	assert.False(t, found)
	assert.False(t, isHot)

	shard := p.shardFor("k")
	shard.mu.Lock()
	_, stillPresent := shard.store["k"]
	shard.mu.Unlock()
	assert.False(t, stillPresent)
}

func TestProbabilisticHotCache_ClearIfExpired(t *testing.T) {
	p := NewProbabilisticHotCache(nil, HotCacheConfig{CacheTTL: time.Millisecond})
	p.store("k", []byte("data"))
	time.Sleep(5 * time.Millisecond)

	p.clearIfExpired("k")

	shard := p.shardFor("k")
	shard.mu.Lock()
	_, present := shard.store["k"]
	shard.mu.Unlock()
	assert.False(t, present)
}

func vaResponse(data []byte, hit bool, lastAccess int) *meta.Response {
	hitToken := "0"
	if hit {
		hitToken = "1"
	}
	return &meta.Response{
		Status: meta.StatusVA,
		Data:   data,
		Flags: meta.Flags{
			{Type: meta.FlagReturnClientFlags, Token: "0"},
			{Type: meta.FlagReturnHit, Token: hitToken},
			{Type: meta.FlagReturnLastAccess, Token: strconv.Itoa(lastAccess)},
		},
	}
}

func TestProbabilisticHotCache_Get_PromotesOnHotMissThenServesLocally(t *testing.T) {
	calls := 0
	router := &fakeRouter{
		executeFn: func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
			calls++
			return vaResponse([]byte("hello"), true, 0), nil
		},
	}
	inner := NewHighLevelCommands(NewMetaCommands(router), JSONSerializer{}, NewZlibCompressor(0), nil)
	hot := NewProbabilisticHotCache(inner, HotCacheConfig{ProbabilityFactor: 1, MaxLastAccessAge: time.Minute})

	var out1 string
	found, err := hot.Get(context.Background(), "hot-key", &out1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", out1)
	assert.Equal(t, 1, calls)

	var out2 string
	found, err = hot.Get(context.Background(), "hot-key", &out2)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", out2)
	assert.Equal(t, 1, calls, "second Get should be served from the local cache, not the router")
}

func TestProbabilisticHotCache_Get_MissPropagates(t *testing.T) {
	router := &fakeRouter{
		executeFn: func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
			return &meta.Response{Status: meta.StatusEN}, nil
		},
	}
	inner := NewHighLevelCommands(NewMetaCommands(router), JSONSerializer{}, NewZlibCompressor(0), nil)
	hot := NewProbabilisticHotCache(inner, HotCacheConfig{})

	var out string
	found, err := hot.Get(context.Background(), "missing-key", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProbabilisticHotCache_Get_PrefixNotAllowedNeverPromotes(t *testing.T) {
	calls := 0
	router := &fakeRouter{
		executeFn: func(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
			calls++
			return vaResponse([]byte("hello"), true, 0), nil
		},
	}
	inner := NewHighLevelCommands(NewMetaCommands(router), JSONSerializer{}, NewZlibCompressor(0), nil)
	hot := NewProbabilisticHotCache(inner, HotCacheConfig{
		AllowedPrefixes:   []string{"user:"},
		ProbabilityFactor: 1,
		MaxLastAccessAge:  time.Minute,
	})

	var out string
	_, err := hot.Get(context.Background(), "order:1", &out)
	require.NoError(t, err)
	_, err = hot.Get(context.Background(), "order:1", &out)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "a disallowed prefix should never be served from the local cache")
}
