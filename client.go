package memcache

import (
	"context"

	"github.com/pior/memcache/meta"
)

// Client is a memcached meta-protocol client fronting a fleet of servers.
// It embeds *HighLevelCommands, so callers usually just do
// client.Get(ctx, "key", &dest) / client.Set(ctx, "key", value, ttl).
// The low-level *MetaCommands and Router are also reachable for callers who
// need raw flag control or custom routing.
type Client struct {
	*HighLevelCommands

	Meta   *MetaCommands
	Router Router
}

// New builds a Client fronting the given server addresses with a
// consistent-hash router. Pass opts to override pooling, circuit breaking,
// mark-down, key encoding, serialization, or compression defaults.
func New(addrs []string, opts ...Option) (*Client, error) {
	if len(addrs) == 0 {
		return nil, ErrNoServersAvailable
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	pools := make([]*ServerPool, 0, len(addrs))
	for _, addr := range addrs {
		pool, err := NewServerPool(addr, cfg)
		if err != nil {
			for _, p := range pools {
				p.pool.Close()
			}
			return nil, err
		}
		pools = append(pools, pool)
	}

	provider := NewHashRingProvider(pools, cfg.VirtualNodes)
	router := NewDefaultRouter(provider, cfg.KeyEncoder)
	metaCmds := NewMetaCommands(router)
	high := NewHighLevelCommands(metaCmds, cfg.Serializer, cfg.Compressor, cfg.WriteFailed)

	return &Client{
		HighLevelCommands: high,
		Meta:              metaCmds,
		Router:            router,
	}, nil
}

// NewFromServers is New, taking a Servers provider instead of a raw address
// slice. Useful when the server list comes from something other than a
// static config literal (e.g. a discovery client wrapped in Servers).
func NewFromServers(servers Servers, opts ...Option) (*Client, error) {
	return New(servers.List(), opts...)
}

// NewWithGutter builds a Client like New, but falls back requests that
// error against the primary fleet (addrs) to a secondary fleet (gutterAddrs)
// instead of failing outright. Writes to the gutter don't report write
// failures, and items stored there are capped to gutterMaxTTL.
func NewWithGutter(addrs, gutterAddrs []string, gutterMaxTTL int, opts ...Option) (*Client, error) {
	primary, err := New(addrs, opts...)
	if err != nil {
		return nil, err
	}
	gutter, err := New(gutterAddrs, opts...)
	if err != nil {
		primary.Close()
		return nil, err
	}

	router := NewGutterRouter(primary.Router, gutter.Router, gutterMaxTTL)
	metaCmds := NewMetaCommands(router)

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	high := NewHighLevelCommands(metaCmds, cfg.Serializer, cfg.Compressor, cfg.WriteFailed)

	return &Client{
		HighLevelCommands: high,
		Meta:              metaCmds,
		Router:            router,
	}, nil
}

// Ping sends an mn no-op to every server, returning the first error seen.
func (c *Client) Ping(ctx context.Context) error {
	return c.Meta.MetaNoOp(ctx)
}

// Stats returns per-server pool/circuit-breaker/mark-down statistics.
func (c *Client) Stats() []ServerPoolStats {
	pools := c.Router.Pools()
	stats := make([]ServerPoolStats, len(pools))
	for i, p := range pools {
		stats[i] = p.Stats()
	}
	return stats
}

// Close closes every server pool known to the client.
func (c *Client) Close() error {
	return c.Router.Close()
}

// MetaGet is the low-level mg façade, exposed on Client for convenience.
func (c *Client) MetaGet(ctx context.Context, key Key, flags ...meta.Flag) (*meta.Response, error) {
	return c.Meta.MetaGet(ctx, key, flags...)
}
