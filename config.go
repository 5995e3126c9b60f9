package memcache

import (
	"context"
	"net"
	"time"
)

// Dialer dials new connections for a server pool. net.Dialer satisfies this.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PoolFactory builds a Pool given a connection constructor and a max size.
// NewPuddlePool and NewChannelPool both satisfy this signature.
type PoolFactory func(constructor func(ctx context.Context) (*Connection, error), maxSize int32) (Pool, error)

// Config holds the per-server-pool settings shared by every ServerPool in a
// fleet. It is built by New through functional Options; callers should not
// need to construct it directly.
type Config struct {
	Dialer  Dialer
	MaxSize int32

	NewPool           PoolFactory
	NewCircuitBreaker func(addr string) CircuitBreaker

	// MarkDownPeriod is how long a server is skipped after a dial failure.
	// Zero disables mark-down.
	MarkDownPeriod time.Duration

	// VirtualNodes is the number of hash-ring points per server. Zero
	// selects virtualNodesPerServer.
	VirtualNodes int

	KeyEncoder KeyEncoder

	Serializer  Serializer
	Compressor  Compressor
	WriteFailed WriteFailureFunc

	Logger Logger

	// customDialer is set by WithDialer so WithDialTimeout leaves a
	// caller-supplied dialer alone.
	customDialer bool
}

// defaultConfig returns a Config with production-sensible defaults: a 5s
// dial timeout, 8 pooled connections per server via puddle, a 60s circuit
// breaker window, and a 30s mark-down period.
func defaultConfig() Config {
	return Config{
		Dialer:            &net.Dialer{Timeout: 5 * time.Second},
		MaxSize:           8,
		NewPool:           NewPuddlePool,
		NewCircuitBreaker: NewGobreakerConfig(3, 60*time.Second, 10*time.Second),
		MarkDownPeriod:    30 * time.Second,
		VirtualNodes:      virtualNodesPerServer,
		KeyEncoder:        DefaultKeyEncoder,
		Serializer:        JSONSerializer{},
		Compressor:        NewZlibCompressor(DefaultCompressionThreshold),
		Logger:            defaultLogger(),
	}
}

// Option configures a Client built with New.
type Option func(*Config)

// WithDialer overrides the default *net.Dialer used to open new connections.
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
		c.customDialer = true
	}
}

// WithDialTimeout sets the dial timeout on the default *net.Dialer. It has
// no effect if WithDialer has also been passed.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		if c.customDialer {
			return
		}
		if nd, ok := c.Dialer.(*net.Dialer); ok {
			nd.Timeout = d
		}
	}
}

// WithPoolSize sets the maximum number of pooled connections per server.
func WithPoolSize(n int32) Option {
	return func(c *Config) { c.MaxSize = n }
}

// WithChannelPool selects the hand-rolled channel-based pool instead of the
// puddle-backed default. Useful when puddle's extra bookkeeping isn't
// wanted, e.g. embedded or very memory-constrained deployments.
func WithChannelPool() Option {
	return func(c *Config) { c.NewPool = NewChannelPool }
}

// WithCircuitBreaker overrides the per-server circuit breaker factory.
// Pass a func returning nil to disable circuit breaking entirely.
func WithCircuitBreaker(factory func(addr string) CircuitBreaker) Option {
	return func(c *Config) { c.NewCircuitBreaker = factory }
}

// WithMarkDownPeriod sets how long a server is skipped after a dial
// failure. Zero disables mark-down.
func WithMarkDownPeriod(d time.Duration) Option {
	return func(c *Config) { c.MarkDownPeriod = d }
}

// WithVirtualNodes sets the hash ring density per server.
func WithVirtualNodes(n int) Option {
	return func(c *Config) { c.VirtualNodes = n }
}

// WithKeyEncoder overrides how Key values are turned into wire keys.
func WithKeyEncoder(enc KeyEncoder) Option {
	return func(c *Config) { c.KeyEncoder = enc }
}

// WithSerializer overrides the default JSON serializer used by the typed
// Get/Set helpers.
func WithSerializer(s Serializer) Option {
	return func(c *Config) { c.Serializer = s }
}

// WithCompression sets the zlib compression threshold in bytes. Values
// below the threshold are stored uncompressed. A threshold of 0 disables
// compression.
func WithCompression(thresholdBytes int) Option {
	return func(c *Config) { c.Compressor = NewZlibCompressor(thresholdBytes) }
}

// WithLogger overrides the logger used for dial failures, mark-down
// transitions, and circuit breaker state changes. Pass slog.New with a
// discard handler to silence ambient logging entirely.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithWriteFailureHandler registers a callback invoked whenever a write
// command (ms/md, or an mg whose touch TTL is at or below 50s) fails against a
// server, before the error is returned to the caller. Used to drive
// invalidation of secondary caches (e.g. a gutter pool) on write failure.
func WithWriteFailureHandler(fn WriteFailureFunc) Option {
	return func(c *Config) { c.WriteFailed = fn }
}
