package memcache

import "context"

// CacheAPI is the high-level surface both ClientWrapper and MigratingClient
// operate against: anything that can Set/Get/Delete/Delta a key. *Client and
// *HighLevelCommands both satisfy it.
type CacheAPI interface {
	Set(ctx context.Context, key any, value any, ttl int, opts ...SetOption) (bool, error)
	Refill(ctx context.Context, key any, value any, ttl int) (bool, error)
	Delete(ctx context.Context, key any, opts ...DeleteOption) (bool, error)
	Invalidate(ctx context.Context, key any, opts ...DeleteOption) (bool, error)
	Touch(ctx context.Context, key any, ttl int) (bool, error)
	Get(ctx context.Context, key any, out any, opts ...GetOption) (bool, error)
	GetWithMeta(ctx context.Context, key any, out any, opts ...GetOption) (found, hit bool, lastAccessSeconds int, err error)
	GetCAS(ctx context.Context, key any, out any, opts ...GetOption) (found bool, cas uint64, err error)
	MultiGet(ctx context.Context, keys []Key, out func(Key) any, opts ...GetOption) (map[string]bool, error)
	GetOrLease(ctx context.Context, key any, out any, lease LeasePolicy, opts ...GetOption) (found bool, cas uint64, err error)
	Delta(ctx context.Context, key any, delta int64, opts ...DeltaOption) (bool, error)
	DeltaInitialize(ctx context.Context, key any, delta int64, initialValue uint64, initialTTL int, opts ...DeltaOption) (bool, error)
	DeltaAndGet(ctx context.Context, key any, delta int64, opts ...DeltaOption) (int64, bool, error)
	DeltaInitializeAndGet(ctx context.Context, key any, delta int64, initialValue uint64, initialTTL int, opts ...DeltaOption) (int64, bool, error)
}

// ClientWrapper forwards every CacheAPI method to an inner implementation.
// It exists to be embedded by callers who want to add cross-cutting
// behavior (timing, logging, tracing) around a subset of methods without
// reimplementing the rest: embed ClientWrapper, override the methods you
// care about, and everything else falls through unchanged.
type ClientWrapper struct {
	CacheAPI
}

// NewClientWrapper wraps inner, forwarding every call to it by default.
func NewClientWrapper(inner CacheAPI) *ClientWrapper {
	return &ClientWrapper{CacheAPI: inner}
}
