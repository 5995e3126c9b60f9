package memcache

import (
	"context"
	"strconv"

	"github.com/pior/memcache/meta"
	"golang.org/x/sync/errgroup"
)

// Router turns a Key into a server round-trip. It is the seam between the
// key-addressed high-level API and the pool/provider layer that only knows
// about server addresses.
type Router interface {
	Execute(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error)

	// ExecuteMulti runs one request per key concurrently and returns
	// responses in the same order as keys. A per-key error does not abort
	// the others; it is reported back at that key's index.
	ExecuteMulti(ctx context.Context, keys []Key, build func(key Key) *meta.Request) ([]*meta.Response, []error)

	Pools() []*ServerPool
	Close() error
}

// DefaultRouter hashes each key onto a single PoolProvider. This is the
// router used for the main fleet: one key, one server, no fallback.
type DefaultRouter struct {
	provider   PoolProvider
	keyEncoder KeyEncoder
}

// NewDefaultRouter builds a DefaultRouter over provider.
func NewDefaultRouter(provider PoolProvider, keyEncoder KeyEncoder) *DefaultRouter {
	if keyEncoder == nil {
		keyEncoder = DefaultKeyEncoder
	}
	return &DefaultRouter{provider: provider, keyEncoder: keyEncoder}
}

func (r *DefaultRouter) Execute(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
	pool, err := r.provider.PickServer(key.HashKey())
	if err != nil {
		return nil, err
	}
	wireKey, base64Encoded, err := r.keyEncoder(key)
	if err != nil {
		return nil, err
	}
	req.Key = wireKey
	if base64Encoded && !req.HasFlag(meta.FlagBase64Key) {
		req.AddFlag(meta.Flag{Type: meta.FlagBase64Key})
	}
	return pool.Execute(ctx, req)
}

func (r *DefaultRouter) ExecuteMulti(ctx context.Context, keys []Key, build func(key Key) *meta.Request) ([]*meta.Response, []error) {
	responses := make([]*meta.Response, len(keys))
	errs := make([]error, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			responses[i], errs[i] = r.Execute(ctx, key, build(key))
			return nil
		})
	}
	_ = g.Wait()

	return responses, errs
}

func (r *DefaultRouter) Pools() []*ServerPool { return r.provider.Pools() }
func (r *DefaultRouter) Close() error         { return r.provider.Close() }

// GutterRouter wraps a primary Router with a fallback fleet (the "gutter
// pool") used when the primary server is unreachable or erroring, so a
// single dead host degrades to a shared emergency cache instead of an
// outright failure. Gutter writes never report write failures upstream:
// a lost write to the gutter doesn't invalidate anything, since the gutter
// itself is a best-effort fallback, not a consistency-bearing tier.
type GutterRouter struct {
	primary Router
	gutter  Router
	maxTTL  int
}

// NewGutterRouter wraps primary with gutter as a fallback for requests that
// fail against primary with a server-level error (not a protocol response
// like NF/EX/NS, which are meaningful answers, not failures). maxTTL caps
// the TTL of anything written into the gutter so stale fallback entries
// don't linger indefinitely once the primary recovers; 0 means "use the
// request's own TTL unchanged".
func NewGutterRouter(primary, gutter Router, maxTTL int) *GutterRouter {
	return &GutterRouter{primary: primary, gutter: gutter, maxTTL: maxTTL}
}

func (r *GutterRouter) Execute(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
	resp, err := r.primary.Execute(ctx, key, req)
	if err == nil {
		return resp, nil
	}

	gutterReq := *req
	if r.maxTTL > 0 {
		gutterReq.Flags = append(req.Flags[:0:0], req.Flags...)
		clampTTLFlags(&gutterReq, r.maxTTL)
	}
	return r.gutter.Execute(ctx, key, &gutterReq)
}

func (r *GutterRouter) ExecuteMulti(ctx context.Context, keys []Key, build func(key Key) *meta.Request) ([]*meta.Response, []error) {
	responses, errs := r.primary.ExecuteMulti(ctx, keys, build)

	var fallbackKeys []Key
	var fallbackIdx []int
	for i, err := range errs {
		if err != nil {
			fallbackKeys = append(fallbackKeys, keys[i])
			fallbackIdx = append(fallbackIdx, i)
		}
	}
	if len(fallbackKeys) == 0 {
		return responses, errs
	}

	gutterBuild := func(key Key) *meta.Request {
		req := build(key)
		if r.maxTTL > 0 {
			clampTTLFlags(req, r.maxTTL)
		}
		return req
	}
	gutterResp, gutterErrs := r.gutter.ExecuteMulti(ctx, fallbackKeys, gutterBuild)
	for j, idx := range fallbackIdx {
		responses[idx] = gutterResp[j]
		errs[idx] = gutterErrs[j]
	}
	return responses, errs
}

func (r *GutterRouter) Pools() []*ServerPool {
	return append(r.primary.Pools(), r.gutter.Pools()...)
}

func (r *GutterRouter) Close() error {
	err := r.primary.Close()
	if gerr := r.gutter.Close(); gerr != nil {
		err = gerr
	}
	return err
}

// EphemeralRouter wraps another Router and clamps every TTL-bearing flag
// (T, N, R) to maxTTL before dispatch. It's for fleets of short-lived,
// low-durability servers (e.g. spot/ephemeral nodes) where the operator
// never wants an item to outlive the instance by much, regardless of what
// TTL the caller asked for.
type EphemeralRouter struct {
	inner  Router
	maxTTL int
}

// NewEphemeralRouter wraps inner, capping all TTL flags to maxTTL.
func NewEphemeralRouter(inner Router, maxTTL int) *EphemeralRouter {
	return &EphemeralRouter{inner: inner, maxTTL: maxTTL}
}

func (r *EphemeralRouter) Execute(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
	clampTTLFlags(req, r.maxTTL)
	return r.inner.Execute(ctx, key, req)
}

func (r *EphemeralRouter) ExecuteMulti(ctx context.Context, keys []Key, build func(key Key) *meta.Request) ([]*meta.Response, []error) {
	wrapped := func(key Key) *meta.Request {
		req := build(key)
		clampTTLFlags(req, r.maxTTL)
		return req
	}
	return r.inner.ExecuteMulti(ctx, keys, wrapped)
}

func (r *EphemeralRouter) Pools() []*ServerPool { return r.inner.Pools() }
func (r *EphemeralRouter) Close() error         { return r.inner.Close() }

// clampTTLFlags lowers any T/N/R flag token in req to maxTTL if it currently
// asks for more (or for "infinite", encoded as 0 or negative).
func clampTTLFlags(req *meta.Request, maxTTL int) {
	for i, f := range req.Flags {
		switch f.Type {
		case meta.FlagTTL, meta.FlagVivify, meta.FlagRecache:
			ttl, err := strconv.Atoi(f.Token)
			if err != nil {
				continue
			}
			if ttl <= 0 || ttl > maxTTL {
				req.Flags[i].Token = strconv.Itoa(maxTTL)
			}
		}
	}
}
