package memcache

import (
	"bytes"
	"context"
	"time"

	"github.com/pior/memcache/meta"
)

func NewServerPool(addr string, config Config) (*ServerPool, error) {
	logger := config.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	dial := func(ctx context.Context) (*Connection, error) {
		netConn, err := config.Dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			logger.Warn("memcache: dial failed", "addr", addr, "error", err)
			return nil, err
		}
		return NewConnection(netConn), nil
	}

	guard := newMarkDownGuard(dial, config.MarkDownPeriod)

	pool, err := config.NewPool(guard.dial, config.MaxSize)
	if err != nil {
		return nil, err
	}

	return &ServerPool{
		addr:           addr,
		pool:           pool,
		markDown:       guard,
		circuitBreaker: newLoggingCircuitBreaker(config.NewCircuitBreaker(addr), logger, addr),
	}, nil
}

// ServerPool wraps a pool, a circuit breaker and a mark-down guard for a
// single server address.
type ServerPool struct {
	addr           string
	pool           Pool
	markDown       *markDownGuard
	circuitBreaker CircuitBreaker
}

// MarkedDownUntil returns the time the server is marked down until, or the
// zero Time if it is currently dialable.
func (sp *ServerPool) MarkedDownUntil() time.Time {
	return sp.markDown.MarkedDownUntil()
}

func (sp *ServerPool) Address() string {
	return sp.addr
}

// ServerPoolStats contains stats for a single server pool
type ServerPoolStats struct {
	Addr                string
	PoolStats           PoolStats
	CircuitBreakerState CircuitBreakerState
	MarkedDownUntil     time.Time
}

func (sp *ServerPool) Stats() ServerPoolStats {
	stats := ServerPoolStats{
		Addr:            sp.addr,
		PoolStats:       sp.pool.Stats(),
		MarkedDownUntil: sp.MarkedDownUntil(),
	}
	if sp.circuitBreaker != nil {
		stats.CircuitBreakerState = sp.circuitBreaker.State()
	}
	return stats
}

// Execute executes a single request-response cycle with proper connection management.
// It handles acquiring a connection, sending the request, reading the response, and
// releasing/destroying the connection based on error conditions.
// The request is wrapped with the server's circuit breaker.
func (sp *ServerPool) Execute(ctx context.Context, req *meta.Request) (*meta.Response, error) {
	if sp.circuitBreaker == nil {
		return sp.execRequestDirect(ctx, req)
	}

	return sp.circuitBreaker.Execute(func() (*meta.Response, error) {
		return sp.execRequestDirect(ctx, req)
	})
}

// execRequestDirect performs the actual request execution without circuit breaker.
func (sp *ServerPool) execRequestDirect(ctx context.Context, req *meta.Request) (*meta.Response, error) {
	resource, err := sp.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	conn := resource.Value()

	resp, err := conn.Send(req)
	if err != nil {
		if meta.ShouldCloseConnection(err) {
			resource.Destroy()
		} else {
			resource.Release()
		}
		return nil, err
	}

	// resp.Data may borrow the connection's read buffer, which the next
	// borrower of this connection overwrites; copy it before releasing.
	if resp.Data != nil {
		resp.Data = bytes.Clone(resp.Data)
	}
	resource.Release()
	return resp, nil
}
