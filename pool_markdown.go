package memcache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrServerMarkedDown is returned by a mark-down-guarded constructor instead
// of attempting to dial a server that failed recently.
var ErrServerMarkedDown = errors.New("memcache: server marked down")

// markDownGuard wraps a connection constructor so that, after a dial
// failure, further dial attempts are short-circuited until markDownPeriod
// has elapsed. This mirrors the Python client's literal timestamp approach:
// a single int64 read per attempt, no retry storm against a server that just
// refused a connection.
//
// It sits in front of the connection pool (puddle or channel), guarding the
// dial path specifically. It is deliberately independent from the circuit
// breaker wrapped around ServerPool.Execute, which instead guards the
// established-connection request path: a server can be dialable but still
// erroring on every request, or vice versa (briefly unreachable but with a
// warm pool of healthy connections already open).
type markDownGuard struct {
	constructor func(ctx context.Context) (*Connection, error)
	period      time.Duration

	markedDownUntil atomic.Int64 // unix nanos; 0 means not marked down
}

// newMarkDownGuard returns constructor wrapped with mark-down tracking.
// period <= 0 disables mark-down entirely (every failure is dialed again
// immediately on the next attempt).
func newMarkDownGuard(constructor func(ctx context.Context) (*Connection, error), period time.Duration) *markDownGuard {
	return &markDownGuard{constructor: constructor, period: period}
}

func (g *markDownGuard) dial(ctx context.Context) (*Connection, error) {
	if g.period <= 0 {
		return g.constructor(ctx)
	}

	if until := g.markedDownUntil.Load(); until != 0 && time.Now().UnixNano() < until {
		return nil, ErrServerMarkedDown
	}

	conn, err := g.constructor(ctx)
	if err != nil {
		g.markedDownUntil.Store(time.Now().Add(g.period).UnixNano())
		return nil, err
	}

	g.markedDownUntil.Store(0)
	return conn, nil
}

// MarkedDownUntil returns the time the server is marked down until, or the
// zero Time if it isn't currently marked down.
func (g *markDownGuard) MarkedDownUntil() time.Time {
	until := g.markedDownUntil.Load()
	if until == 0 {
		return time.Time{}
	}
	t := time.Unix(0, until)
	if t.Before(time.Now()) {
		return time.Time{}
	}
	return t
}
