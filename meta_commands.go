package memcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/pior/memcache/meta"
)

// UsageError is returned when a caller builds a flag combination that's
// nonsensical for the command it's attached to (e.g. a client-flags tag on
// an ma command), caught here before any I/O happens.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

// ErrUsage is the sentinel every UsageError wraps, for errors.Is checks.
var ErrUsage = errors.New("memcache: usage error")

func (e *UsageError) Unwrap() error { return ErrUsage }

func usageErrorf(format string, args ...any) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

// MetaCommands is the thin, validated façade over the meta text protocol:
// one method per command, flags passed through as-is. HighLevelCommands is
// built on top of it; most callers should prefer that instead.
type MetaCommands struct {
	router Router
}

// NewMetaCommands builds a MetaCommands dispatching through router.
func NewMetaCommands(router Router) *MetaCommands {
	return &MetaCommands{router: router}
}

func (m *MetaCommands) send(ctx context.Context, key Key, req *meta.Request) (*meta.Response, error) {
	if err := meta.ValidateKey(key.Key, key.IsUnicode); err != nil {
		return nil, err
	}
	return m.router.Execute(ctx, key, req)
}

// MetaGet issues an mg command with the given flags.
func (m *MetaCommands) MetaGet(ctx context.Context, key Key, flags ...meta.Flag) (*meta.Response, error) {
	return m.send(ctx, key, meta.NewRequest(meta.CmdGet, key.Key, nil, flags...))
}

// MetaSet issues an ms command storing value with the given flags.
func (m *MetaCommands) MetaSet(ctx context.Context, key Key, value []byte, flags ...meta.Flag) (*meta.Response, error) {
	return m.send(ctx, key, meta.NewRequest(meta.CmdSet, key.Key, value, flags...))
}

// MetaDelete issues an md command with the given flags.
func (m *MetaCommands) MetaDelete(ctx context.Context, key Key, flags ...meta.Flag) (*meta.Response, error) {
	return m.send(ctx, key, meta.NewRequest(meta.CmdDelete, key.Key, nil, flags...))
}

// MetaArithmetic issues an ma command with the given flags.
func (m *MetaCommands) MetaArithmetic(ctx context.Context, key Key, flags ...meta.Flag) (*meta.Response, error) {
	if meta.Flags(flags).Has(meta.FlagClientFlags) {
		return nil, usageErrorf("memcache: FlagClientFlags is not valid on an arithmetic (ma) command")
	}
	return m.send(ctx, key, meta.NewRequest(meta.CmdArithmetic, key.Key, nil, flags...))
}

// MetaDebug issues an me command.
func (m *MetaCommands) MetaDebug(ctx context.Context, key Key) (*meta.Response, error) {
	return m.send(ctx, key, meta.NewRequest(meta.CmdDebug, key.Key, nil))
}

// MetaNoOp issues an mn command against every pool known to the router.
// Used to drain pipelines and as a lightweight liveness probe.
func (m *MetaCommands) MetaNoOp(ctx context.Context) error {
	for _, pool := range m.router.Pools() {
		if _, err := pool.Execute(ctx, meta.NewRequest(meta.CmdNoOp, "", nil)); err != nil {
			return err
		}
	}
	return nil
}
