package memcache

// WriteFailureFunc is called whenever a write-shaped command (ms, md, or an
// mg whose touch TTL is at or below the touch-failure threshold) fails
// against a server. It
// exists so a router fronting a secondary fleet (see GutterRouter) can
// invalidate its own cache entry for the key rather than let it go stale
// silently: if the primary write didn't land, anything cached about that
// key elsewhere is now unreliable.
type WriteFailureFunc func(key Key, err error)

// isWriteFailure reports whether err, returned from a command against cmd,
// should be treated as a write failure worth propagating to WriteFailureFunc.
//
// ms and md are always write failures when they error. mg only counts when
// it carried a touch TTL (the T flag) above zero and at or below
// touchFailureThreshold: a failed short-TTL "touch" is assumed to matter
// enough to the caller to be worth invalidating over, while a long-TTL
// touch miss is not.
func isWriteFailure(cmd CmdKind, touchTTL int, touchFailureThreshold int, err error) bool {
	if err == nil {
		return false
	}
	switch cmd {
	case CmdKindSet, CmdKindDelete:
		return true
	case CmdKindGet:
		return touchTTL > 0 && touchTTL <= touchFailureThreshold
	default:
		return false
	}
}

// CmdKind classifies a high-level operation for write-failure accounting.
type CmdKind int

const (
	CmdKindGet CmdKind = iota
	CmdKindSet
	CmdKindDelete
	CmdKindArithmetic
)

// defaultTouchFailureThreshold matches the Python client's default: only an
// mg with a touch TTL at or below 50 seconds counts as a write failure worth
// propagating.
const defaultTouchFailureThreshold = 50
