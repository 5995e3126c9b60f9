package memcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/pior/memcache/meta"
)

// RecachePolicy governs the "R" recache-on-near-expiry flag: when the
// item's remaining TTL drops below RecachePolicy.TTL, one caller gets the
// win flag back and is expected to refresh the value while everyone else
// keeps serving the (still valid) cached copy.
type RecachePolicy struct {
	TTL int
}

// DefaultRecachePolicy matches the Python client's default: recache once
// 30 seconds of TTL remain.
var DefaultRecachePolicy = RecachePolicy{TTL: 30}

// LeasePolicy governs GetOrLease's miss-lease retry loop: on a miss, one
// caller wins the lease (and must populate the value) while the others
// retry with exponential backoff until the winner's value shows up or
// retries run out.
type LeasePolicy struct {
	TTL               int
	MissRetries       int
	MissRetryWait     time.Duration
	WaitBackoffFactor float64
	MissMaxRetryWait  time.Duration
}

// DefaultLeasePolicy matches the Python client's default lease tuning.
var DefaultLeasePolicy = LeasePolicy{
	TTL:               30,
	MissRetries:       3,
	MissRetryWait:     time.Second,
	WaitBackoffFactor: 1.2,
	MissMaxRetryWait:  5 * time.Second,
}

// StalePolicy governs what happens to an item on deletion or CAS mismatch:
// whether it's dropped outright or kept around marked stale for a grace
// period, so readers can still serve something while a refresh is in
// flight.
type StalePolicy struct {
	MarkStaleOnDeletionTTL int
	MarkStaleOnCASMismatch bool
}

// SetMode selects ms storage semantics.
type SetMode string

const (
	SetModeSet     SetMode = meta.ModeSet
	SetModeAdd     SetMode = meta.ModeAdd
	SetModeReplace SetMode = meta.ModeReplace
	SetModeAppend  SetMode = meta.ModeAppend
	SetModePrepend SetMode = meta.ModePrepend
)

// ErrUnexpectedResponse is returned when a server answers a command with a
// status that operation's contract doesn't account for (e.g. an mg lease
// miss that comes back as EN instead of a zero-length VA).
var ErrUnexpectedResponse = errors.New("memcache: unexpected response")

// HighLevelCommands implements the ergonomic get/set/delete/lease/delta API
// on top of MetaCommands, translating policy objects into flag sets the way
// the low-level façade expects.
type HighLevelCommands struct {
	meta       *MetaCommands
	serializer Serializer
	compressor Compressor
	onWriteFailure WriteFailureFunc
}

// NewHighLevelCommands builds HighLevelCommands over m.
func NewHighLevelCommands(m *MetaCommands, serializer Serializer, compressor Compressor, onWriteFailure WriteFailureFunc) *HighLevelCommands {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	if compressor == nil {
		compressor = noopCompressor{}
	}
	return &HighLevelCommands{meta: m, serializer: serializer, compressor: compressor, onWriteFailure: onWriteFailure}
}

// SetWriteFailureHandler swaps out h's write-failure callback after
// construction. Used to point several clients at one shared
// WriteFailureEvent (see NewMigratingClientSharingWriteFailures).
func (h *HighLevelCommands) SetWriteFailureHandler(fn WriteFailureFunc) {
	h.onWriteFailure = fn
}

func (h *HighLevelCommands) reportWriteFailure(key Key, kind CmdKind, vivifyTTL int, err error) {
	if h.onWriteFailure == nil {
		return
	}
	if isWriteFailure(kind, vivifyTTL, defaultTouchFailureThreshold, err) {
		h.onWriteFailure(key, err)
	}
}

func toKey(key any) Key {
	switch k := key.(type) {
	case Key:
		return k
	case string:
		return Key{Key: k}
	default:
		panic("memcache: key must be a Key or string")
	}
}

// Set stores value under key with the given ttl (seconds, 0 = infinite).
func (h *HighLevelCommands) Set(ctx context.Context, key any, value any, ttl int, opts ...SetOption) (bool, error) {
	return h.set(ctx, key, value, ttl, true, opts...)
}

func (h *HighLevelCommands) set(ctx context.Context, key any, value any, ttl int, reportFailures bool, opts ...SetOption) (bool, error) {
	k := toKey(key)
	o := applySetOptions(opts)

	data, encoding, err := h.serializer.Marshal(value)
	if err != nil {
		return false, err
	}
	if compressed, ok, cerr := h.compressor.Compress(data); cerr == nil && ok {
		data = compressed
		encoding |= EncodingCompressed
	} else if cerr != nil {
		return false, cerr
	}

	flags := []meta.Flag{
		{Type: meta.FlagTTL, Token: strconv.Itoa(ttl)},
		{Type: meta.FlagClientFlags, Token: strconv.FormatUint(uint64(encoding), 10)},
	}
	if o.noReply {
		flags = append(flags, meta.Flag{Type: meta.FlagQuiet})
	}
	if o.casToken != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagCAS, Token: strconv.FormatUint(*o.casToken, 10)})
		if o.stalePolicy != nil && o.stalePolicy.MarkStaleOnCASMismatch {
			flags = append(flags, meta.Flag{Type: meta.FlagInvalidate})
		}
	}
	if o.mode != "" && o.mode != SetModeSet {
		flags = append(flags, meta.Flag{Type: meta.FlagMode, Token: string(o.mode)})
	}

	resp, err := h.meta.MetaSet(ctx, k, data, flags...)
	if reportFailures {
		h.reportWriteFailure(k, CmdKindSet, 0, err)
	}
	if err != nil {
		return false, err
	}
	return resp.IsSuccess(), nil
}

// Refill stores value under key using add semantics and does not report
// write failures: it's meant to populate a cache miss after a DB read, not
// to write new application state, so a lost refill isn't worth invalidating
// anything over.
func (h *HighLevelCommands) Refill(ctx context.Context, key any, value any, ttl int) (bool, error) {
	return h.set(ctx, key, value, ttl, false, WithSetMode(SetModeAdd))
}

// Delete removes key. Returns false (not an error) if the key didn't exist.
func (h *HighLevelCommands) Delete(ctx context.Context, key any, opts ...DeleteOption) (bool, error) {
	k := toKey(key)
	o := applyDeleteOptions(opts)

	var flags []meta.Flag
	if o.noReply {
		flags = append(flags, meta.Flag{Type: meta.FlagQuiet})
	}
	if o.casToken != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagCAS, Token: strconv.FormatUint(*o.casToken, 10)})
	}
	if o.stalePolicy != nil && o.stalePolicy.MarkStaleOnDeletionTTL > 0 {
		flags = append(flags,
			meta.Flag{Type: meta.FlagInvalidate},
			meta.Flag{Type: meta.FlagTTL, Token: strconv.Itoa(o.stalePolicy.MarkStaleOnDeletionTTL)},
		)
	}

	resp, err := h.meta.MetaDelete(ctx, k, flags...)
	h.reportWriteFailure(k, CmdKindDelete, 0, err)
	if err != nil {
		return false, err
	}
	return resp.IsSuccess(), nil
}

// Invalidate is Delete, except a missing key counts as success: use it when
// you just want the key gone and don't care whether it was ever there.
func (h *HighLevelCommands) Invalidate(ctx context.Context, key any, opts ...DeleteOption) (bool, error) {
	k := toKey(key)
	o := applyDeleteOptions(opts)

	var flags []meta.Flag
	if o.noReply {
		flags = append(flags, meta.Flag{Type: meta.FlagQuiet})
	}
	if o.casToken != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagCAS, Token: strconv.FormatUint(*o.casToken, 10)})
	}
	if o.stalePolicy != nil && o.stalePolicy.MarkStaleOnDeletionTTL > 0 {
		flags = append(flags,
			meta.Flag{Type: meta.FlagInvalidate},
			meta.Flag{Type: meta.FlagTTL, Token: strconv.Itoa(o.stalePolicy.MarkStaleOnDeletionTTL)},
		)
	}

	resp, err := h.meta.MetaDelete(ctx, k, flags...)
	h.reportWriteFailure(k, CmdKindDelete, 0, err)
	if err != nil {
		return false, err
	}
	return resp.IsSuccess() || resp.IsMiss(), nil
}

// Touch refreshes key's TTL without fetching its value.
func (h *HighLevelCommands) Touch(ctx context.Context, key any, ttl int) (bool, error) {
	resp, err := h.meta.MetaGet(ctx, toKey(key), meta.Flag{Type: meta.FlagTTL, Token: strconv.Itoa(ttl)})
	if err != nil {
		return false, err
	}
	return resp.IsSuccess(), nil
}

func defaultGetFlags(returnCAS bool) []meta.Flag {
	flags := []meta.Flag{
		{Type: meta.FlagReturnValue},
		{Type: meta.FlagReturnTTL},
		{Type: meta.FlagReturnClientFlags},
		{Type: meta.FlagReturnLastAccess},
		{Type: meta.FlagReturnHit},
	}
	if returnCAS {
		flags = append(flags, meta.Flag{Type: meta.FlagReturnCAS})
	}
	return flags
}

func (h *HighLevelCommands) decode(resp *meta.Response, out any) error {
	if !resp.HasValue() {
		return nil
	}
	data := resp.Data
	encodingTok, _ := resp.GetFlagToken(meta.FlagReturnClientFlags)
	encoding := Encoding(0)
	if len(encodingTok) > 0 {
		n, err := strconv.ParseUint(string(encodingTok), 10, 32)
		if err == nil {
			encoding = Encoding(n)
		}
	}
	if encoding&EncodingCompressed != 0 {
		plain, err := h.compressor.Decompress(data)
		if err != nil {
			return err
		}
		data = plain
		encoding &^= EncodingCompressed
	}
	return h.serializer.Unmarshal(data, encoding, out)
}

// rawGet runs an mg with the given policies and returns the raw response,
// mimicking a miss (nil response, no error) when the caller won the
// recache/lease race and must repopulate the value itself.
func (h *HighLevelCommands) rawGet(ctx context.Context, key Key, touchTTL int, lease *LeasePolicy, recache *RecachePolicy, returnCAS bool) (*meta.Response, error) {
	flags := defaultGetFlags(returnCAS)
	if lease != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagVivify, Token: strconv.Itoa(lease.TTL)})
	}
	if recache != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagRecache, Token: strconv.Itoa(recache.TTL)})
	}
	if touchTTL >= 0 {
		flags = append(flags, meta.Flag{Type: meta.FlagTTL, Token: strconv.Itoa(touchTTL)})
	}

	resp, err := h.meta.MetaGet(ctx, key, flags...)
	h.reportWriteFailure(key, CmdKindGet, touchTTL, err)
	if err != nil {
		return nil, err
	}
	if resp.IsMiss() {
		return nil, nil
	}
	if !resp.IsSuccess() {
		return nil, ErrUnexpectedResponse
	}
	if resp.HasWinFlag() {
		// We were handed the recache/lease lease: behave exactly like a
		// miss so the caller refreshes the value, but the CAS token (if
		// requested) still comes through for a subsequent CAS write.
		resp.Data = nil
	}
	return resp, nil
}

// Get fetches key's value into out. Returns false on miss.
func (h *HighLevelCommands) Get(ctx context.Context, key any, out any, opts ...GetOption) (bool, error) {
	k := toKey(key)
	o := applyGetOptions(opts)

	resp, err := h.rawGet(ctx, k, o.touchTTL, nil, o.recachePolicy, false)
	if err != nil || resp == nil {
		return false, err
	}
	if !resp.HasValue() {
		return false, nil
	}
	return true, h.decode(resp, out)
}

// GetWithMeta fetches key's value into out like Get, and additionally
// reports whether the server had already served this item before (hit) and
// how many seconds ago it was last accessed. Used by ProbabilisticHotCache
// to decide whether a key is hot enough to promote into the local cache.
func (h *HighLevelCommands) GetWithMeta(ctx context.Context, key any, out any, opts ...GetOption) (found, hit bool, lastAccessSeconds int, err error) {
	k := toKey(key)
	o := applyGetOptions(opts)

	resp, err := h.rawGet(ctx, k, o.touchTTL, nil, o.recachePolicy, false)
	if err != nil || resp == nil {
		return false, false, 0, err
	}
	if tok, ok := resp.GetFlagToken(meta.FlagReturnHit); ok {
		hit = len(tok) > 0 && tok[0] != '0'
	}
	if tok, ok := resp.GetFlagToken(meta.FlagReturnLastAccess); ok {
		lastAccessSeconds, _ = strconv.Atoi(string(tok))
	}
	if !resp.HasValue() {
		return false, hit, lastAccessSeconds, nil
	}
	return true, hit, lastAccessSeconds, h.decode(resp, out)
}

// GetCAS fetches key's value into out and returns its CAS token.
func (h *HighLevelCommands) GetCAS(ctx context.Context, key any, out any, opts ...GetOption) (found bool, cas uint64, err error) {
	k := toKey(key)
	o := applyGetOptions(opts)

	resp, err := h.rawGet(ctx, k, o.touchTTL, nil, o.recachePolicy, true)
	if err != nil || resp == nil {
		return false, 0, err
	}
	if tok, ok := resp.GetFlagToken(meta.FlagReturnCAS); ok {
		cas, _ = strconv.ParseUint(string(tok), 10, 64)
	}
	if !resp.HasValue() {
		return false, cas, nil
	}
	return true, cas, h.decode(resp, out)
}

// MultiGet fetches several keys concurrently. The returned map always has
// an entry for every requested key; a miss maps to found=false.
func (h *HighLevelCommands) MultiGet(ctx context.Context, keys []Key, out func(Key) any, opts ...GetOption) (map[string]bool, error) {
	o := applyGetOptions(opts)
	flags := defaultGetFlags(false)
	if o.recachePolicy != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagRecache, Token: strconv.Itoa(o.recachePolicy.TTL)})
	}
	if o.touchTTL >= 0 {
		flags = append(flags, meta.Flag{Type: meta.FlagTTL, Token: strconv.Itoa(o.touchTTL)})
	}

	responses, errs := h.meta.router.ExecuteMulti(ctx, keys, func(Key) *meta.Request {
		return meta.NewRequest(meta.CmdGet, "", nil, flags...)
	})

	found := make(map[string]bool, len(keys))
	var firstErr error
	for i, key := range keys {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			found[key.Key] = false
			continue
		}
		resp := responses[i]
		if resp == nil || resp.IsMiss() || !resp.HasValue() || resp.HasWinFlag() {
			found[key.Key] = false
			continue
		}
		if err := h.decode(resp, out(key)); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			found[key.Key] = false
			continue
		}
		found[key.Key] = true
	}
	return found, firstErr
}

// GetOrLease fetches key, or on miss, arranges for exactly one caller to
// receive a "win" and be responsible for repopulating the value while
// others retry with backoff until it appears (or retries are exhausted).
func (h *HighLevelCommands) GetOrLease(ctx context.Context, key any, out any, lease LeasePolicy, opts ...GetOption) (found bool, cas uint64, err error) {
	if lease.MissRetries <= 0 {
		return false, 0, errors.New("memcache: LeasePolicy.MissRetries must be > 0")
	}
	k := toKey(key)
	o := applyGetOptions(opts)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := time.Duration(float64(lease.MissRetryWait) * pow(lease.WaitBackoffFactor, attempt-1))
			if wait > lease.MissMaxRetryWait {
				wait = lease.MissMaxRetryWait
			}
			select {
			case <-ctx.Done():
				return false, 0, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, rerr := h.rawGet(ctx, k, o.touchTTL, &lease, o.recachePolicy, true)
		if rerr != nil {
			return false, 0, rerr
		}
		if resp == nil {
			return false, 0, ErrUnexpectedResponse
		}

		var casTok uint64
		if tok, ok := resp.GetFlagToken(meta.FlagReturnCAS); ok {
			casTok, _ = strconv.ParseUint(string(tok), 10, 64)
		}

		if !resp.HasValue() {
			// Empty lease placeholder: either we won it (caller must
			// populate) or we lost and must keep waiting for the winner.
			if resp.HasWinFlag() {
				return false, casTok, nil
			}
			if attempt+1 < lease.MissRetries {
				continue
			}
			return false, casTok, nil
		}

		return true, casTok, h.decode(resp, out)
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Delta applies delta (positive increments, negative decrements) to a
// numeric counter. Returns false if the key doesn't exist.
func (h *HighLevelCommands) Delta(ctx context.Context, key any, delta int64, opts ...DeltaOption) (bool, error) {
	k := toKey(key)
	flags := deltaFlags(delta, applyDeltaOptions(opts))
	resp, err := h.meta.MetaArithmetic(ctx, k, flags...)
	h.reportWriteFailure(k, CmdKindArithmetic, 0, err)
	if err != nil {
		return false, err
	}
	return resp.IsSuccess(), nil
}

// DeltaInitialize is Delta, but auto-creates the counter with initialValue
// (TTL initialTTL) if it doesn't already exist.
func (h *HighLevelCommands) DeltaInitialize(ctx context.Context, key any, delta int64, initialValue uint64, initialTTL int, opts ...DeltaOption) (bool, error) {
	k := toKey(key)
	o := applyDeltaOptions(opts)
	flags := deltaFlags(delta, o)
	flags = append(flags,
		meta.Flag{Type: meta.FlagInitialValue, Token: strconv.FormatUint(initialValue, 10)},
		meta.Flag{Type: meta.FlagVivify, Token: strconv.Itoa(initialTTL)},
	)
	resp, err := h.meta.MetaArithmetic(ctx, k, flags...)
	h.reportWriteFailure(k, CmdKindArithmetic, 0, err)
	if err != nil {
		return false, err
	}
	return resp.IsSuccess(), nil
}

// DeltaAndGet applies delta and returns the resulting value.
func (h *HighLevelCommands) DeltaAndGet(ctx context.Context, key any, delta int64, opts ...DeltaOption) (int64, bool, error) {
	k := toKey(key)
	o := applyDeltaOptions(opts)
	o.returnValue = true
	flags := deltaFlags(delta, o)
	resp, err := h.meta.MetaArithmetic(ctx, k, flags...)
	if err != nil {
		return 0, false, err
	}
	if !resp.IsSuccess() || !resp.HasValue() {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(string(resp.Data), 10, 64)
	return n, err == nil, err
}

// DeltaInitializeAndGet combines DeltaInitialize and DeltaAndGet.
func (h *HighLevelCommands) DeltaInitializeAndGet(ctx context.Context, key any, delta int64, initialValue uint64, initialTTL int, opts ...DeltaOption) (int64, bool, error) {
	k := toKey(key)
	o := applyDeltaOptions(opts)
	o.returnValue = true
	flags := deltaFlags(delta, o)
	flags = append(flags,
		meta.Flag{Type: meta.FlagInitialValue, Token: strconv.FormatUint(initialValue, 10)},
		meta.Flag{Type: meta.FlagVivify, Token: strconv.Itoa(initialTTL)},
	)
	resp, err := h.meta.MetaArithmetic(ctx, k, flags...)
	if err != nil {
		return 0, false, err
	}
	if !resp.IsSuccess() || !resp.HasValue() {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(string(resp.Data), 10, 64)
	return n, err == nil, err
}

func deltaFlags(delta int64, o deltaOptions) []meta.Flag {
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	flags := []meta.Flag{{Type: meta.FlagDelta, Token: strconv.FormatInt(abs, 10)}}
	if o.returnValue {
		flags = append(flags, meta.Flag{Type: meta.FlagReturnValue})
	}
	if o.noReply {
		flags = append(flags, meta.Flag{Type: meta.FlagQuiet})
	}
	if o.refreshTTL != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagTTL, Token: strconv.Itoa(*o.refreshTTL)})
	}
	if o.casToken != nil {
		flags = append(flags, meta.Flag{Type: meta.FlagCAS, Token: strconv.FormatUint(*o.casToken, 10)})
	}
	if delta < 0 {
		flags = append(flags, meta.Flag{Type: meta.FlagMode, Token: meta.ModeDecrement})
	}
	return flags
}
