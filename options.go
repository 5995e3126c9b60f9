package memcache

// Per-call functional options for HighLevelCommands. Kept as small value
// structs built by apply*Options rather than a single shared options type,
// since Set/Delete/Get/Delta each accept a different subset of knobs.

type setOptions struct {
	noReply     bool
	casToken    *uint64
	stalePolicy *StalePolicy
	mode        SetMode
}

// SetOption configures Set.
type SetOption func(*setOptions)

func applySetOptions(opts []SetOption) setOptions {
	o := setOptions{mode: SetModeSet}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithNoReply suppresses the server's success response (quiet mode).
func WithNoReply() SetOption { return func(o *setOptions) { o.noReply = true } }

// WithCASToken makes the set conditional on the item's current CAS value
// matching casToken.
func WithCASToken(casToken uint64) SetOption {
	return func(o *setOptions) { o.casToken = &casToken }
}

// WithStalePolicy attaches a StalePolicy to Set (for CAS-mismatch handling).
func WithStalePolicy(p StalePolicy) SetOption {
	return func(o *setOptions) { o.stalePolicy = &p }
}

// WithSetMode overrides the default "set unconditionally" storage mode.
func WithSetMode(mode SetMode) SetOption {
	return func(o *setOptions) { o.mode = mode }
}

type deleteOptions struct {
	noReply     bool
	casToken    *uint64
	stalePolicy *StalePolicy
}

// DeleteOption configures Delete/Invalidate.
type DeleteOption func(*deleteOptions)

func applyDeleteOptions(opts []DeleteOption) deleteOptions {
	var o deleteOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithDeleteNoReply suppresses the server's success response.
func WithDeleteNoReply() DeleteOption { return func(o *deleteOptions) { o.noReply = true } }

// WithDeleteCASToken makes the delete conditional on a matching CAS value.
func WithDeleteCASToken(casToken uint64) DeleteOption {
	return func(o *deleteOptions) { o.casToken = &casToken }
}

// WithDeleteStalePolicy attaches a StalePolicy governing whether the item
// is marked stale instead of removed outright.
func WithDeleteStalePolicy(p StalePolicy) DeleteOption {
	return func(o *deleteOptions) { o.stalePolicy = &p }
}

type getOptions struct {
	touchTTL      int
	recachePolicy *RecachePolicy
}

// GetOption configures Get/GetCAS/MultiGet/GetOrLease.
type GetOption func(*getOptions)

func applyGetOptions(opts []GetOption) getOptions {
	o := getOptions{touchTTL: -1}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithTouchTTL refreshes the item's TTL as part of the get.
func WithTouchTTL(ttl int) GetOption {
	return func(o *getOptions) { o.touchTTL = ttl }
}

// WithRecachePolicy enables stale-while-revalidate: one caller is handed
// the recache lease once the item's TTL drops under the policy's
// threshold, instead of waiting for the item to expire outright.
func WithRecachePolicy(p RecachePolicy) GetOption {
	return func(o *getOptions) { o.recachePolicy = &p }
}

type deltaOptions struct {
	noReply     bool
	casToken    *uint64
	refreshTTL  *int
	returnValue bool
}

// DeltaOption configures Delta/DeltaInitialize/DeltaAndGet.
type DeltaOption func(*deltaOptions)

func applyDeltaOptions(opts []DeltaOption) deltaOptions {
	var o deltaOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithDeltaNoReply suppresses the server's success response.
func WithDeltaNoReply() DeltaOption { return func(o *deltaOptions) { o.noReply = true } }

// WithDeltaCASToken makes the arithmetic op conditional on a matching CAS value.
func WithDeltaCASToken(casToken uint64) DeltaOption {
	return func(o *deltaOptions) { o.casToken = &casToken }
}

// WithDeltaRefreshTTL updates the counter's TTL as part of the operation.
func WithDeltaRefreshTTL(ttl int) DeltaOption {
	return func(o *deltaOptions) { o.refreshTTL = &ttl }
}
