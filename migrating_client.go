package memcache

import (
	"context"
	"math/rand"
	"time"
)

// MigrationMode controls how MigratingClient splits reads and writes between
// an origin and a destination fleet during a fleet migration. Modes are
// ordered: each mode at or past MigrationModeUseDestinationUpdateOrigin
// treats the destination as authoritative for reads.
type MigrationMode int

const (
	// MigrationModeOnlyOrigin sends everything to the origin fleet; the
	// destination is untouched. The default, and the starting point of any
	// migration.
	MigrationModeOnlyOrigin MigrationMode = iota

	// MigrationModePopulateWrites writes to both fleets but still reads only
	// from the origin.
	MigrationModePopulateWrites

	// MigrationModePopulateWritesAndReads1Pct is PopulateWrites, plus on a
	// 1% sample of cache hits from the origin, backfills the value into the
	// destination.
	MigrationModePopulateWritesAndReads1Pct

	// MigrationModePopulateWritesAndReads10Pct is the same backfill at a 10%
	// sample rate.
	MigrationModePopulateWritesAndReads10Pct

	// MigrationModeUseDestinationUpdateOrigin reads from the destination but
	// still writes both fleets, keeping the origin warm in case of rollback.
	MigrationModeUseDestinationUpdateOrigin

	// MigrationModeOnlyDestination sends everything to the destination
	// fleet; the origin is no longer touched. The end state of a migration.
	MigrationModeOnlyDestination
)

// MigrationModeSchedule maps a MigrationMode to the Unix timestamp (seconds)
// at which MigratingClient should switch into it. GetMigrationMode returns
// the mode whose timestamp is the latest one that has passed.
type MigrationModeSchedule map[MigrationMode]int64

// MigratingClient fronts two fleets (origin and destination) during a
// migration window. Depending on the configured mode, reads and writes are
// routed to one or both fleets, and cache hits on the origin are
// opportunistically backfilled into the destination. Useful for validating a
// new fleet's read path before cutting writes over, since TTL expiry is the
// only thing keeping the two fleets consistent during the overlap.
type MigratingClient struct {
	origin      CacheAPI
	destination CacheAPI

	mode        MigrationMode
	schedule    MigrationModeSchedule
	now         func() int64
	randIntn    func(n int) int
	backfillTTL int
}

func unixNow() int64 { return time.Now().Unix() }

// NewMigratingClient builds a MigratingClient with a fixed mode for the
// lifetime of the client. defaultReadBackfillTTL is the TTL of every value
// backfilled into the destination; the origin's remaining TTL is not read.
func NewMigratingClient(origin, destination CacheAPI, mode MigrationMode, defaultReadBackfillTTL int) *MigratingClient {
	return &MigratingClient{
		origin:      origin,
		destination: destination,
		mode:        mode,
		backfillTTL: defaultReadBackfillTTL,
		now:         unixNow,
		randIntn:    rand.Intn,
	}
}

// NewScheduledMigratingClient builds a MigratingClient whose mode changes
// over time per schedule: at any instant, the active mode is the one with
// the highest timestamp that has already passed, falling back to
// MigrationModeOnlyOrigin before the earliest scheduled transition.
func NewScheduledMigratingClient(origin, destination CacheAPI, schedule MigrationModeSchedule, defaultReadBackfillTTL int) *MigratingClient {
	return &MigratingClient{
		origin:      origin,
		destination: destination,
		schedule:    schedule,
		backfillTTL: defaultReadBackfillTTL,
		now:         unixNow,
		randIntn:    rand.Intn,
	}
}

// NewMigratingClientSharingWriteFailures is NewMigratingClient, except it
// also points origin and destination at one shared WriteFailureEvent, so a
// write failure against either fleet is reported identically regardless of
// which one a caller happens to be subscribed to.
func NewMigratingClientSharingWriteFailures(origin, destination *HighLevelCommands, mode MigrationMode, defaultReadBackfillTTL int) (*MigratingClient, *WriteFailureEvent) {
	event := NewWriteFailureEvent()
	origin.SetWriteFailureHandler(event.Fire)
	destination.SetWriteFailureHandler(event.Fire)
	return NewMigratingClient(origin, destination, mode, defaultReadBackfillTTL), event
}

// GetMigrationMode returns the mode currently in effect.
func (m *MigratingClient) GetMigrationMode() MigrationMode {
	if m.schedule == nil {
		return m.mode
	}
	now := m.now()
	mode := MigrationModeOnlyOrigin
	var bestAt int64 = -1
	for candidate, at := range m.schedule {
		if now >= at && at > bestAt {
			bestAt = at
			mode = candidate
		}
	}
	return mode
}

func (m *MigratingClient) backfillProbability(mode MigrationMode) int {
	if mode == MigrationModePopulateWritesAndReads1Pct {
		return 100
	}
	return 10
}

func (m *MigratingClient) shouldBackfill(mode MigrationMode) bool {
	return m.randIntn(m.backfillProbability(mode)) == 0
}

// Get reads key. Below MigrationModeUseDestinationUpdateOrigin it reads from
// the origin, optionally backfilling a sampled hit into the destination;
// from MigrationModeUseDestinationUpdateOrigin onward it reads the
// destination directly.
func (m *MigratingClient) Get(ctx context.Context, key any, out any, opts ...GetOption) (bool, error) {
	mode := m.GetMigrationMode()
	if mode >= MigrationModeUseDestinationUpdateOrigin {
		return m.destination.Get(ctx, key, out, opts...)
	}

	found, err := m.origin.Get(ctx, key, out, opts...)
	if err != nil || !found {
		return found, err
	}
	if m.isBackfillMode(mode) && m.shouldBackfill(mode) {
		_, _ = m.destination.Refill(ctx, key, out, m.backfillTTL)
	}
	return found, nil
}

func (m *MigratingClient) isBackfillMode(mode MigrationMode) bool {
	return mode == MigrationModePopulateWritesAndReads1Pct || mode == MigrationModePopulateWritesAndReads10Pct
}

// MultiGet mirrors Get's fleet-selection rules across a batch of keys.
func (m *MigratingClient) MultiGet(ctx context.Context, keys []Key, out func(Key) any, opts ...GetOption) (map[string]bool, error) {
	mode := m.GetMigrationMode()
	if mode >= MigrationModeUseDestinationUpdateOrigin {
		return m.destination.MultiGet(ctx, keys, out, opts...)
	}

	found, err := m.origin.MultiGet(ctx, keys, out, opts...)
	if err != nil {
		return found, err
	}
	if m.isBackfillMode(mode) && m.shouldBackfill(mode) {
		for _, key := range keys {
			if found[key.Key] {
				_, _ = m.destination.Refill(ctx, key, out(key), m.backfillTTL)
			}
		}
	}
	return found, nil
}

// Set writes key to whichever fleets are active for the current mode:
// origin below MigrationModeOnlyDestination, destination at or above
// MigrationModePopulateWrites. The response reported to the caller comes
// from the destination once it's authoritative for reads.
func (m *MigratingClient) Set(ctx context.Context, key any, value any, ttl int, opts ...SetOption) (bool, error) {
	mode := m.GetMigrationMode()

	var originOK, destOK bool
	var originErr, destErr error
	if mode < MigrationModeOnlyDestination {
		originOK, originErr = m.origin.Set(ctx, key, value, ttl, opts...)
	}
	if mode > MigrationModeOnlyOrigin {
		destOK, destErr = m.destination.Set(ctx, key, value, ttl, opts...)
	}

	if mode >= MigrationModeUseDestinationUpdateOrigin {
		return destOK, destErr
	}
	return originOK, originErr
}

// Refill is Set's add-mode counterpart, split across fleets the same way.
func (m *MigratingClient) Refill(ctx context.Context, key any, value any, ttl int) (bool, error) {
	mode := m.GetMigrationMode()

	var originOK, destOK bool
	var originErr, destErr error
	if mode < MigrationModeOnlyDestination {
		originOK, originErr = m.origin.Refill(ctx, key, value, ttl)
	}
	if mode > MigrationModeOnlyOrigin {
		destOK, destErr = m.destination.Refill(ctx, key, value, ttl)
	}

	if mode >= MigrationModeUseDestinationUpdateOrigin {
		return destOK, destErr
	}
	return originOK, originErr
}

// Delete removes key from whichever fleets are active, same split as Set.
func (m *MigratingClient) Delete(ctx context.Context, key any, opts ...DeleteOption) (bool, error) {
	mode := m.GetMigrationMode()

	var originOK, destOK bool
	var originErr, destErr error
	if mode < MigrationModeOnlyDestination {
		originOK, originErr = m.origin.Delete(ctx, key, opts...)
	}
	if mode > MigrationModeOnlyOrigin {
		destOK, destErr = m.destination.Delete(ctx, key, opts...)
	}

	if mode >= MigrationModeUseDestinationUpdateOrigin {
		return destOK, destErr
	}
	return originOK, originErr
}

// Invalidate is Delete with missing-key-counts-as-success semantics, split
// across fleets the same way.
func (m *MigratingClient) Invalidate(ctx context.Context, key any, opts ...DeleteOption) (bool, error) {
	mode := m.GetMigrationMode()

	var originOK, destOK bool
	var originErr, destErr error
	if mode < MigrationModeOnlyDestination {
		originOK, originErr = m.origin.Invalidate(ctx, key, opts...)
	}
	if mode > MigrationModeOnlyOrigin {
		destOK, destErr = m.destination.Invalidate(ctx, key, opts...)
	}

	if mode >= MigrationModeUseDestinationUpdateOrigin {
		return destOK, destErr
	}
	return originOK, originErr
}

// Touch refreshes key's TTL on both fleets when both are active, since a
// stale origin item diverging in TTL from the destination would undermine
// the "expiry keeps the fleets consistent" invariant the migration depends
// on.
func (m *MigratingClient) Touch(ctx context.Context, key any, ttl int) (bool, error) {
	mode := m.GetMigrationMode()

	var originOK, destOK bool
	var originErr, destErr error
	if mode < MigrationModeOnlyDestination {
		originOK, originErr = m.origin.Touch(ctx, key, ttl)
	}
	if mode > MigrationModeOnlyOrigin {
		destOK, destErr = m.destination.Touch(ctx, key, ttl)
	}

	if mode >= MigrationModeUseDestinationUpdateOrigin {
		return destOK, destErr
	}
	return originOK, originErr
}

// GetWithMeta, GetCAS, GetOrLease, and the Delta family aren't split across
// fleets: counters and lease races can't be reliably migrated (the
// destination wouldn't know the origin's current value), so these always go
// to whichever fleet is authoritative for the current mode.
func (m *MigratingClient) activeClient() CacheAPI {
	if m.GetMigrationMode() >= MigrationModeUseDestinationUpdateOrigin {
		return m.destination
	}
	return m.origin
}

func (m *MigratingClient) GetWithMeta(ctx context.Context, key any, out any, opts ...GetOption) (bool, bool, int, error) {
	return m.activeClient().GetWithMeta(ctx, key, out, opts...)
}

func (m *MigratingClient) GetCAS(ctx context.Context, key any, out any, opts ...GetOption) (bool, uint64, error) {
	return m.activeClient().GetCAS(ctx, key, out, opts...)
}

func (m *MigratingClient) GetOrLease(ctx context.Context, key any, out any, lease LeasePolicy, opts ...GetOption) (bool, uint64, error) {
	return m.activeClient().GetOrLease(ctx, key, out, lease, opts...)
}

func (m *MigratingClient) Delta(ctx context.Context, key any, delta int64, opts ...DeltaOption) (bool, error) {
	return m.activeClient().Delta(ctx, key, delta, opts...)
}

func (m *MigratingClient) DeltaInitialize(ctx context.Context, key any, delta int64, initialValue uint64, initialTTL int, opts ...DeltaOption) (bool, error) {
	return m.activeClient().DeltaInitialize(ctx, key, delta, initialValue, initialTTL, opts...)
}

func (m *MigratingClient) DeltaAndGet(ctx context.Context, key any, delta int64, opts ...DeltaOption) (int64, bool, error) {
	return m.activeClient().DeltaAndGet(ctx, key, delta, opts...)
}

func (m *MigratingClient) DeltaInitializeAndGet(ctx context.Context, key any, delta int64, initialValue uint64, initialTTL int, opts ...DeltaOption) (int64, bool, error) {
	return m.activeClient().DeltaInitializeAndGet(ctx, key, delta, initialValue, initialTTL, opts...)
}
