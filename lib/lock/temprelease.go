package lock

// --------------------------------------------------------------------------
// Temporary Release (deprecated)
// --------------------------------------------------------------------------

// TempRelease fully releases a locker's held set on construction and
// restores the identical set on Close. Release only happens when the
// held set can be reconstructed faithfully: if any lock is held with a
// recursion count above one (or nothing is held at all), nothing is
// released and Close is a no-op. LocksReleased reports which case
// applies.
//
// Deprecated: TempRelease exists only to preserve legacy call sites and
// must not be used in new code; scope the guards themselves instead.
type TempRelease struct {
	noCopy noCopy

	locker Locker

	// snapshot to be restored on Close; empty if locksReleased is false
	snapshot      LockSnapshot
	locksReleased bool
	closed        bool
}

// NewTempRelease snapshots and releases the locker's held set if its
// recursive-locking invariants allow a faithful restore. It never
// blocks.
func NewTempRelease(locker Locker) *TempRelease {
	snapshot, released := locker.Snapshot()
	return &TempRelease{
		locker:        locker,
		snapshot:      snapshot,
		locksReleased: released,
	}
}

// LocksReleased reports whether construction released the held set.
func (t *TempRelease) LocksReleased() bool {
	return t.locksReleased
}

// Close reacquires the released lock set, blocking until every grant of
// the snapshot is held again. If construction released nothing, Close
// is a no-op. Close is idempotent.
func (t *TempRelease) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if !t.locksReleased {
		return nil
	}
	return t.locker.Restore(t.snapshot)
}
