package lock

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Database Guard
// --------------------------------------------------------------------------

// DBLock grants database-granularity access while always holding the
// matching global intent lock, so the database cannot conceptually
// disappear under a coarser-grained concurrent operation.
//
// The four modes mean:
//
//	ModeIS: concurrent database access, requiring further collection read locks
//	ModeIX: concurrent database access, requiring further collection read or write locks
//	ModeS:  shared read access to the database, blocking any writers
//	ModeX:  exclusive access to the database, blocking all other readers and writers
//
// For ModeIS or ModeS the global lock is taken in intent-shared (IS)
// mode, for ModeIX or ModeX in intent-exclusive (IX) mode. For storage
// engines that do not support collection-level locking, ModeIS is
// upgraded to ModeS and ModeIX to ModeX at construction, so the database
// lock serves the role collection locks otherwise would.
type DBLock struct {
	noCopy noCopy

	scoped scopedLock
	locker Locker
	engine StorageEngineInfo
	id     ResourceId
	mode   LockMode // may be changed through RelockWithMode
	closed bool
}

// NewDBLock blocks until the database and its covering global intent
// lock are granted. An error is a programming-error violation
// (RetCInvalidMode against the locker's recursive holdings); it leaves
// no partial grant held.
func NewDBLock(locker Locker, gate *PBWMGate, db string, mode LockMode, engine StorageEngineInfo) (*DBLock, error) {
	eff := mode
	if engine != nil && !engine.SupportsCollectionLocking() {
		eff = upgradeForCapability(eff)
	}

	scoped := newScopedLock(locker, gate)

	if err := locker.Acquire(ResourceIdGlobal, eff.IntentOf()); err != nil {
		scoped.close()
		return nil, err
	}

	id := NewDatabaseResourceId(db)
	if err := locker.Acquire(id, eff); err != nil {
		locker.Release(ResourceIdGlobal)
		scoped.close()
		return nil, err
	}

	return &DBLock{
		scoped: scoped,
		locker: locker,
		engine: engine,
		id:     id,
		mode:   eff,
	}, nil
}

// Mode returns the effective mode currently held on the database.
func (l *DBLock) Mode() LockMode {
	return l.mode
}

// Resource returns the database's resource id.
func (l *DBLock) Resource() ResourceId {
	return l.id
}

// RelockWithMode releases the database-level grant and reacquires it
// with newMode through the same locker, while the global intent lock
// acquired at construction is retained unchanged.
//
// Relocking from ModeIS or ModeS to ModeIX or ModeX is not allowed:
// two goroutines upgrading a shared-only posture in place can deadlock
// against each other. Callers needing that transition must release and
// reacquire through a fresh guard from the top. The violation is
// reported synchronously and leaves the held grants unchanged.
func (l *DBLock) RelockWithMode(newMode LockMode) error {
	eff := newMode
	if l.engine != nil && !l.engine.SupportsCollectionLocking() {
		eff = upgradeForCapability(eff)
	}

	if err := checkRelockTransition(l.mode, eff); err != nil {
		return err
	}

	l.locker.Release(l.id)
	if err := l.locker.Acquire(l.id, eff); err != nil {
		return NewError(RetCInternalError, fmt.Sprintf("relock of %s to %s failed: %v", l.id, eff, err))
	}
	l.mode = eff
	return nil
}

// Close releases the database grant, then the global intent grant, and
// leaves the PBWM gate. Close is idempotent and never blocks.
func (l *DBLock) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.locker.Release(l.id)
	l.locker.Release(ResourceIdGlobal)
	l.scoped.close()
}

// checkRelockTransition rejects in-place upgrades from a shared-only
// posture to an intent-exclusive one.
func checkRelockTransition(current, requested LockMode) error {
	if current.IsShared() && (requested == ModeIX || requested == ModeX) {
		return NewError(RetCDisallowedRelock,
			fmt.Sprintf("cannot relock from %s to %s: release and reacquire from the top instead", current, requested))
	}
	return nil
}
