package lock

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Collection Guard
// --------------------------------------------------------------------------

// CollectionLock grants collection-granularity access. An appropriate
// DBLock must already be held by the same locker before a collection is
// locked: IS or S collection access requires the database held in at
// least IS, IX or X access requires at least IX. Missing the covering
// database lock is a defect in the call sequence, reported as a
// RetCMissingAncestor violation rather than recovered from.
//
// For storage engines that do not support document-level locking,
// ModeIS is upgraded to ModeS and ModeIX to ModeX.
type CollectionLock struct {
	noCopy noCopy

	locker Locker
	engine StorageEngineInfo
	id     ResourceId
	mode   LockMode
	closed bool
}

// NewCollectionLock blocks until mode is granted on the collection
// namespace ns (of the form "db.collection"). It fails synchronously,
// holding nothing, when the covering database lock is missing.
func NewCollectionLock(locker Locker, ns string, mode LockMode, engine StorageEngineInfo) (*CollectionLock, error) {
	eff := mode
	if engine != nil && !engine.SupportsDocumentLocking() {
		eff = upgradeForCapability(eff)
	}

	dbId := NewDatabaseResourceId(NsToDatabase(ns))
	required := requiredDBMode(eff)
	if !locker.IsHeldAtLeast(dbId, required) {
		return nil, NewError(RetCMissingAncestor,
			fmt.Sprintf("locking collection %q in %s requires the database held in at least %s", ns, eff, required))
	}

	id := NewCollectionResourceId(ns)
	if err := locker.Acquire(id, eff); err != nil {
		return nil, err
	}

	return &CollectionLock{
		locker: locker,
		engine: engine,
		id:     id,
		mode:   eff,
	}, nil
}

// Mode returns the effective mode currently held on the collection.
func (l *CollectionLock) Mode() LockMode {
	return l.mode
}

// RelockWithMode releases the collection-level grant and reacquires it
// at mode, adjusting the caller-supplied covering DBLock first when its
// current mode does not cover the new requirement. The database's global
// intent lock stays untouched throughout.
//
// The violation rules of DBLock.RelockWithMode apply to the database
// adjustment; a rejected transition is reported before any grant is
// touched.
func (l *CollectionLock) RelockWithMode(mode LockMode, db *DBLock) error {
	eff := mode
	if l.engine != nil && !l.engine.SupportsDocumentLocking() {
		eff = upgradeForCapability(eff)
	}

	required := requiredDBMode(eff)
	needsDBRelock := !db.Mode().Covers(required)
	if needsDBRelock {
		if err := checkRelockTransition(db.Mode(), required); err != nil {
			return err
		}
	}

	l.locker.Release(l.id)
	if needsDBRelock {
		if err := db.RelockWithMode(required); err != nil {
			// reacquire the old collection grant so the guard still owns
			// exactly what it did before the failed relock
			_ = l.locker.Acquire(l.id, l.mode)
			return err
		}
	}
	if err := l.locker.Acquire(l.id, eff); err != nil {
		return NewError(RetCInternalError, fmt.Sprintf("relock of %s to %s failed: %v", l.id, eff, err))
	}
	l.mode = eff
	return nil
}

// Close releases the one collection grant this guard is responsible
// for. Close is idempotent and never blocks.
func (l *CollectionLock) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.locker.Release(l.id)
}

// requiredDBMode returns the database mode that must cover a collection
// acquisition in the given mode.
func requiredDBMode(collMode LockMode) LockMode {
	if collMode.IsShared() {
		return ModeIS
	}
	return ModeIX
}
