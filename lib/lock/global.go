package lock

import (
	"time"
)

// --------------------------------------------------------------------------
// Scoped Lock (global-level base)
// --------------------------------------------------------------------------

// scopedLock establishes participation in the PBWM gate before any
// global-level lock is requested, so a batch writer's quiescence request
// sees every ordinary lock acquirer either fully outside the hierarchy
// or blocked waiting to enter it, never halfway in. It is embedded by
// every global-level guard.
//
// Entering the gate only waits, it never fails.
type scopedLock struct {
	locker  Locker
	gate    *PBWMGate
	entered bool
}

// newScopedLock acquires the gate in shared mode. Batch participants
// (including the active batch writer itself) skip the shared entry so
// they do not block on their own quiescence.
func newScopedLock(locker Locker, gate *PBWMGate) scopedLock {
	s := scopedLock{locker: locker, gate: gate}
	if gate != nil {
		s.entered = gate.enterShared(locker)
	}
	return s
}

// close releases the shared gate hold, if one was taken.
func (s *scopedLock) close() {
	if s.entered {
		s.entered = false
		s.gate.leaveShared()
	}
}

// --------------------------------------------------------------------------
// Global Guards
// --------------------------------------------------------------------------

// GlobalWrite grants exclusive write access to all databases and
// collections, blocking all other access. The same locker may re-enter
// the global resource recursively in any mode consistent with the
// lattice while the guard is held.
type GlobalWrite struct {
	noCopy noCopy

	scoped scopedLock
	locker Locker
	closed bool
}

// NewGlobalWrite blocks until the global resource is granted in mode X.
func NewGlobalWrite(locker Locker, gate *PBWMGate) (*GlobalWrite, error) {
	return newGlobalWrite(locker, gate, 0, false)
}

// NewGlobalWriteTimed is the bounded-wait form used by the try-lock
// helpers; new call sites should use NewGlobalWrite. On timeout it
// returns ErrLockTimeout and holds nothing.
func NewGlobalWriteTimed(locker Locker, gate *PBWMGate, timeout time.Duration) (*GlobalWrite, error) {
	return newGlobalWrite(locker, gate, timeout, true)
}

func newGlobalWrite(locker Locker, gate *PBWMGate, timeout time.Duration, timed bool) (*GlobalWrite, error) {
	scoped := newScopedLock(locker, gate)

	var err error
	if timed {
		err = locker.AcquireTimed(ResourceIdGlobal, ModeX, timeout)
	} else {
		err = locker.Acquire(ResourceIdGlobal, ModeX)
	}
	if err != nil {
		scoped.close()
		return nil, err
	}

	return &GlobalWrite{scoped: scoped, locker: locker}, nil
}

// Close releases the one global grant this guard is responsible for and
// leaves the PBWM gate. Close is idempotent and never blocks.
func (l *GlobalWrite) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.locker.Release(ResourceIdGlobal)
	l.scoped.close()
}

// GlobalRead grants concurrent read access to all databases and
// collections, blocking any writers. The same locker may re-enter the
// global resource recursively in shared (S) or intent-shared (IS) mode
// while the guard is held.
type GlobalRead struct {
	noCopy noCopy

	scoped scopedLock
	locker Locker
	closed bool
}

// NewGlobalRead blocks until the global resource is granted in mode S.
func NewGlobalRead(locker Locker, gate *PBWMGate) (*GlobalRead, error) {
	return newGlobalRead(locker, gate, 0, false)
}

// NewGlobalReadTimed is the bounded-wait form used by the try-lock
// helpers; new call sites should use NewGlobalRead. On timeout it
// returns ErrLockTimeout and holds nothing.
func NewGlobalReadTimed(locker Locker, gate *PBWMGate, timeout time.Duration) (*GlobalRead, error) {
	return newGlobalRead(locker, gate, timeout, true)
}

func newGlobalRead(locker Locker, gate *PBWMGate, timeout time.Duration, timed bool) (*GlobalRead, error) {
	scoped := newScopedLock(locker, gate)

	var err error
	if timed {
		err = locker.AcquireTimed(ResourceIdGlobal, ModeS, timeout)
	} else {
		err = locker.Acquire(ResourceIdGlobal, ModeS)
	}
	if err != nil {
		scoped.close()
		return nil, err
	}

	return &GlobalRead{scoped: scoped, locker: locker}, nil
}

// Close releases the one global grant this guard is responsible for and
// leaves the PBWM gate. Close is idempotent and never blocks.
func (l *GlobalRead) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.locker.Release(ResourceIdGlobal)
	l.scoped.close()
}
