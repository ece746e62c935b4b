package banyan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/mgLock/lib/lock"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Locker Implementation
// --------------------------------------------------------------------------

// heldLock is one entry of a locker's held set.
type heldLock struct {
	mode      lock.LockMode
	recursion uint32
}

// Locker is the banyan implementation of lock.Locker. It tracks its
// owner's held set with per-resource recursion counters and turns
// re-acquisitions into counter increments, mode upgrades into
// conversion requests against the manager, and incomparable mode
// combinations into synchronous errors.
//
// Thread-safety: A Locker belongs to exactly one goroutine (or one
// logical unit of work) and is NOT safe for concurrent use. The manager
// it was created from is shared and safe.
type Locker struct {
	id  uint64
	uid uuid.UUID
	mgr *LockManager

	held map[lock.ResourceId]*heldLock
}

// assert interface implementation
var _ lock.Locker = (*Locker)(nil)

// newLocker creates a locker bound to mgr. Use LockManager.NewLocker.
func newLocker(mgr *LockManager, id uint64) *Locker {
	return &Locker{
		id:   id,
		uid:  uuid.New(),
		mgr:  mgr,
		held: make(map[lock.ResourceId]*heldLock),
	}
}

// Acquire blocks until mode is granted on res (see lock.Locker).
func (l *Locker) Acquire(res lock.ResourceId, mode lock.LockMode) error {
	return l.acquire(res, mode, 0, false)
}

// AcquireTimed behaves like Acquire but gives up after timeout. A
// timeout of zero (or below) fails immediately when the grant is not
// available.
func (l *Locker) AcquireTimed(res lock.ResourceId, mode lock.LockMode, timeout time.Duration) error {
	return l.acquire(res, mode, timeout, true)
}

func (l *Locker) acquire(res lock.ResourceId, mode lock.LockMode, timeout time.Duration, timed bool) error {
	if mode == lock.ModeNone || mode > lock.ModeX {
		return lock.NewError(lock.RetCInvalidMode, fmt.Sprintf("cannot acquire %s in mode %s", res, mode))
	}

	if e, ok := l.held[res]; ok {
		// already held: a covered request is purely recursive
		if e.mode.Covers(mode) {
			e.recursion++
			return nil
		}
		// a covering request converts the grant to the stronger mode
		if mode.Covers(e.mode) {
			if err := l.mgr.acquire(l.id, res, mode, timeout, timed, true); err != nil {
				return err
			}
			e.mode = mode
			e.recursion++
			return nil
		}
		return lock.NewError(lock.RetCInvalidMode,
			fmt.Sprintf("%s is held in %s, which cannot be combined with a request for %s", res, e.mode, mode))
	}

	if err := l.mgr.acquire(l.id, res, mode, timeout, timed, false); err != nil {
		return err
	}
	l.held[res] = &heldLock{mode: mode, recursion: 1}
	return nil
}

// Release undoes one acquisition of res. It returns true when the
// underlying grant was given up. A grant that was converted to a
// stronger mode stays at that mode until the recursion count reaches
// zero.
func (l *Locker) Release(res lock.ResourceId) bool {
	e, ok := l.held[res]
	if !ok {
		return false
	}
	e.recursion--
	if e.recursion > 0 {
		return false
	}
	delete(l.held, res)
	l.mgr.release(l.id, res)
	return true
}

// ReleaseAll gives up every grant regardless of recursion counts.
func (l *Locker) ReleaseAll() {
	for res := range l.held {
		delete(l.held, res)
		l.mgr.release(l.id, res)
	}
}

// ModeHeld returns the mode currently held on res, or ModeNone.
func (l *Locker) ModeHeld(res lock.ResourceId) lock.LockMode {
	if e, ok := l.held[res]; ok {
		return e.mode
	}
	return lock.ModeNone
}

// IsHeldAtLeast reports whether the mode held on res covers mode.
func (l *Locker) IsHeldAtLeast(res lock.ResourceId, mode lock.LockMode) bool {
	return l.ModeHeld(res).Covers(mode)
}

// Snapshot captures the held set and releases it (see lock.Locker). The
// snapshot is ordered coarsest granularity first; release happens in the
// opposite order, finest first.
func (l *Locker) Snapshot() (lock.LockSnapshot, bool) {
	if len(l.held) == 0 {
		return lock.LockSnapshot{}, false
	}

	locks := make([]lock.HeldLock, 0, len(l.held))
	for res, e := range l.held {
		if e.recursion > 1 {
			// a recursive grant cannot be reconstructed through the
			// guard that still references it, refuse the capture
			return lock.LockSnapshot{}, false
		}
		locks = append(locks, lock.HeldLock{Resource: res, Mode: e.mode, Recursion: e.recursion})
	}

	// resource ids carry the granularity in their top bits, so a plain
	// sort orders global before database before collection
	sort.Slice(locks, func(i, j int) bool {
		return locks[i].Resource < locks[j].Resource
	})

	for i := len(locks) - 1; i >= 0; i-- {
		res := locks[i].Resource
		delete(l.held, res)
		l.mgr.release(l.id, res)
	}

	return lock.LockSnapshot{Locks: locks}, true
}

// Restore reacquires exactly the grants of snap, coarsest first,
// blocking until all of them are granted again.
func (l *Locker) Restore(snap lock.LockSnapshot) error {
	for _, hl := range snap.Locks {
		if err := l.Acquire(hl.Resource, hl.Mode); err != nil {
			return err
		}
	}
	return nil
}

// Dump returns a human-readable description of the held set.
func (l *Locker) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "locker %s (%d grants)", l.uid, len(l.held))
	for res, e := range l.held {
		fmt.Fprintf(&b, "\n  %s %s (recursion %d)", res, e.mode, e.recursion)
	}
	return b.String()
}
