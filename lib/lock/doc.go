// Package lock implements the multi-granularity lock hierarchy of a
// concurrent storage engine. It lets many goroutines safely interleave
// operations that touch overlapping sets of resources (the whole engine,
// a database, a collection, or an arbitrary caller-defined resource) by
// enforcing intention-lock protocols instead of a single global lock.
//
// Core Concepts:
//
//   - LockMode: the four-mode lattice IS, IX, S and X. Intention modes
//     (IS/IX) taken at a coarse level announce that finer-grained locks
//     will be taken below it, so sibling coarse-grained operations can
//     proceed concurrently. See the compatibility table on LockMode.
//
//   - ResourceId: a stable identifier for a lockable entity. The global
//     resource is a fixed singleton; databases and collections are
//     identified by hashing their name.
//
//   - Locker: the per-goroutine lock acquisition engine. This package
//     only defines the interface; the engines subpackages provide
//     implementations. A Locker tracks every grant held by its owner
//     together with a recursion counter, so re-acquiring a resource at
//     a covered mode never blocks and is undone only after a matching
//     number of releases.
//
//   - Guards: scoped objects (ResourceLock, GlobalRead, GlobalWrite,
//     DBLock, CollectionLock) that acquire on construction and release
//     on Close, in reverse acquisition order. Guard constructors block
//     until the requested mode is granted. DBLock and CollectionLock
//     acquire the matching ancestor locks themselves, so release order
//     is guaranteed correct by nested scope exit.
//
//   - PBWMGate / ParallelBatchWriterMode: a process-wide quiescence
//     gate. Every global-level guard enters the gate in shared mode;
//     a batch writer takes it exclusively and thereby pauses all other
//     lock acquirers until it finishes.
//
// Hierarchy Protocol:
//
//	Locking a database in mode m first takes the global lock in the
//	intent mode of m (IS for IS/S, IX for IX/X). Locking a collection
//	requires a covering database lock held by the same Locker; taking a
//	collection lock without one is a programming error, not a runtime
//	condition, and is reported as such.
//
// Usage Example:
//
//	mgr := banyan.NewLockManager()
//	gate := lock.NewPBWMGate()
//	locker := mgr.NewLocker()
//
//	db, err := lock.NewDBLock(locker, gate, "accounts", lock.ModeIX, caps)
//	if err != nil {
//	    // programming error (invalid mode transition), not contention
//	}
//	defer db.Close()
//
//	coll, err := lock.NewCollectionLock(locker, "accounts.users", lock.ModeIX, caps)
//	if err != nil {
//	    // missing ancestor lock
//	}
//	defer coll.Close()
//
// Thread Safety:
//
//	A Locker and the guards created through it belong to a single
//	goroutine and must not be shared. All cross-goroutine coordination
//	happens inside the lock engine and the PBWM gate, which are safe
//	for concurrent use.
package lock
