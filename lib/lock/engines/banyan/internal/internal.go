package internal

import (
	"sync"

	"github.com/ValentinKolb/mgLock/lib/lock"
)

// --------------------------------------------------------------------------
// Waiter Type
// --------------------------------------------------------------------------

// Waiter is one pending acquisition queued on a resource. Ready is
// closed (under the resource mutex) when the grant is recorded on the
// waiter's behalf, so the waiting goroutine returns without retaking
// the mutex.
type Waiter struct {
	LockerID uint64
	Mode     lock.LockMode
	Convert  bool // mode conversion of an existing grant, scheduled ahead of the queue
	Ready    chan struct{}
}

// --------------------------------------------------------------------------
// Resource State
// --------------------------------------------------------------------------

// ResourceState is the conflict bookkeeping for a single resource. Each
// resource has its own mutex so contention on one database never
// serializes grants on another.
type ResourceState struct {
	Mu sync.Mutex

	// Dead marks a state that was removed from the resource table while
	// empty. A goroutine that loaded the pointer before removal must
	// discard it and look the resource up again.
	Dead bool

	// Granted maps locker ids to the mode they hold on this resource.
	Granted map[uint64]lock.LockMode

	// Queue holds pending waiters in arrival order. Grants are strictly
	// FIFO: a request parks behind every earlier waiter even when it
	// would be compatible right now, so writers cannot be starved by a
	// stream of compatible readers. Mode conversions are the exception,
	// see Waiter.Convert.
	Queue []*Waiter
}

// NewResourceState creates the empty bookkeeping for one resource.
func NewResourceState() *ResourceState {
	return &ResourceState{
		Granted: make(map[uint64]lock.LockMode),
	}
}

// Grantable reports whether lockerID could hold mode on this resource
// right now, i.e. mode is compatible with every other locker's grant.
// The locker's own grant is ignored so the check also serves mode
// conversions.
//
// The caller must hold Mu.
func (rs *ResourceState) Grantable(lockerID uint64, mode lock.LockMode) bool {
	for id, held := range rs.Granted {
		if id == lockerID {
			continue
		}
		if !mode.Compatible(held) {
			return false
		}
	}
	return true
}

// Enqueue parks a waiter, conversions ahead of ordinary requests.
//
// The caller must hold Mu.
func (rs *ResourceState) Enqueue(w *Waiter) {
	if w.Convert {
		rs.Queue = append([]*Waiter{w}, rs.Queue...)
		return
	}
	rs.Queue = append(rs.Queue, w)
}

// Remove deletes a waiter from the queue, if still present. It returns
// false when the waiter is gone because a grant raced the caller.
//
// The caller must hold Mu.
func (rs *ResourceState) Remove(w *Waiter) bool {
	for i, queued := range rs.Queue {
		if queued == w {
			rs.Queue = append(rs.Queue[:i], rs.Queue[i+1:]...)
			return true
		}
	}
	return false
}

// Promote grants as many waiters as the FIFO discipline allows: it
// walks the queue front to back, records the grant for every waiter
// compatible with the current holders, and stops at the first one that
// is not. Each granted waiter's Ready channel is closed.
//
// The caller must hold Mu.
func (rs *ResourceState) Promote() {
	for len(rs.Queue) > 0 {
		w := rs.Queue[0]
		if !rs.Grantable(w.LockerID, w.Mode) {
			return
		}
		rs.Granted[w.LockerID] = w.Mode
		rs.Queue = rs.Queue[1:]
		close(w.Ready)
	}
}

// Empty reports whether the resource has neither holders nor waiters
// and its state can be dropped from the table.
//
// The caller must hold Mu.
func (rs *ResourceState) Empty() bool {
	return len(rs.Granted) == 0 && len(rs.Queue) == 0
}
