package banyan

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/mgLock/lib/lock"
	"github.com/ValentinKolb/mgLock/lib/lock/engines/banyan/internal"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Core Lock Manager Structure
// --------------------------------------------------------------------------

// LockManager is the process-wide conflict table the banyan lockers
// acquire through. It maps every resource to its own grant/wait state,
// so contention on one resource never serializes grants on another.
//
// Grant policy: strictly FIFO per resource. A request parks behind
// every earlier waiter even when it would be compatible with the
// current holders, so a stream of compatible readers cannot starve a
// waiting writer. Mode conversions of an already granted lock are the
// one exception and are scheduled ahead of the queue, because making a
// holder wait behind requests that conflict with its own grant would
// deadlock. The manager performs no deadlock detection.
type LockManager struct {
	table        *xsync.MapOf[lock.ResourceId, *internal.ResourceState]
	nextLockerID atomic.Uint64

	// metrics
	stats    *metrics.Set
	acquires [lock.ModeX + 1]*metrics.Counter
	releases *metrics.Counter
	waits    *metrics.Counter
	timeouts *metrics.Counter
	waitTime *metrics.Histogram
}

// NewLockManager creates a new lock manager with an empty resource
// table.
//
// Thread-safety: The returned manager is safe for concurrent use by any
// number of lockers.
func NewLockManager() *LockManager {
	m := &LockManager{
		// resource ids are already hashes, combine them with the map
		// seed instead of hashing twice
		table: xsync.NewMapOfWithHasher[lock.ResourceId, *internal.ResourceState](
			func(id lock.ResourceId, seed uint64) uint64 {
				return uint64(id) ^ seed
			}),
		stats: metrics.NewSet(),
	}

	for mode := lock.ModeIS; mode <= lock.ModeX; mode++ {
		m.acquires[mode] = m.stats.GetOrCreateCounter(`mglock_acquires_total{mode="` + mode.String() + `"}`)
	}
	m.releases = m.stats.GetOrCreateCounter("mglock_releases_total")
	m.waits = m.stats.GetOrCreateCounter("mglock_waits_total")
	m.timeouts = m.stats.GetOrCreateCounter("mglock_timeouts_total")
	m.waitTime = m.stats.GetOrCreateHistogram("mglock_wait_seconds")

	return m
}

// NewLocker creates a locker bound to this manager. Lockers are not
// thread-safe; create one per goroutine or unit of work.
func (m *LockManager) NewLocker() *Locker {
	return newLocker(m, m.nextLockerID.Add(1))
}

// Resources returns the number of resources with active grants or
// waiters.
func (m *LockManager) Resources() int {
	return m.table.Size()
}

// WritePrometheus writes the manager's metrics in Prometheus text
// format.
func (m *LockManager) WritePrometheus(w io.Writer) {
	m.stats.WritePrometheus(w)
}

// --------------------------------------------------------------------------
// Grant / Wait / Release
// --------------------------------------------------------------------------

// acquire blocks until mode is granted to lockerID on res, or until the
// timeout elapses for timed requests. convert marks the request as a
// mode conversion of an existing grant.
func (m *LockManager) acquire(lockerID uint64, res lock.ResourceId, mode lock.LockMode, timeout time.Duration, timed, convert bool) error {
	start := time.Now()

	for {
		rs, _ := m.table.LoadOrCompute(res, internal.NewResourceState)
		rs.Mu.Lock()
		if rs.Dead {
			// state was dropped from the table after we loaded it,
			// look the resource up again
			rs.Mu.Unlock()
			continue
		}

		// fast path: grant immediately when compatible and not parked
		// behind earlier waiters (conversions bypass the queue)
		if rs.Grantable(lockerID, mode) && (convert || len(rs.Queue) == 0) {
			rs.Granted[lockerID] = mode
			rs.Mu.Unlock()
			m.acquires[mode].Inc()
			return nil
		}

		// a zero timeout means try-only: fail without queueing
		if timed && timeout <= 0 {
			m.dropIfEmpty(res, rs)
			rs.Mu.Unlock()
			m.timeouts.Inc()
			return lock.ErrLockTimeout
		}

		w := &internal.Waiter{
			LockerID: lockerID,
			Mode:     mode,
			Convert:  convert,
			Ready:    make(chan struct{}),
		}
		rs.Enqueue(w)
		rs.Mu.Unlock()

		m.waits.Inc()

		if !timed {
			<-w.Ready
			m.waitTime.UpdateDuration(start)
			m.acquires[mode].Inc()
			return nil
		}

		timer := time.NewTimer(timeout)
		select {
		case <-w.Ready:
			timer.Stop()
			m.waitTime.UpdateDuration(start)
			m.acquires[mode].Inc()
			return nil
		case <-timer.C:
			rs.Mu.Lock()
			// the grant may have raced the timer; Ready is closed under
			// the resource mutex, so this recheck is race-free
			select {
			case <-w.Ready:
				rs.Mu.Unlock()
				m.waitTime.UpdateDuration(start)
				m.acquires[mode].Inc()
				return nil
			default:
			}
			rs.Remove(w)
			// a blocked waiter at the head may have held back grantable
			// successors
			rs.Promote()
			m.dropIfEmpty(res, rs)
			rs.Mu.Unlock()
			m.timeouts.Inc()
			return lock.ErrLockTimeout
		}
	}
}

// release gives up lockerID's grant on res and wakes every waiter the
// FIFO discipline now allows. It never blocks.
func (m *LockManager) release(lockerID uint64, res lock.ResourceId) {
	rs, ok := m.table.Load(res)
	if !ok {
		return
	}
	rs.Mu.Lock()
	delete(rs.Granted, lockerID)
	rs.Promote()
	m.dropIfEmpty(res, rs)
	rs.Mu.Unlock()
	m.releases.Inc()
}

// dropIfEmpty removes a resource with no holders and no waiters from
// the table, marking the state dead so stale pointers retry.
//
// The caller must hold rs.Mu.
func (m *LockManager) dropIfEmpty(res lock.ResourceId, rs *internal.ResourceState) {
	if rs.Empty() && !rs.Dead {
		rs.Dead = true
		m.table.Delete(res)
	}
}
