// Package banyan implements the in-process lock engine behind the
// lock.Locker interface. It provides multi-granularity conflict
// resolution with a focus on fairness, predictable wakeup behavior, and
// low overhead on the uncontended path.
//
// The package focuses on:
//   - Per-resource conflict state so contention on one resource never
//     serializes grants on another
//   - Strict FIFO grant ordering to keep writers from starving behind a
//     stream of compatible readers
//   - Recursive acquisition and in-place mode conversion at the locker
//     level, so guards can be nested freely
//   - Bounded (timed) acquisition with race-free timeout handling
//   - Prometheus-compatible metrics for grants, waits, and timeouts
//
// Key Components:
//
//   - LockManager: The shared conflict table. It maps every ResourceId
//     to its own grant/wait state in a sharded concurrent map and is
//     safe for use by any number of lockers. The manager grants
//     requests strictly in arrival order per resource; the single
//     exception is a mode conversion of an already granted lock, which
//     is scheduled ahead of the queue because parking a holder behind
//     requests that conflict with its own grant would deadlock. The
//     manager performs no deadlock detection; callers avoid deadlock by
//     acquiring in a consistent coarse-to-fine order and by using the
//     relock restrictions enforced by the guard layer.
//
//   - Locker: The per-goroutine acquisition engine implementing
//     lock.Locker. It tracks the held set with per-resource recursion
//     counters. A request covered by the held mode never reaches the
//     manager and only increments the counter; a request that covers
//     the held mode is forwarded as a conversion; an incomparable
//     combination (holding S, requesting IX) is a programming error
//     reported synchronously. Lockers are not thread-safe, one per
//     unit of work.
//
//   - internal.ResourceState: The per-resource bookkeeping (granted
//     modes plus waiter queue), each with its own mutex. Waiters are
//     woken by closing a channel under that mutex, which makes the
//     timed-acquisition timeout path race-free: after the timer fires
//     the waiter retakes the mutex and rechecks the channel before
//     declaring the timeout.
//
// Internal Mechanisms:
//
//   - Resource table lifecycle: A resource's state is dropped from the
//     table as soon as it has neither holders nor waiters, so the table
//     size tracks the active working set. Removal marks the state dead
//     under its own mutex; a goroutine that loaded the stale pointer
//     beforehand observes the flag and looks the resource up again.
//
//   - Wakeup policy: On release the manager walks the waiter queue from
//     the front, grants every waiter compatible with the remaining
//     holders, and stops at the first that is not. This hands batches
//     of compatible readers their grants in one pass while preserving
//     arrival order.
package banyan
