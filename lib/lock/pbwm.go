package lock

import (
	"sync"
)

// --------------------------------------------------------------------------
// Parallel Batch Writer Gate
// --------------------------------------------------------------------------

// PBWMGate is the process-wide quiescence gate every global-level guard
// participates in. Ordinary lock acquirers enter it in shared mode when
// they construct a global-level guard; a batch writer takes it
// exclusively, which waits for all current shared holders to leave and
// then blocks every new shared or exclusive entry until the batch writer
// is done.
//
// The gate is an explicitly constructed value that is passed into every
// global-level guard constructor, so tests can inject a fresh gate per
// test instead of reaching for a process singleton.
//
// Wake policy: shared entries blocked by an active batch writer are all
// woken together when it leaves; among competing batch writers the wake
// order is unspecified.
//
// Thread-safety: All methods are safe for concurrent use.
type PBWMGate struct {
	mu           sync.Mutex
	cond         *sync.Cond
	shared       int  // number of shared holders
	exclusive    bool // whether a batch writer holds the gate
	participants map[Locker]struct{}
}

// NewPBWMGate creates a new quiescence gate with no holders.
func NewPBWMGate() *PBWMGate {
	g := &PBWMGate{
		participants: make(map[Locker]struct{}),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// IAmABatchParticipant marks a locker as cooperating with the batch
// writer. Participants are exempt from the gate: their global-level
// guards skip the shared entry, so worker goroutines spawned by the
// batch writer are not blocked by it. The exemption lasts for the
// lifetime of the locker.
func (g *PBWMGate) IAmABatchParticipant(locker Locker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.participants[locker] = struct{}{}
}

// enterShared blocks while a batch writer is active, then registers the
// locker as a shared holder. It returns false without registering when
// the locker is a batch participant, in which case leaveShared must not
// be called.
func (g *PBWMGate) enterShared(locker Locker) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exempt := g.participants[locker]; exempt {
		return false
	}
	for g.exclusive {
		g.cond.Wait()
	}
	g.shared++
	return true
}

// leaveShared undoes one enterShared.
func (g *PBWMGate) leaveShared() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.shared--
	if g.shared == 0 {
		g.cond.Broadcast()
	}
}

// enterExclusive blocks until the gate has no holders at all, then
// claims it for the batch writer and registers its locker as a
// participant so the writer's own global-level guards do not block on
// the gate it holds. It returns whether the locker was newly registered.
func (g *PBWMGate) enterExclusive(locker Locker) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.exclusive || g.shared > 0 {
		g.cond.Wait()
	}
	g.exclusive = true

	if _, ok := g.participants[locker]; ok {
		return false
	}
	g.participants[locker] = struct{}{}
	return true
}

// leaveExclusive releases the batch writer's hold and wakes every
// blocked entry. When unregister is set the locker's participant
// exemption added by enterExclusive is removed again.
func (g *PBWMGate) leaveExclusive(locker Locker, unregister bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.exclusive = false
	if unregister {
		delete(g.participants, locker)
	}
	g.cond.Broadcast()
}

// --------------------------------------------------------------------------
// Batch Writer Guard
// --------------------------------------------------------------------------

// ParallelBatchWriterMode pauses every other lock acquirer in the
// process for the duration of a bulk mutation phase. Constructing it
// takes the gate exclusively, blocking until every goroutine currently
// inside a global-level guard has left; while it is held, every new
// global-level guard blocks. At most one instance can be active at a
// time, enforced by the gate's exclusivity.
//
// Worker goroutines spawned by the batch writer call
// PBWMGate.IAmABatchParticipant with their own lockers to opt out of
// being blocked.
type ParallelBatchWriterMode struct {
	noCopy noCopy

	gate       *PBWMGate
	locker     Locker
	registered bool
	closed     bool
}

// NewParallelBatchWriterMode turns on batch writer mode. Blocks until
// all current shared holders of the gate release.
func NewParallelBatchWriterMode(locker Locker, gate *PBWMGate) *ParallelBatchWriterMode {
	registered := gate.enterExclusive(locker)
	return &ParallelBatchWriterMode{
		gate:       gate,
		locker:     locker,
		registered: registered,
	}
}

// Close turns batch writer mode off again and wakes all blocked lock
// acquirers. Close is idempotent.
func (p *ParallelBatchWriterMode) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.gate.leaveExclusive(p.locker, p.registered)
}
