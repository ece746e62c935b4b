package testing

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/mgLock/lib/lock"
)

// LockerFactory creates lock.Locker instances. The outer call creates a
// fresh shared lock engine; the inner call creates lockers attached to
// it, so a test can hold locks through several lockers that actually
// conflict with each other.
type LockerFactory func() func() lock.Locker

// waitTimeout bounds every blocking step of the suite so a broken
// engine fails the test instead of hanging it.
const waitTimeout = 5 * time.Second

// RunLockerTests runs a conformance test suite for a lock.Locker
// implementation.
func RunLockerTests(t *testing.T, name string, factory LockerFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Acquire&Release", func(t *testing.T) {
			testAcquireRelease(t, factory())
		})

		t.Run("Recursion", func(t *testing.T) {
			testRecursion(t, factory())
		})

		t.Run("ModeConversion", func(t *testing.T) {
			testModeConversion(t, factory())
		})

		t.Run("InvalidModeCombination", func(t *testing.T) {
			testInvalidModeCombination(t, factory())
		})

		t.Run("Compatibility", func(t *testing.T) {
			testCompatibility(t, factory())
		})

		t.Run("BlockingGrant", func(t *testing.T) {
			testBlockingGrant(t, factory())
		})

		t.Run("FIFOFairness", func(t *testing.T) {
			testFIFOFairness(t, factory())
		})

		t.Run("TimedAcquire", func(t *testing.T) {
			testTimedAcquire(t, factory())
		})

		t.Run("ReleaseAll", func(t *testing.T) {
			testReleaseAll(t, factory())
		})

		t.Run("Snapshot&Restore", func(t *testing.T) {
			testSnapshotRestore(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// await fails the test when done is not closed within waitTimeout.
func await(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// stillBlocked verifies that done has not been closed after giving the
// goroutine a moment to run.
func stillBlocked(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
		t.Fatalf("%s completed but should still be blocked", what)
	case <-time.After(50 * time.Millisecond):
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testAcquireRelease(t *testing.T, newLocker func() lock.Locker) {
	l := newLocker()
	res := lock.NewDatabaseResourceId("accounts")

	if err := l.Acquire(res, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if got := l.ModeHeld(res); got != lock.ModeIX {
		t.Errorf("expected mode IX held, got %s", got)
	}
	if !l.IsHeldAtLeast(res, lock.ModeIS) {
		t.Errorf("IX should cover IS")
	}
	if l.IsHeldAtLeast(res, lock.ModeX) {
		t.Errorf("IX must not cover X")
	}

	if !l.Release(res) {
		t.Errorf("release should give up the grant")
	}
	if got := l.ModeHeld(res); got != lock.ModeNone {
		t.Errorf("expected nothing held after release, got %s", got)
	}
	if l.Release(res) {
		t.Errorf("releasing an unheld resource must return false")
	}
}

func testRecursion(t *testing.T, newLocker func() lock.Locker) {
	l := newLocker()
	res := lock.NewDatabaseResourceId("accounts")

	if err := l.Acquire(res, lock.ModeX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	// covered re-acquisitions must not block and must not weaken the
	// held mode
	for _, m := range []lock.LockMode{lock.ModeIS, lock.ModeIX, lock.ModeS, lock.ModeX} {
		if err := l.Acquire(res, m); err != nil {
			t.Fatalf("recursive acquire in %s failed: %v", m, err)
		}
	}
	if got := l.ModeHeld(res); got != lock.ModeX {
		t.Errorf("expected mode X held throughout, got %s", got)
	}

	for i := 0; i < 4; i++ {
		if l.Release(res) {
			t.Errorf("release %d must not give up the grant yet", i+1)
		}
	}
	if !l.Release(res) {
		t.Errorf("final release should give up the grant")
	}
}

func testModeConversion(t *testing.T, newLocker func() lock.Locker) {
	l := newLocker()
	res := lock.NewDatabaseResourceId("accounts")

	if err := l.Acquire(res, lock.ModeIS); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(res, lock.ModeX); err != nil {
		t.Fatalf("conversion to X failed: %v", err)
	}
	if got := l.ModeHeld(res); got != lock.ModeX {
		t.Errorf("expected converted mode X, got %s", got)
	}

	// the converted grant stays at the stronger mode until the last
	// release
	if l.Release(res) {
		t.Errorf("first release must not give up the grant")
	}
	if got := l.ModeHeld(res); got != lock.ModeX {
		t.Errorf("expected X after inner release, got %s", got)
	}
	if !l.Release(res) {
		t.Errorf("second release should give up the grant")
	}

	// conversion must also work while another compatible locker holds
	// the resource
	other := newLocker()
	if err := other.Acquire(res, lock.ModeIS); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(res, lock.ModeIS); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(res, lock.ModeS); err != nil {
		t.Fatalf("conversion to S next to an IS holder failed: %v", err)
	}
	other.ReleaseAll()
	l.ReleaseAll()
}

func testInvalidModeCombination(t *testing.T, newLocker func() lock.Locker) {
	l := newLocker()
	res := lock.NewDatabaseResourceId("accounts")

	if err := l.Acquire(res, lock.ModeS); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	err := l.Acquire(res, lock.ModeIX)
	if err == nil {
		t.Fatalf("combining held S with requested IX must fail")
	}
	if !errors.Is(err, lock.ErrInvalidMode) {
		t.Errorf("expected invalid-mode error, got %v", err)
	}
	// the failure must leave the held set unchanged
	if got := l.ModeHeld(res); got != lock.ModeS {
		t.Errorf("expected S still held, got %s", got)
	}
	if !l.Release(res) {
		t.Errorf("release should give up the grant")
	}

	if err := l.Acquire(res, lock.ModeNone); !errors.Is(err, lock.ErrInvalidMode) {
		t.Errorf("acquiring mode NONE must be rejected, got %v", err)
	}
}

func testCompatibility(t *testing.T, newLocker func() lock.Locker) {
	res := lock.NewDatabaseResourceId("accounts")

	// every compatible pair from the lattice must be holdable at once,
	// every conflicting pair must time out
	cases := []struct {
		held, requested lock.LockMode
		compatible      bool
	}{
		{lock.ModeIS, lock.ModeIS, true},
		{lock.ModeIS, lock.ModeIX, true},
		{lock.ModeIS, lock.ModeS, true},
		{lock.ModeIS, lock.ModeX, false},
		{lock.ModeIX, lock.ModeIX, true},
		{lock.ModeIX, lock.ModeS, false},
		{lock.ModeIX, lock.ModeX, false},
		{lock.ModeS, lock.ModeS, true},
		{lock.ModeS, lock.ModeX, false},
		{lock.ModeX, lock.ModeX, false},
	}

	for _, c := range cases {
		holder, requester := newLocker(), newLocker()
		if err := holder.Acquire(res, c.held); err != nil {
			t.Fatalf("acquire %s failed: %v", c.held, err)
		}
		err := requester.AcquireTimed(res, c.requested, 25*time.Millisecond)
		if c.compatible && err != nil {
			t.Errorf("%s vs %s: expected grant, got %v", c.held, c.requested, err)
		}
		if !c.compatible && !lock.IsTimeout(err) {
			t.Errorf("%s vs %s: expected timeout, got %v", c.held, c.requested, err)
		}
		requester.ReleaseAll()
		holder.ReleaseAll()
	}
}

func testBlockingGrant(t *testing.T, newLocker func() lock.Locker) {
	res := lock.NewDatabaseResourceId("accounts")
	holder, waiter := newLocker(), newLocker()

	if err := holder.Acquire(res, lock.ModeX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := waiter.Acquire(res, lock.ModeS); err != nil {
			t.Errorf("blocked acquire failed: %v", err)
		}
	}()

	stillBlocked(t, done, "acquire of S against held X")
	holder.Release(res)
	await(t, done, "grant after release")

	if got := waiter.ModeHeld(res); got != lock.ModeS {
		t.Errorf("expected S held after wakeup, got %s", got)
	}
	waiter.Release(res)
}

func testFIFOFairness(t *testing.T, newLocker func() lock.Locker) {
	res := lock.NewDatabaseResourceId("accounts")
	reader, writer, lateReader := newLocker(), newLocker(), newLocker()

	if err := reader.Acquire(res, lock.ModeS); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Acquire(res, lock.ModeX); err != nil {
			t.Errorf("writer acquire failed: %v", err)
		}
	}()
	stillBlocked(t, writerDone, "writer behind reader")

	// the late reader is compatible with the holder but must queue
	// behind the waiting writer
	lateDone := make(chan struct{})
	go func() {
		defer close(lateDone)
		if err := lateReader.Acquire(res, lock.ModeS); err != nil {
			t.Errorf("late reader acquire failed: %v", err)
		}
	}()
	stillBlocked(t, lateDone, "late reader behind queued writer")

	reader.Release(res)
	await(t, writerDone, "writer grant")
	stillBlocked(t, lateDone, "late reader behind granted writer")

	writer.Release(res)
	await(t, lateDone, "late reader grant")
	lateReader.Release(res)
}

func testTimedAcquire(t *testing.T, newLocker func() lock.Locker) {
	res := lock.NewDatabaseResourceId("accounts")
	holder, requester := newLocker(), newLocker()

	if err := holder.Acquire(res, lock.ModeX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// zero timeout fails promptly without queueing
	start := time.Now()
	err := requester.AcquireTimed(res, lock.ModeS, 0)
	if !lock.IsTimeout(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("zero-timeout acquire took %s, expected a prompt failure", elapsed)
	}

	// a positive timeout waits it out and holds nothing afterwards
	err = requester.AcquireTimed(res, lock.ModeS, 25*time.Millisecond)
	if !lock.IsTimeout(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
	if got := requester.ModeHeld(res); got != lock.ModeNone {
		t.Errorf("expected nothing held after timeout, got %s", got)
	}

	// once the conflict is gone the same request succeeds
	holder.Release(res)
	if err := requester.AcquireTimed(res, lock.ModeS, waitTimeout); err != nil {
		t.Errorf("timed acquire without conflict failed: %v", err)
	}
	requester.Release(res)
}

func testReleaseAll(t *testing.T, newLocker func() lock.Locker) {
	l := newLocker()
	global := lock.ResourceIdGlobal
	db := lock.NewDatabaseResourceId("accounts")
	coll := lock.NewCollectionResourceId("accounts.users")

	if err := l.Acquire(global, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(db, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	// recursion must not survive ReleaseAll either
	if err := l.Acquire(db, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(coll, lock.ModeX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	l.ReleaseAll()

	for _, res := range []lock.ResourceId{global, db, coll} {
		if got := l.ModeHeld(res); got != lock.ModeNone {
			t.Errorf("expected %s released, still held in %s", res, got)
		}
	}

	// another locker must be able to take everything exclusively
	other := newLocker()
	for _, res := range []lock.ResourceId{global, db, coll} {
		if err := other.AcquireTimed(res, lock.ModeX, waitTimeout); err != nil {
			t.Errorf("acquire of %s after ReleaseAll failed: %v", res, err)
		}
	}
	other.ReleaseAll()
}

func testSnapshotRestore(t *testing.T, newLocker func() lock.Locker) {
	l := newLocker()
	global := lock.ResourceIdGlobal
	db := lock.NewDatabaseResourceId("accounts")
	coll := lock.NewCollectionResourceId("accounts.users")

	// nothing held: refuse
	if _, ok := l.Snapshot(); ok {
		t.Errorf("snapshot of an empty held set must be refused")
	}

	if err := l.Acquire(global, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(db, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(coll, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// recursion above one: refuse and keep the held set
	if err := l.Acquire(db, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if _, ok := l.Snapshot(); ok {
		t.Errorf("snapshot with recursion above one must be refused")
	}
	if got := l.ModeHeld(db); got != lock.ModeIX {
		t.Errorf("refused snapshot must not release anything, got %s", got)
	}
	l.Release(db)

	snap, ok := l.Snapshot()
	if !ok {
		t.Fatalf("snapshot should succeed")
	}
	if len(snap.Locks) != 3 {
		t.Fatalf("expected 3 snapshot entries, got %d", len(snap.Locks))
	}
	// coarsest granularity first
	if snap.Locks[0].Resource != global {
		t.Errorf("expected the global resource first in the snapshot")
	}
	for _, res := range []lock.ResourceId{global, db, coll} {
		if got := l.ModeHeld(res); got != lock.ModeNone {
			t.Errorf("expected %s released by snapshot, still held in %s", res, got)
		}
	}

	// while released, a conflicting locker can pass through
	other := newLocker()
	if err := other.AcquireTimed(db, lock.ModeX, waitTimeout); err != nil {
		t.Fatalf("acquire during release window failed: %v", err)
	}
	other.Release(db)

	if err := l.Restore(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	for _, res := range []lock.ResourceId{global, db, coll} {
		if got := l.ModeHeld(res); got != lock.ModeIX {
			t.Errorf("expected %s restored to IX, got %s", res, got)
		}
	}
	l.ReleaseAll()
}
