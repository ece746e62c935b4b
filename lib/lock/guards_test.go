package lock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/mgLock/lib/lock"
	"github.com/ValentinKolb/mgLock/lib/lock/engines/banyan"
)

// testEnv bundles a fresh lock engine and PBWM gate per test.
type testEnv struct {
	mgr  *banyan.LockManager
	gate *lock.PBWMGate
}

func newTestEnv() *testEnv {
	return &testEnv{
		mgr:  banyan.NewLockManager(),
		gate: lock.NewPBWMGate(),
	}
}

func (e *testEnv) newLocker() lock.Locker {
	return e.mgr.NewLocker()
}

// await fails the test when done is not closed within five seconds.
func await(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
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
// ResourceLock
// --------------------------------------------------------------------------

func TestResourceLock(t *testing.T) {
	env := newTestEnv()
	l := env.newLocker()
	res := lock.NewResourceId(lock.ResourceTypeMutex, "fsync")

	rl, err := lock.NewResourceLock(l, res, lock.ModeX)
	if err != nil {
		t.Fatalf("resource lock failed: %v", err)
	}
	if got := l.ModeHeld(res); got != lock.ModeX {
		t.Errorf("expected X held, got %s", got)
	}

	rl.Close()
	rl.Close() // idempotent
	if got := l.ModeHeld(res); got != lock.ModeNone {
		t.Errorf("expected nothing held after close, got %s", got)
	}
}

func TestResourceLockInvalidCombination(t *testing.T) {
	env := newTestEnv()
	l := env.newLocker()
	res := lock.NewResourceId(lock.ResourceTypeMutex, "fsync")

	if err := l.Acquire(res, lock.ModeS); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if _, err := lock.NewResourceLock(l, res, lock.ModeIX); !errors.Is(err, lock.ErrInvalidMode) {
		t.Errorf("expected invalid-mode error, got %v", err)
	}
	l.ReleaseAll()
}

// --------------------------------------------------------------------------
// Global Guards
// --------------------------------------------------------------------------

func TestGlobalWrite(t *testing.T) {
	env := newTestEnv()
	l := env.newLocker()

	gw, err := lock.NewGlobalWrite(l, env.gate)
	if err != nil {
		t.Fatalf("global write failed: %v", err)
	}
	if got := l.ModeHeld(lock.ResourceIdGlobal); got != lock.ModeX {
		t.Errorf("expected global X, got %s", got)
	}

	// a concurrent reader must wait it out
	reader := env.newLocker()
	if _, err := lock.NewGlobalReadTimed(reader, env.gate, 25*time.Millisecond); !lock.IsTimeout(err) {
		t.Errorf("expected timeout against global X, got %v", err)
	}

	gw.Close()
	gw.Close() // idempotent
	if got := l.ModeHeld(lock.ResourceIdGlobal); got != lock.ModeNone {
		t.Errorf("expected nothing held after close, got %s", got)
	}
}

func TestGlobalReadConcurrent(t *testing.T) {
	env := newTestEnv()
	a, b := env.newLocker(), env.newLocker()

	ra, err := lock.NewGlobalRead(a, env.gate)
	if err != nil {
		t.Fatalf("global read failed: %v", err)
	}
	// readers do not exclude each other
	rb, err := lock.NewGlobalReadTimed(b, env.gate, time.Second)
	if err != nil {
		t.Fatalf("concurrent global read failed: %v", err)
	}

	// but they block a writer
	writer := env.newLocker()
	if _, err := lock.NewGlobalWriteTimed(writer, env.gate, 25*time.Millisecond); !lock.IsTimeout(err) {
		t.Errorf("expected timeout against global readers, got %v", err)
	}
	if got := writer.ModeHeld(lock.ResourceIdGlobal); got != lock.ModeNone {
		t.Errorf("failed guard must hold nothing, got %s", got)
	}

	ra.Close()
	rb.Close()
}
