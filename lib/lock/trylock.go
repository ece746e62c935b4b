package lock

import (
	"time"
)

// --------------------------------------------------------------------------
// Try-Lock Helpers
// --------------------------------------------------------------------------

// ReadLockTry attempts to take the global lock in mode S, bounded by a
// timeout. A timeout is an expected outcome, not a failure: Got reports
// whether the lock is held, and no error propagates from construction.
// Call sites that prefer failing loudly can use Err, which returns a
// *DBTryLockTimeoutError after a timeout.
type ReadLockTry struct {
	noCopy noCopy

	got     bool
	lk      *GlobalRead
	timeout time.Duration
}

// NewReadLockTry attempts the bounded global read lock. On timeout the
// helper holds nothing.
func NewReadLockTry(locker Locker, gate *PBWMGate, timeout time.Duration) *ReadLockTry {
	lk, err := NewGlobalReadTimed(locker, gate, timeout)
	return &ReadLockTry{
		got:     err == nil,
		lk:      lk,
		timeout: timeout,
	}
}

// Got reports whether the global read lock was acquired.
func (t *ReadLockTry) Got() bool {
	return t.got
}

// Err returns nil on success and a *DBTryLockTimeoutError after a
// timeout, for call sites that fail loudly instead of polling Got.
func (t *ReadLockTry) Err() error {
	if t.got {
		return nil
	}
	return &DBTryLockTimeoutError{Mode: ModeS, Timeout: t.timeout}
}

// Close releases the lock if it was acquired. Close is idempotent.
func (t *ReadLockTry) Close() {
	if t.lk != nil {
		t.lk.Close()
		t.lk = nil
		t.got = false
	}
}

// WriteLockTry attempts to take the global lock in mode X, bounded by a
// timeout. See ReadLockTry for the Got/Err contract.
type WriteLockTry struct {
	noCopy noCopy

	got     bool
	lk      *GlobalWrite
	timeout time.Duration
}

// NewWriteLockTry attempts the bounded global write lock. On timeout
// the helper holds nothing.
func NewWriteLockTry(locker Locker, gate *PBWMGate, timeout time.Duration) *WriteLockTry {
	lk, err := NewGlobalWriteTimed(locker, gate, timeout)
	return &WriteLockTry{
		got:     err == nil,
		lk:      lk,
		timeout: timeout,
	}
}

// Got reports whether the global write lock was acquired.
func (t *WriteLockTry) Got() bool {
	return t.got
}

// Err returns nil on success and a *DBTryLockTimeoutError after a
// timeout, for call sites that fail loudly instead of polling Got.
func (t *WriteLockTry) Err() error {
	if t.got {
		return nil
	}
	return &DBTryLockTimeoutError{Mode: ModeX, Timeout: t.timeout}
}

// Close releases the lock if it was acquired. Close is idempotent.
func (t *WriteLockTry) Close() {
	if t.lk != nil {
		t.lk.Close()
		t.lk = nil
		t.got = false
	}
}
