package lock

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Locker is the per-goroutine lock acquisition engine consumed by the
// guard types in this package. One Locker belongs to exactly one unit of
// work (one goroutine or one logical operation) and must not be shared;
// it outlives every guard created through it.
//
// A Locker tracks the full set of (ResourceId, LockMode) grants held by
// its owner together with a per-resource recursion counter: re-acquiring
// a resource at a mode covered by the held mode never blocks, and the
// underlying grant is given up only after a matching number of releases.
type Locker interface {
	// Acquire blocks the calling goroutine until mode is granted on res,
	// honoring the compatibility lattice against every other locker's
	// grants on the same resource. It returns a *Error with code
	// RetCInvalidMode if the requested mode cannot be combined with the
	// mode already held recursively (for example holding S and asking
	// for IX); such failures leave the held set unchanged.
	Acquire(res ResourceId, mode LockMode) error

	// AcquireTimed behaves like Acquire but gives up after timeout and
	// returns a *Error with code RetCLockTimeout. A timeout of zero
	// fails immediately if the grant is not available. On timeout no
	// grant is held and the held set is unchanged.
	AcquireTimed(res ResourceId, mode LockMode, timeout time.Duration) error

	// Release undoes one acquisition of res. It returns true when the
	// underlying grant was given up (the recursion count reached zero)
	// and false when the resource stays held or was not held at all.
	Release(res ResourceId) bool

	// ReleaseAll gives up every grant held by this locker regardless of
	// recursion counts. Intended for unit-of-work teardown.
	ReleaseAll()

	// ModeHeld returns the mode currently held on res, or ModeNone.
	ModeHeld(res ResourceId) LockMode

	// IsHeldAtLeast reports whether the mode held on res covers mode.
	IsHeldAtLeast(res ResourceId, mode LockMode) bool

	// Snapshot captures the full held set and releases it, returning
	// the snapshot for a later Restore. It refuses (returning false and
	// releasing nothing) when the held set cannot be reconstructed
	// faithfully: when nothing is held, or when any lock is held with a
	// recursion count above one.
	Snapshot() (LockSnapshot, bool)

	// Restore reacquires exactly the grants of a snapshot previously
	// taken by Snapshot, blocking until all of them are granted again,
	// coarsest granularity first.
	Restore(snap LockSnapshot) error

	// Dump returns a human-readable description of the held set for
	// diagnostics.
	Dump() string
}

// --------------------------------------------------------------------------
// Lock Snapshots
// --------------------------------------------------------------------------

// HeldLock is one entry of a locker's held set.
type HeldLock struct {
	Resource  ResourceId
	Mode      LockMode
	Recursion uint32
}

// LockSnapshot is a plain value capture of a locker's held set, ordered
// coarsest granularity first so it can be restored front to back.
type LockSnapshot struct {
	Locks []HeldLock
}

// --------------------------------------------------------------------------
// Storage Engine Capabilities
// --------------------------------------------------------------------------

// StorageEngineInfo exposes the locking capabilities of the underlying
// storage engine. They drive the mode upgrades in DBLock and
// CollectionLock: an engine that cannot lock at the finer level gets the
// intent modes upgraded to their full counterparts (IS to S, IX to X) so
// the coarser lock serves the role the finer locks otherwise would.
type StorageEngineInfo interface {
	// SupportsCollectionLocking reports whether the engine can lock
	// individual collections below a database.
	SupportsCollectionLocking() bool

	// SupportsDocumentLocking reports whether the engine can lock
	// individual documents below a collection.
	SupportsDocumentLocking() bool
}

// EngineCapabilities is a plain value implementation of StorageEngineInfo.
type EngineCapabilities struct {
	CollectionLocking bool
	DocumentLocking   bool
}

func (c EngineCapabilities) SupportsCollectionLocking() bool { return c.CollectionLocking }
func (c EngineCapabilities) SupportsDocumentLocking() bool   { return c.DocumentLocking }

// upgradeForCapability maps an intent mode to its full counterpart when
// the finer granularity is not available.
func upgradeForCapability(m LockMode) LockMode {
	switch m {
	case ModeIS:
		return ModeS
	case ModeIX:
		return ModeX
	default:
		return m
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type of the locking packages. It wraps a return
// code (of type RetCode) and an error message. Programming-error codes
// (missing ancestor, disallowed relock, invalid mode) indicate an
// incorrect call sequence and are never retried; the timeout code is an
// expected outcome of bounded acquisition.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCInvalidMode:
		errorCode = "InvalidMode"
	case RetCMissingAncestor:
		errorCode = "MissingAncestor"
	case RetCDisallowedRelock:
		errorCode = "DisallowedRelock"
	case RetCLockTimeout:
		errorCode = "LockTimeout"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("LockError (code %s): %s", errorCode, e.Msg)
}

// Is makes errors.Is match two *Error values by return code, so callers
// can compare against the exported sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new lock Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinels for errors.Is comparisons.
var (
	ErrLockTimeout      = NewError(RetCLockTimeout, "lock acquisition timed out")
	ErrMissingAncestor  = NewError(RetCMissingAncestor, "no covering ancestor lock held")
	ErrDisallowedRelock = NewError(RetCDisallowedRelock, "relock transition not allowed")
	ErrInvalidMode      = NewError(RetCInvalidMode, "requested mode cannot be combined with held mode")
)

// IsTimeout reports whether err is a bounded-acquisition timeout.
func IsTimeout(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == RetCLockTimeout
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                   // 1: Operation failed due to an internal error.
	RetCInvalidMode                     // 2: Requested mode cannot be combined with the held mode.
	RetCMissingAncestor                 // 3: Required ancestor lock is not held.
	RetCDisallowedRelock                // 4: Relock transition would risk deadlock.
	RetCLockTimeout                     // 5: Bounded acquisition timed out.
)

// --------------------------------------------------------------------------
// Try-Lock Timeout Error
// --------------------------------------------------------------------------

// DBTryLockTimeoutError is the loud failure form of a try-lock timeout,
// reserved for call sites that prefer a distinguishable error over
// polling Got() on the try-lock helpers.
type DBTryLockTimeoutError struct {
	Mode    LockMode
	Timeout time.Duration
}

func (e *DBTryLockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire global %s lock within %s", e.Mode, e.Timeout)
}
