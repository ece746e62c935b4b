package lock

// noCopy is embedded in guard types to make `go vet` flag copies. Guards
// own the responsibility to release exactly what they acquired; a copy
// would release twice.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// --------------------------------------------------------------------------
// Generic Resource Guard
// --------------------------------------------------------------------------

// ResourceLock is the general purpose scoped guard for a resource
// managed by the lock engine. Unlike DBLock and CollectionLock it does
// no ancestor checks, capability upgrades or global locking: it is the
// uninterpreted primitive the higher guards compose from. Use it for
// resources other than the global, database and collection levels.
type ResourceLock struct {
	noCopy noCopy

	locker Locker
	res    ResourceId
	closed bool
}

// NewResourceLock blocks the calling goroutine until mode is granted on
// res through locker. The only possible error is a mode combination
// violation against the locker's recursive holdings (RetCInvalidMode);
// in that case nothing is held.
func NewResourceLock(locker Locker, res ResourceId, mode LockMode) (*ResourceLock, error) {
	if err := locker.Acquire(res, mode); err != nil {
		return nil, err
	}
	return &ResourceLock{locker: locker, res: res}, nil
}

// Close releases exactly one grant of the resource through the same
// locker. Close is idempotent and never blocks.
func (l *ResourceLock) Close() {
	if l.closed {
		return
	}
	l.closed = true
	l.locker.Release(l.res)
}
