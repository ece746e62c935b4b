// Package testing provides standardised tests and benchmarks for lock
// engine implementations that satisfy the lock.Locker interface.
//
// The package contains:
//   - testing: A conformance suite validating the compatibility lattice,
//     recursive acquisition, mode conversion, bounded acquisition, and
//     snapshot/restore behavior
//   - benchmark: Performance tests for measuring throughput of common
//     locking patterns under and without contention
//
// This package is particularly useful for:
//   - Lock engine developers implementing the lock.Locker interface
//   - Applications that need to compare engine implementations under
//     their own contention profile
//
// Example usage:
//
//	// Creating a factory for your implementation: the outer call
//	// creates a fresh shared engine, the inner call creates lockers
//	// attached to it
//	factory := func() func() lock.Locker {
//		mgr := NewMyLockManager()
//		return func() lock.Locker { return mgr.NewLocker() }
//	}
//
//	// Running the standard conformance suite
//	locktesting.RunLockerTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	locktesting.RunLockerBenchmarks(b, "MyEngine", factory)
package testing
