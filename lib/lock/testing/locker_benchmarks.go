package testing

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/mgLock/lib/lock"
)

// RunLockerBenchmarks runs all benchmarks for a lock engine
// implementation.
func RunLockerBenchmarks(b *testing.B, name string, factory LockerFactory) {

	b.Run("AcquireRelease", func(b *testing.B) {
		benchmarkAcquireRelease(b, factory())
	})

	b.Run("Recursion", func(b *testing.B) {
		benchmarkRecursion(b, factory())
	})

	b.Run("HierarchyWalk", func(b *testing.B) {
		benchmarkHierarchyWalk(b, factory())
	})

	b.Run("SharedContention", func(b *testing.B) {
		benchmarkSharedContention(b, factory())
	})

	b.Run("DisjointResources", func(b *testing.B) {
		benchmarkDisjointResources(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// benchmarkAcquireRelease measures the uncontended fast path.
func benchmarkAcquireRelease(b *testing.B, newLocker func() lock.Locker) {
	l := newLocker()
	res := lock.NewDatabaseResourceId("bench")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := l.Acquire(res, lock.ModeIX); err != nil {
			b.Fatalf("acquire failed: %v", err)
		}
		l.Release(res)
	}
}

// benchmarkRecursion measures covered re-acquisition, which never
// reaches the shared engine.
func benchmarkRecursion(b *testing.B, newLocker func() lock.Locker) {
	l := newLocker()
	res := lock.NewDatabaseResourceId("bench")
	if err := l.Acquire(res, lock.ModeX); err != nil {
		b.Fatalf("acquire failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := l.Acquire(res, lock.ModeIS); err != nil {
			b.Fatalf("recursive acquire failed: %v", err)
		}
		l.Release(res)
	}
}

// benchmarkHierarchyWalk measures the full global/database/collection
// acquisition pattern of a single write operation.
func benchmarkHierarchyWalk(b *testing.B, newLocker func() lock.Locker) {
	l := newLocker()
	global := lock.ResourceIdGlobal
	db := lock.NewDatabaseResourceId("bench")
	coll := lock.NewCollectionResourceId("bench.items")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := l.Acquire(global, lock.ModeIX); err != nil {
			b.Fatalf("acquire failed: %v", err)
		}
		if err := l.Acquire(db, lock.ModeIX); err != nil {
			b.Fatalf("acquire failed: %v", err)
		}
		if err := l.Acquire(coll, lock.ModeIX); err != nil {
			b.Fatalf("acquire failed: %v", err)
		}
		l.Release(coll)
		l.Release(db)
		l.Release(global)
	}
}

// benchmarkSharedContention measures compatible intent grants from many
// goroutines on one shared resource.
func benchmarkSharedContention(b *testing.B, newLocker func() lock.Locker) {
	res := lock.NewDatabaseResourceId("bench")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		l := newLocker()
		for pb.Next() {
			if err := l.Acquire(res, lock.ModeIS); err != nil {
				b.Errorf("acquire failed: %v", err)
				return
			}
			l.Release(res)
		}
	})
}

// benchmarkDisjointResources measures exclusive grants from many
// goroutines on disjoint resources, which should not serialize.
func benchmarkDisjointResources(b *testing.B, newLocker func() lock.Locker) {
	var next atomic.Uint64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		l := newLocker()
		res := lock.NewDatabaseResourceId(fmt.Sprintf("bench-%d", next.Add(1)))
		for pb.Next() {
			if err := l.Acquire(res, lock.ModeX); err != nil {
				b.Errorf("acquire failed: %v", err)
				return
			}
			l.Release(res)
		}
	})
}
