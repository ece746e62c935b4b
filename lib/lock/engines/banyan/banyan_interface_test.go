package banyan

import (
	"testing"

	"github.com/ValentinKolb/mgLock/lib/lock"
	locktesting "github.com/ValentinKolb/mgLock/lib/lock/testing"
)

func Test(t *testing.T) {
	locktesting.RunLockerTests(t, "Banyan", func() func() lock.Locker {
		mgr := NewLockManager()
		return func() lock.Locker { return mgr.NewLocker() }
	})
}

func Benchmark(b *testing.B) {
	locktesting.RunLockerBenchmarks(b, "Banyan", func() func() lock.Locker {
		mgr := NewLockManager()
		return func() lock.Locker { return mgr.NewLocker() }
	})
}
