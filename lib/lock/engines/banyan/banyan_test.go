package banyan

import (
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/mgLock/lib/lock"
)

// TestTableLifecycle verifies that resource states are dropped from the
// table as soon as they have neither holders nor waiters.
func TestTableLifecycle(t *testing.T) {
	mgr := NewLockManager()
	l := mgr.NewLocker()

	db := lock.NewDatabaseResourceId("accounts")
	coll := lock.NewCollectionResourceId("accounts.users")

	if err := l.Acquire(db, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := l.Acquire(coll, lock.ModeX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if got := mgr.Resources(); got != 2 {
		t.Errorf("expected 2 active resources, got %d", got)
	}

	l.ReleaseAll()
	if got := mgr.Resources(); got != 0 {
		t.Errorf("expected an empty table after release, got %d resources", got)
	}

	// a failed try-lock must not leave state behind either
	other := mgr.NewLocker()
	if err := l.Acquire(db, lock.ModeX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := other.AcquireTimed(db, lock.ModeS, 0); !lock.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	l.ReleaseAll()
	if got := mgr.Resources(); got != 0 {
		t.Errorf("expected an empty table after failed try-lock, got %d resources", got)
	}
}

// TestConversionBypassesQueue verifies that a holder converting its
// grant is not parked behind a conflicting waiter, which would
// deadlock.
func TestConversionBypassesQueue(t *testing.T) {
	mgr := NewLockManager()
	holder, writer := mgr.NewLocker(), mgr.NewLocker()

	res := lock.NewDatabaseResourceId("accounts")
	if err := holder.Acquire(res, lock.ModeIS); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Acquire(res, lock.ModeX); err != nil {
			t.Errorf("writer acquire failed: %v", err)
		}
	}()

	// give the writer time to park in the queue
	time.Sleep(50 * time.Millisecond)

	// the conversion is compatible with the (absent) other holders and
	// must be granted ahead of the queued writer
	if err := holder.AcquireTimed(res, lock.ModeS, time.Second); err != nil {
		t.Fatalf("conversion next to a queued writer failed: %v", err)
	}

	holder.ReleaseAll()
	select {
	case <-writerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("writer was never granted")
	}
	writer.ReleaseAll()
}

func TestDump(t *testing.T) {
	mgr := NewLockManager()
	l := mgr.NewLocker()

	res := lock.NewDatabaseResourceId("accounts")
	if err := l.Acquire(res, lock.ModeIX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	dump := l.Dump()
	if !strings.Contains(dump, "IX") {
		t.Errorf("dump should mention the held mode, got %q", dump)
	}
	l.ReleaseAll()
}

func TestWritePrometheus(t *testing.T) {
	mgr := NewLockManager()
	l := mgr.NewLocker()

	res := lock.NewDatabaseResourceId("accounts")
	if err := l.Acquire(res, lock.ModeX); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	l.ReleaseAll()

	var b strings.Builder
	mgr.WritePrometheus(&b)
	out := b.String()
	if !strings.Contains(out, "mglock_acquires_total") {
		t.Errorf("expected acquire counter in metrics output, got:\n%s", out)
	}
}
