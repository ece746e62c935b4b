package lock_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ValentinKolb/mgLock/lib/lock"
)

func TestDBLockIntentPropagation(t *testing.T) {
	cases := map[lock.LockMode]lock.LockMode{
		lock.ModeIS: lock.ModeIS,
		lock.ModeS:  lock.ModeIS,
		lock.ModeIX: lock.ModeIX,
		lock.ModeX:  lock.ModeIX,
	}

	for dbMode, globalMode := range cases {
		env := newTestEnv()
		l := env.newLocker()

		db, err := lock.NewDBLock(l, env.gate, "accounts", dbMode, nil)
		if err != nil {
			t.Fatalf("db lock in %s failed: %v", dbMode, err)
		}
		if got := l.ModeHeld(lock.ResourceIdGlobal); got != globalMode {
			t.Errorf("db %s: expected global %s, got %s", dbMode, globalMode, got)
		}
		if got := db.Mode(); got != dbMode {
			t.Errorf("expected effective mode %s, got %s", dbMode, got)
		}

		db.Close()
		if got := l.ModeHeld(lock.ResourceIdGlobal); got != lock.ModeNone {
			t.Errorf("expected global released on close, got %s", got)
		}
		if got := l.ModeHeld(db.Resource()); got != lock.ModeNone {
			t.Errorf("expected database released on close, got %s", got)
		}
	}
}

func TestDBLockConflict(t *testing.T) {
	env := newTestEnv()
	writer, reader := env.newLocker(), env.newLocker()

	db, err := lock.NewDBLock(writer, env.gate, "accounts", lock.ModeX, nil)
	if err != nil {
		t.Fatalf("db lock failed: %v", err)
	}
	defer db.Close()

	// the same database is blocked, a sibling database is not: the
	// global lock is only held in intent mode
	if err := reader.AcquireTimed(db.Resource(), lock.ModeIS, 25*time.Millisecond); !lock.IsTimeout(err) {
		t.Errorf("expected timeout on the locked database, got %v", err)
	}
	other, err := lock.NewDBLock(reader, env.gate, "inventory", lock.ModeS, nil)
	if err != nil {
		t.Errorf("sibling database lock failed: %v", err)
	} else {
		other.Close()
	}
}

func TestDBLockRelock(t *testing.T) {
	env := newTestEnv()
	l := env.newLocker()

	db, err := lock.NewDBLock(l, env.gate, "accounts", lock.ModeIX, nil)
	if err != nil {
		t.Fatalf("db lock failed: %v", err)
	}
	defer db.Close()

	// IX to X is a legal strengthening
	if err := db.RelockWithMode(lock.ModeX); err != nil {
		t.Fatalf("relock IX to X failed: %v", err)
	}
	if got := db.Mode(); got != lock.ModeX {
		t.Errorf("expected mode X after relock, got %s", got)
	}
	// the global intent lock from construction is retained unchanged
	if got := l.ModeHeld(lock.ResourceIdGlobal); got != lock.ModeIX {
		t.Errorf("expected global IX retained across relock, got %s", got)
	}

	// weakening back down is legal too
	if err := db.RelockWithMode(lock.ModeIS); err != nil {
		t.Fatalf("relock X to IS failed: %v", err)
	}
	if got := db.Mode(); got != lock.ModeIS {
		t.Errorf("expected mode IS after relock, got %s", got)
	}
}

func TestDBLockRelockDisallowed(t *testing.T) {
	env := newTestEnv()

	for _, from := range []lock.LockMode{lock.ModeIS, lock.ModeS} {
		for _, to := range []lock.LockMode{lock.ModeIX, lock.ModeX} {
			l := env.newLocker()
			db, err := lock.NewDBLock(l, env.gate, "accounts", from, nil)
			if err != nil {
				t.Fatalf("db lock failed: %v", err)
			}

			err = db.RelockWithMode(to)
			if !errors.Is(err, lock.ErrDisallowedRelock) {
				t.Errorf("relock %s to %s: expected disallowed-relock error, got %v", from, to, err)
			}
			// the rejected relock must leave the grants untouched
			if got := db.Mode(); got != from {
				t.Errorf("expected mode %s after rejected relock, got %s", from, got)
			}
			if got := l.ModeHeld(db.Resource()); got != from {
				t.Errorf("expected database still held in %s, got %s", from, got)
			}
			db.Close()
		}
	}
}

func TestDBLockCapabilityUpgrade(t *testing.T) {
	// without collection locking the intent modes are upgraded so the
	// database lock serves the role collection locks otherwise would
	engine := lock.EngineCapabilities{CollectionLocking: false, DocumentLocking: false}
	cases := map[lock.LockMode]lock.LockMode{
		lock.ModeIS: lock.ModeS,
		lock.ModeIX: lock.ModeX,
		lock.ModeS:  lock.ModeS,
		lock.ModeX:  lock.ModeX,
	}

	for requested, effective := range cases {
		env := newTestEnv()
		l := env.newLocker()
		db, err := lock.NewDBLock(l, env.gate, "accounts", requested, engine)
		if err != nil {
			t.Fatalf("db lock in %s failed: %v", requested, err)
		}
		if got := db.Mode(); got != effective {
			t.Errorf("requested %s: expected effective %s, got %s", requested, effective, got)
		}
		db.Close()
	}
}
