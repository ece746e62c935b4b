package lock_test

import (
	"sync"
	"testing"

	"github.com/ValentinKolb/mgLock/lib/lock"
)

func TestPBWMWaitsForSharedHolders(t *testing.T) {
	env := newTestEnv()

	// several goroutines inside global-level guards
	const holders = 4
	var wg sync.WaitGroup
	release := make(chan struct{})
	entered := make(chan struct{}, holders)
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := env.newLocker()
			db, err := lock.NewDBLock(l, env.gate, "accounts", lock.ModeIS, nil)
			if err != nil {
				t.Errorf("db lock failed: %v", err)
				return
			}
			entered <- struct{}{}
			<-release
			db.Close()
		}()
	}
	for i := 0; i < holders; i++ {
		<-entered
	}

	// the batch writer must wait until every holder has left
	batchDone := make(chan struct{})
	go func() {
		defer close(batchDone)
		batchLocker := env.newLocker()
		pbwm := lock.NewParallelBatchWriterMode(batchLocker, env.gate)
		pbwm.Close()
	}()
	stillBlocked(t, batchDone, "batch writer behind shared holders")

	close(release)
	wg.Wait()
	await(t, batchDone, "batch writer after holders left")
}

func TestPBWMBlocksNewGuards(t *testing.T) {
	env := newTestEnv()

	batchLocker := env.newLocker()
	pbwm := lock.NewParallelBatchWriterMode(batchLocker, env.gate)

	// a new global-level guard parks on the gate before touching the
	// lock hierarchy
	guardDone := make(chan struct{})
	go func() {
		defer close(guardDone)
		l := env.newLocker()
		db, err := lock.NewDBLock(l, env.gate, "accounts", lock.ModeIX, nil)
		if err != nil {
			t.Errorf("db lock failed: %v", err)
			return
		}
		db.Close()
	}()
	stillBlocked(t, guardDone, "guard behind active batch writer")

	pbwm.Close()
	await(t, guardDone, "guard after batch writer finished")
}

func TestPBWMParticipantExemption(t *testing.T) {
	env := newTestEnv()

	batchLocker := env.newLocker()
	pbwm := lock.NewParallelBatchWriterMode(batchLocker, env.gate)
	defer pbwm.Close()

	// a worker cooperating with the batch writer is exempt from the gate
	worker := env.newLocker()
	env.gate.IAmABatchParticipant(worker)

	done := make(chan struct{})
	go func() {
		defer close(done)
		db, err := lock.NewDBLock(worker, env.gate, "accounts", lock.ModeIX, nil)
		if err != nil {
			t.Errorf("participant db lock failed: %v", err)
			return
		}
		db.Close()
	}()
	await(t, done, "participant guard during batch writer mode")
}

func TestPBWMWriterOwnGuards(t *testing.T) {
	env := newTestEnv()

	// the batch writer's own locker is registered as a participant on
	// entry, so its guards do not block on the gate it holds
	batchLocker := env.newLocker()
	pbwm := lock.NewParallelBatchWriterMode(batchLocker, env.gate)

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw, err := lock.NewGlobalWrite(batchLocker, env.gate)
		if err != nil {
			t.Errorf("batch writer's global write failed: %v", err)
			return
		}
		gw.Close()
	}()
	await(t, done, "batch writer's own guard")

	pbwm.Close()

	// closing removed the automatic registration again: a second batch
	// writer quiesces this locker like any other
	blocked := make(chan struct{})
	other := env.newLocker()
	pbwm2 := lock.NewParallelBatchWriterMode(other, env.gate)
	go func() {
		defer close(blocked)
		gr, err := lock.NewGlobalRead(batchLocker, env.gate)
		if err != nil {
			t.Errorf("global read failed: %v", err)
			return
		}
		gr.Close()
	}()
	stillBlocked(t, blocked, "former batch writer behind a new batch writer")
	pbwm2.Close()
	await(t, blocked, "former batch writer after the new batch writer left")
}
