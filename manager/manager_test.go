package manager

import (
	"testing"
	"time"

	"github.com/teranos/goload/config"
	"github.com/teranos/goload/wire"
)

func configForTest(expectWorkers int) config.Config {
	cfg := config.Default()
	cfg.ExpectWorkers = expectWorkers
	return cfg
}

func newTestWorkerConn(id int, phase workerPhase) *workerConn {
	wc := &workerConn{id: id, send: make(chan wire.Envelope, 1), done: make(chan struct{})}
	wc.setPhase(phase)
	return wc
}

// A disconnect while still phaseStarting must remove the worker, drop the
// active-worker count back to 0, and push an error onto Aborted so a
// caller waiting on workers to connect can give up instead of hanging.
func TestOnWorkerGoneBeforeRunningAborts(t *testing.T) {
	m := New(configForTest(1), 0, nil)

	wc := newTestWorkerConn(1, phaseStarting)
	m.mu.Lock()
	m.workers[wc.id] = wc
	m.mu.Unlock()
	m.activeWorkers.Add(1)

	m.onWorkerGone(wc)

	if got := m.ActiveWorkers(); got != 0 {
		t.Fatalf("expected active-worker count 0 after disconnect, got %d", got)
	}
	m.mu.Lock()
	_, stillThere := m.workers[wc.id]
	m.mu.Unlock()
	if stillThere {
		t.Fatalf("expected worker to be removed from m.workers after disconnect")
	}

	select {
	case err := <-m.Aborted():
		if err == nil {
			t.Fatalf("expected a non-nil abort error")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected Aborted to receive an error")
	}
}

// A disconnect while phaseRunning must close ShutdownRequested exactly
// once (even if called more than once) so the caller transitions straight
// to draining instead of waiting for run-time to elapse.
func TestOnWorkerGoneDuringRunningRequestsShutdown(t *testing.T) {
	m := New(configForTest(2), 0, nil)

	wc1 := newTestWorkerConn(1, phaseRunning)
	wc2 := newTestWorkerConn(2, phaseRunning)
	m.mu.Lock()
	m.workers[wc1.id] = wc1
	m.workers[wc2.id] = wc2
	m.mu.Unlock()
	m.activeWorkers.Add(2)

	m.onWorkerGone(wc1)

	select {
	case <-m.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatalf("expected ShutdownRequested to be closed")
	}

	if got := m.ActiveWorkers(); got != 1 {
		t.Fatalf("expected active-worker count 1 after one of two disconnects, got %d", got)
	}

	// A second disconnect must not panic on a double-close.
	m.onWorkerGone(wc2)
	if got := m.ActiveWorkers(); got != 0 {
		t.Fatalf("expected active-worker count 0 after both disconnect, got %d", got)
	}
}

func TestNextAllotmentSplitsRemainderAcrossFirstWorkers(t *testing.T) {
	m := &Manager{expectN: 3, totalUsers: 10}

	var batches []int
	for i := 0; i < 3; i++ {
		id := m.nextWorker
		m.nextWorker++
		batch, _ := m.nextAllotment()
		batches = append(batches, batch)
		_ = id
	}

	total := 0
	for _, b := range batches {
		total += b
	}
	if total != 10 {
		t.Fatalf("expected batches to sum to 10 users, got %d (%v)", total, batches)
	}

	extras := 0
	for _, b := range batches {
		if b == 4 {
			extras++
		}
	}
	if extras != 1 {
		t.Fatalf("expected exactly 1 worker with the remainder user, got %d (%v)", extras, batches)
	}
}

func TestNextAllotmentOffsetsAreContiguous(t *testing.T) {
	m := &Manager{expectN: 2, totalUsers: 6}

	m.nextWorker++
	b1, off1 := m.nextAllotment()
	m.nextWorker++
	_, off2 := m.nextAllotment()

	if off1 != 0 {
		t.Fatalf("expected first offset 0, got %d", off1)
	}
	if off2 != b1 {
		t.Fatalf("expected second offset %d, got %d", b1, off2)
	}
}
