// Package manager coordinates a distributed ("gaggle") load test across
// multiple worker processes: accepting worker connections over
// websocket, validating their load_test_hash, splitting the configured
// user population into per-worker allotments, and merging the metrics
// deltas each worker reports.
package manager

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/goload/config"
	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/logger"
	"github.com/teranos/goload/metrics"
	"github.com/teranos/goload/wire"
)

// WebSocket connection tuning, following the same deadlines the rest of
// the codebase uses for its websocket servers.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// drainTimeout is how long the manager waits for a worker's final delta
// after sending CommandExit before giving up on it.
const drainTimeout = 30 * time.Second

// phase tracks where in the run a connected worker is, since a
// disconnect means something different depending on when it happens.
type workerPhase int

const (
	phaseStarting workerPhase = iota // still waiting for enough workers to reach expect_workers
	phaseRunning                // load test running, worker actively hatching/looping
	phaseDraining               // manager sent CommandExit, waiting for a final delta
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// workerConn tracks one connected worker.
type workerConn struct {
	id    int
	conn  *websocket.Conn
	send  chan wire.Envelope
	phase atomic.Int32
	done  chan struct{}

	mu     sync.Mutex
	report *metrics.Report
}

func (w *workerConn) setPhase(p workerPhase)  { w.phase.Store(int32(p)) }
func (w *workerConn) getPhase() workerPhase { return workerPhase(w.phase.Load()) }

// Manager accepts worker connections, hands out allotments, and merges
// reported metrics into a single running Report.
type Manager struct {
	cfg          config.Config
	expectHash   uint32
	expectN      int
	totalUsers   int
	log          *zap.SugaredLogger
	onSnapshot   func(*metrics.Report)
	snapshotTick time.Duration

	mu          sync.Mutex
	workers     map[int]*workerConn
	nextWorker  int
	assigned    int
	connectedCh chan struct{}

	// activeWorkers is mutated only from accept (connect) and onWorkerGone
	// (disconnect), giving an always-current count of live worker
	// connections independent of m.mu.
	activeWorkers atomic.Int64

	// abortCh receives an error if a worker disconnects before the run
	// reaches phaseRunning; ShutdownRequested is closed if one disconnects
	// during phaseRunning, telling the caller to start draining immediately.
	abortCh      chan error
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	report *metrics.Report
}

// New returns a Manager ready to accept cfg.ExpectWorkers worker
// connections for a run of cfg.Users total virtual users.
func New(cfg config.Config, loadTestHash uint32, onSnapshot func(*metrics.Report)) *Manager {
	return &Manager{
		cfg:          cfg,
		expectHash:   loadTestHash,
		expectN:      cfg.ExpectWorkers,
		totalUsers:   cfg.Users,
		log:          logger.Logger,
		onSnapshot:   onSnapshot,
		snapshotTick: metrics.DefaultSnapshotInterval,
		workers:      make(map[int]*workerConn),
		connectedCh:  make(chan struct{}),
		abortCh:      make(chan error, 1),
		shutdownCh:   make(chan struct{}),
		report:       metrics.NewReport(),
	}
}

// ActiveWorkers returns the current count of connected workers.
func (m *Manager) ActiveWorkers() int64 {
	return m.activeWorkers.Load()
}

// Aborted receives an error if a worker disconnects before the run reaches
// phaseRunning, i.e. before all expected workers ever connected.
func (m *Manager) Aborted() <-chan error {
	return m.abortCh
}

// ShutdownRequested is closed the moment a worker disconnects mid-run,
// signaling that the caller should begin draining immediately instead of
// waiting for the configured run-time or an external cancel.
func (m *Manager) ShutdownRequested() <-chan struct{} {
	return m.shutdownCh
}

// ServeHTTP upgrades an incoming connection, validates the worker's hello,
// and either rejects it (bad hash) or assigns it an allotment.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	wc, err := m.accept(conn)
	if err != nil {
		m.log.Warnw("rejected worker connection", "error", err)
		conn.Close()
		return
	}

	go m.readPump(wc)
	go m.writePump(wc)
}

func (m *Manager) accept(conn *websocket.Conn) (*workerConn, error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	env, err := readEnvelope(conn)
	if err != nil {
		return nil, errors.Wrap(err, "manager: reading worker hello")
	}
	if env.Kind != wire.KindHello || env.Hello == nil {
		return nil, errors.Wrap(wire.ErrManagerProtocol, "manager: expected hello envelope")
	}

	if env.Hello.LoadTestHash != m.expectHash {
		if !m.cfg.NoHashCheck {
			writeEnvelope(conn, wire.Envelope{Kind: wire.KindReject, Reject: &wire.Reject{
				Reason: "worker is running a different load test, set --no-hash-check to ignore",
			}})
			return nil, errors.WithHint(
				errors.Wrap(wire.ErrHashMismatch, "manager: worker rejected"),
				"pass --no-hash-check on the manager to ignore this",
			)
		}
		m.log.Warnw("worker load_test_hash mismatch, ignoring due to --no-hash-check")
	}

	m.mu.Lock()
	id := m.nextWorker
	m.nextWorker++
	batch, offset := m.nextAllotment()
	wc := &workerConn{id: id, conn: conn, send: make(chan wire.Envelope, 8), report: metrics.NewReport(), done: make(chan struct{})}
	wc.setPhase(phaseStarting)
	m.workers[id] = wc
	connected := len(m.workers)
	m.mu.Unlock()
	m.activeWorkers.Add(1)

	allotment := wire.Allotment{
		WorkerID:           id,
		Users:              batch,
		WeightedUserOffset: offset,
		HatchRate:          m.cfg.HatchRate,
		RunTimeSeconds:     int64(m.cfg.RunTime / time.Second),
		ThrottleRequests:   m.cfg.ThrottleRequests,
		Host:               m.cfg.Host,
	}
	if err := writeEnvelope(conn, wire.Envelope{Kind: wire.KindAllotment, Allotment: &allotment}); err != nil {
		return nil, errors.Wrap(err, "manager: sending allotment")
	}

	m.log.Infow("worker connected", "worker_id", id, "of", m.expectN, "connected", connected, "users", batch)

	if connected == m.expectN {
		m.log.Infow("all workers connected, starting distributed run", "workers", connected)
		close(m.connectedCh)
		m.broadcastRun()
	}

	return wc, nil
}

// nextAllotment computes this worker's user batch and weighted-index
// offset, splitting the remainder across the first N workers exactly the
// way the original manager's split_clients/split_clients_remainder logic
// does. Caller holds m.mu.
func (m *Manager) nextAllotment() (batch, offset int) {
	base := m.totalUsers / m.expectN
	remainder := m.totalUsers % m.expectN

	offset = m.assigned
	batch = base
	if m.nextWorker <= remainder {
		batch++
	}
	m.assigned += batch
	return batch, offset
}

func (m *Manager) broadcastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wc := range m.workers {
		wc.setPhase(phaseRunning)
		select {
		case wc.send <- wire.Envelope{Kind: wire.KindCommand, Command: &wire.Command{Command: wire.CommandRun}}:
		default:
		}
	}
}

// Wait blocks until expectN workers have connected.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.connectedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown sends CommandExit to every connected worker and waits up to
// drainTimeout for each to report a final delta.
func (m *Manager) Shutdown() *metrics.Report {
	m.mu.Lock()
	workers := make([]*workerConn, 0, len(m.workers))
	for _, wc := range m.workers {
		workers = append(workers, wc)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, wc := range workers {
		wc.setPhase(phaseDraining)
		select {
		case wc.send <- wire.Envelope{Kind: wire.KindCommand, Command: &wire.Command{Command: wire.CommandExit}}:
		default:
		}

		wg.Add(1)
		go func(wc *workerConn) {
			defer wg.Done()
			m.awaitFinal(wc)
		}(wc)
	}
	wg.Wait()

	return m.Snapshot()
}

// awaitFinal waits for readPump to observe this worker's final delta (or
// its connection dropping), up to drainTimeout.
func (m *Manager) awaitFinal(wc *workerConn) {
	select {
	case <-wc.done:
	case <-time.After(drainTimeout):
		m.log.Warnw("timed out waiting for worker's final delta", "worker_id", wc.id)
	}
}

// readPump reads deltas from a worker connection until it closes.
func (m *Manager) readPump(wc *workerConn) {
	defer func() {
		wc.conn.Close()
		m.onWorkerGone(wc)
		close(wc.done)
	}()

	wc.conn.SetReadLimit(32 << 20)
	wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wc.conn.SetPongHandler(func(string) error {
		wc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		env, err := readEnvelope(wc.conn)
		if err != nil {
			return
		}
		if env.Kind != wire.KindDelta || env.Delta == nil {
			continue
		}
		m.mergeDelta(wc, env.Delta)
		if env.Delta.Final {
			return
		}
	}
}

func (m *Manager) writePump(wc *workerConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wc.conn.Close()
	}()

	for {
		select {
		case env, ok := <-wc.send:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeEnvelope(wc.conn, env); err != nil {
				return
			}
		case <-ticker.C:
			wc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) mergeDelta(wc *workerConn, d *wire.Delta) {
	delta := metrics.NewReport()
	for _, eb := range d.Buckets {
		b := &metrics.Bucket{Total: eb.Total, Successes: eb.Successes, Failures: eb.Failures}
		b.Min = time.Duration(eb.MinMS) * time.Millisecond
		b.Max = time.Duration(eb.MaxMS) * time.Millisecond
		for i, v := range eb.Histogram {
			if i < len(b.Histogram) {
				b.Histogram[i] = v
			}
		}
		delta.Buckets[eb.Endpoint] = b
	}

	m.mu.Lock()
	m.report = metrics.Merge(m.report, delta)
	snapshot := m.report
	m.mu.Unlock()

	if m.onSnapshot != nil {
		m.onSnapshot(snapshot)
	}
}

func (m *Manager) onWorkerGone(wc *workerConn) {
	phase := wc.getPhase()

	m.mu.Lock()
	delete(m.workers, wc.id)
	m.mu.Unlock()
	m.activeWorkers.Add(-1)

	switch phase {
	case phaseStarting:
		m.log.Warnw("worker disconnected before the run started", "worker_id", wc.id)
		select {
		case m.abortCh <- errors.Newf("manager: worker %d disconnected before the run started", wc.id):
		default:
		}
	case phaseRunning:
		m.log.Warnw("worker disconnected mid-run, transitioning to drain", "worker_id", wc.id)
		m.shutdownOnce.Do(func() { close(m.shutdownCh) })
	case phaseDraining:
		m.log.Infow("worker exited after draining", "worker_id", wc.id)
	}
}

// Snapshot returns the current merged report across all workers.
func (m *Manager) Snapshot() *metrics.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

func readEnvelope(conn *websocket.Conn) (wire.Envelope, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return wire.Envelope{}, err
	}
	return wire.Unmarshal(data)
}

func writeEnvelope(conn *websocket.Conn, env wire.Envelope) error {
	b, err := wire.Marshal(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, b)
}
