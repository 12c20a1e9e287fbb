// Package worker connects to a manager and runs the allotment of virtual
// users it's assigned, periodically shipping metrics deltas back.
package worker

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/goload/config"
	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/logger"
	"github.com/teranos/goload/metrics"
	"github.com/teranos/goload/scenario"
	"github.com/teranos/goload/scheduler"
	"github.com/teranos/goload/wire"
)

// DefaultDeltaInterval is how often a worker ships a metrics delta to the
// manager while a run is in progress.
const DefaultDeltaInterval = 15 * time.Second

const dialTimeout = 10 * time.Second

// Worker dials a manager, waits for its allotment, and runs it.
type Worker struct {
	cfg           config.Config
	registry      *scenario.Registry
	loadTestHash  uint32
	log           *zap.SugaredLogger
	deltaInterval time.Duration
}

// New returns a Worker for the given registry; cfg.ManagerHost must be
// set.
func New(cfg config.Config, registry *scenario.Registry, loadTestHash uint32) *Worker {
	return &Worker{
		cfg:           cfg,
		registry:      registry,
		loadTestHash:  loadTestHash,
		log:           logger.Logger,
		deltaInterval: DefaultDeltaInterval,
	}
}

// Run connects to the manager, waits for an allotment, and runs the
// scheduler for it until the manager sends CommandExit or ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: w.cfg.ManagerHost, Path: "/gaggle"}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "worker: dialing manager")
	}
	defer conn.Close()

	if err := writeEnvelope(conn, wire.Envelope{
		Kind:  wire.KindHello,
		Hello: &wire.Hello{LoadTestHash: w.loadTestHash},
	}); err != nil {
		return errors.Wrap(err, "worker: sending hello")
	}

	env, err := readEnvelope(conn)
	if err != nil {
		return errors.Wrap(err, "worker: reading manager reply")
	}
	switch env.Kind {
	case wire.KindReject:
		return errors.Wrapf(wire.ErrHashMismatch, "worker: rejected by manager: %s", env.Reject.Reason)
	case wire.KindAllotment:
	default:
		return errors.Wrap(wire.ErrManagerProtocol, "worker: expected allotment or reject from manager")
	}

	allotment := *env.Allotment
	w.log.Infow("received allotment", "worker_id", allotment.WorkerID, "users", allotment.Users)

	if err := w.awaitRunCommand(conn); err != nil {
		return err
	}

	return w.runAllotment(ctx, conn, allotment)
}

func (w *Worker) awaitRunCommand(conn *websocket.Conn) error {
	for {
		env, err := readEnvelope(conn)
		if err != nil {
			return errors.Wrap(err, "worker: waiting for run command")
		}
		if env.Kind != wire.KindCommand || env.Command == nil {
			continue
		}
		switch env.Command.Command {
		case wire.CommandRun:
			return nil
		case wire.CommandExit:
			return errors.Wrap(wire.ErrManagerProtocol, "worker: manager sent exit before run started")
		case wire.CommandWait:
			continue
		}
	}
}

func (w *Worker) runAllotment(ctx context.Context, conn *websocket.Conn, a wire.Allotment) error {
	runCfg := w.cfg
	runCfg.Users = a.Users
	runCfg.HatchRate = a.HatchRate
	runCfg.RunTime = time.Duration(a.RunTimeSeconds) * time.Second
	runCfg.ThrottleRequests = a.ThrottleRequests
	if runCfg.Host == "" {
		runCfg.Host = a.Host
	}

	outcomes := make(chan metrics.Outcome, 4096)
	agg := metrics.New(4096, nil, metrics.WithSnapshotInterval(0))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for o := range outcomes {
			agg.Outcomes() <- o
		}
	}()

	sched := scheduler.New(runCfg, w.registry, runCfg.Host, outcomes,
		scheduler.WithLogger(w.log),
		scheduler.WithLoadTestHash(w.loadTestHash),
		scheduler.WithWeightedUserOffset(a.WeightedUserOffset),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitCh := make(chan struct{})
	go w.watchExit(conn, cancel, exitCh)

	ticker := time.NewTicker(w.deltaInterval)
	defer ticker.Stop()

	runDone := make(chan error, 1)
	go func() { runDone <- sched.Run(runCtx) }()

	var runErr error
loop:
	for {
		select {
		case <-ticker.C:
			w.shipDelta(conn, a.WorkerID, agg.Snapshot(), false)
		case runErr = <-runDone:
			break loop
		}
	}

	close(outcomes)
	wg.Wait()
	final := agg.Close()
	w.shipDelta(conn, a.WorkerID, final, true)
	close(exitCh)

	if errors.Is(runErr, scheduler.ErrCancelled) && ctx.Err() == nil {
		// runCtx was cancelled by watchExit, i.e. the manager asked us to
		// stop — that's a normal end to a distributed run, not a failure.
		return nil
	}
	return runErr
}

// watchExit listens for the manager's CommandExit and cancels the run.
func (w *Worker) watchExit(conn *websocket.Conn, cancel context.CancelFunc, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		env, err := readEnvelope(conn)
		if err != nil {
			continue
		}
		if env.Kind == wire.KindCommand && env.Command != nil && env.Command.Command == wire.CommandExit {
			w.log.Info("manager requested exit")
			cancel()
			return
		}
	}
}

func (w *Worker) shipDelta(conn *websocket.Conn, workerID int, r *metrics.Report, final bool) {
	buckets := make([]wire.EndpointBucket, 0, len(r.Buckets))
	for _, endpoint := range r.Endpoints() {
		b := r.Buckets[endpoint]
		buckets = append(buckets, wire.EndpointBucket{
			Endpoint:  endpoint,
			Total:     b.Total,
			Successes: b.Successes,
			Failures:  b.Failures,
			Histogram: append([]uint64(nil), b.Histogram[:]...),
			MinMS:     int64(b.Min / time.Millisecond),
			MaxMS:     int64(b.Max / time.Millisecond),
		})
	}

	err := writeEnvelope(conn, wire.Envelope{
		Kind: wire.KindDelta,
		Delta: &wire.Delta{
			WorkerID: workerID,
			Buckets:  buckets,
			Final:    final,
		},
	})
	if err != nil {
		w.log.Warnw("failed to ship metrics delta", "error", err)
	}
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
