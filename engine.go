// Package goload wires together the scenario registry, scheduler, metrics
// aggregator, optional metrics log sink, and the manager/worker gaggle
// protocol into the single entrypoint a load test (whether driven by
// cmd/goload or a library consumer's own main) calls to execute to
// completion.
package goload

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/teranos/goload/config"
	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/logger"
	"github.com/teranos/goload/logsink"
	"github.com/teranos/goload/manager"
	"github.com/teranos/goload/metrics"
	"github.com/teranos/goload/scenario"
	"github.com/teranos/goload/scheduler"
	"github.com/teranos/goload/wire"
	"github.com/teranos/goload/worker"
)

// Attack is a load test's scenario registry plus the configuration it will
// execute with. Register every scenario before calling Execute.
type Attack struct {
	cfg      config.Config
	registry *scenario.Registry
}

// NewAttack returns an Attack against an empty scenario registry.
func NewAttack(cfg config.Config) *Attack {
	return &Attack{cfg: cfg, registry: scenario.NewRegistry()}
}

// Register adds a scenario to the attack, erroring if its name is already
// taken.
func (a *Attack) Register(s *scenario.Scenario) error {
	return a.registry.Register(s)
}

// Registry exposes the attack's scenario registry, e.g. for a worker
// process that needs the identical scenario set a manager was built
// against so their load_test_hash values match.
func (a *Attack) Registry() *scenario.Registry {
	return a.registry
}

// Run is the one-call convenience entrypoint: it validates cfg, registers
// scenarios, and executes to completion in whichever of the three run
// modes (single-process, manager, worker) cfg selects.
func Run(ctx context.Context, cfg config.Config, scenarios ...*scenario.Scenario) (*metrics.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := NewAttack(cfg)
	for _, s := range scenarios {
		if err := a.Register(s); err != nil {
			return nil, err
		}
	}
	return a.Execute(ctx)
}

// Execute runs the attack to completion: a single-process run of the full
// population, a manager waiting on and aggregating its workers, or a
// worker running the allotment a manager assigns it — selected by
// cfg.Manager/cfg.Worker.
func (a *Attack) Execute(ctx context.Context) (*metrics.Report, error) {
	if a.registry.Len() == 0 {
		return nil, errors.New("goload: no scenarios registered")
	}

	hash := wire.LoadTestHash(scenarioNames(a.registry))
	runID := uuid.NewString()
	logger.Logger.Infow("starting load test", "run_id", runID, "load_test_hash", hash)

	switch {
	case a.cfg.Manager:
		return a.runManager(ctx, hash)
	case a.cfg.Worker:
		return a.runWorker(ctx, hash)
	default:
		return a.runSingleProcess(ctx, hash)
	}
}

func scenarioNames(r *scenario.Registry) []string {
	all := r.All()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = s.Name
	}
	return names
}

// runSingleProcess hatches the whole cfg.Users population in this process,
// optionally teeing every outcome to a metrics log file, and returns the
// final aggregated report once every user has terminated.
func (a *Attack) runSingleProcess(ctx context.Context, hash uint32) (*metrics.Report, error) {
	sink, err := openSink(a.cfg)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		defer sink.Close()
	}

	outcomes := make(chan metrics.Outcome, 4096)
	fedByTee := outcomes
	if sink != nil {
		teed := make(chan metrics.Outcome, 4096)
		fedByTee = teed
		go logsink.Tee(sink, outcomes, teed, func(err error) {
			logger.Logger.Warnw("failed to write metrics log line", "error", err)
		})
	}

	interval := metrics.DefaultSnapshotInterval
	if a.cfg.OnlySummary {
		interval = 0
	}
	agg := metrics.New(4096, nil, metrics.WithSnapshotInterval(interval))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for o := range fedByTee {
			agg.Outcomes() <- o
		}
	}()

	sched := scheduler.New(a.cfg, a.registry, a.cfg.Host, outcomes, scheduler.WithLoadTestHash(hash))
	runErr := sched.Run(ctx)

	close(outcomes)
	wg.Wait()
	report := agg.Close()

	if runErr != nil && !errors.Is(runErr, scheduler.ErrCancelled) {
		return report, runErr
	}
	return report, nil
}

// runManager starts the gaggle websocket server, waits for cfg.ExpectWorkers
// to connect, lets the run proceed until ctx is cancelled or cfg.RunTime
// elapses, then drains every worker and returns the merged report.
func (a *Attack) runManager(ctx context.Context, hash uint32) (*metrics.Report, error) {
	mgr := manager.New(a.cfg, hash, nil)

	addr := net.JoinHostPort(a.cfg.ManagerBindHost, strconv.Itoa(a.cfg.ManagerBindPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "goload: binding manager to %s", addr)
	}

	srv := &http.Server{Handler: mgr}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	defer srv.Close()

	logger.Logger.Infow("manager listening", "addr", addr, "expect_workers", a.cfg.ExpectWorkers)

	select {
	case err := <-serveErr:
		return nil, errors.Wrap(err, "goload: manager http server")
	case err := <-waitForWorkers(mgr, ctx):
		if err != nil {
			return nil, errors.Wrap(err, "goload: waiting for workers to connect")
		}
	case err := <-mgr.Aborted():
		return nil, errors.Wrap(err, "goload: worker lost before the run started")
	}

	logger.Logger.Info("all workers connected, run in progress")

	runCtx := ctx
	if a.cfg.RunTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.RunTime)
		defer cancel()
	}
	select {
	case <-runCtx.Done():
	case <-mgr.ShutdownRequested():
		logger.Logger.Warn("worker lost mid-run, draining early")
	}

	logger.Logger.Info("run ending, draining workers")
	return mgr.Shutdown(), nil
}

func waitForWorkers(mgr *manager.Manager, ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- mgr.Wait(ctx) }()
	return ch
}

// runWorker dials cfg.ManagerHost and runs whatever allotment the manager
// assigns until it's told to stop. Its outcomes are streamed to the
// manager as metrics deltas rather than returned here, so the report
// returned is empty; callers that need the aggregated totals should read
// them from the manager side.
func (a *Attack) runWorker(ctx context.Context, hash uint32) (*metrics.Report, error) {
	w := worker.New(a.cfg, a.registry, hash)
	if err := w.Run(ctx); err != nil {
		return nil, err
	}
	return metrics.NewReport(), nil
}

func openSink(cfg config.Config) (*logsink.Sink, error) {
	if cfg.MetricsFile == "" {
		return nil, nil
	}
	return logsink.Open(cfg.MetricsFile)
}
