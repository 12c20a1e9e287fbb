// Package scheduler hatches virtual users at the configured rate, runs
// each through its scenario's on_start/weighted-loop/on_stop lifecycle,
// and coordinates shutdown across the whole population.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/goload/config"
	"github.com/teranos/goload/logger"
	"github.com/teranos/goload/metrics"
	"github.com/teranos/goload/scenario"
	"github.com/teranos/goload/throttle"
	"github.com/teranos/goload/vuser"
)

// Scheduler hatches and runs the virtual user population for one load
// test — either the whole population in a single process, or the slice a
// worker was allotted by the manager.
type Scheduler struct {
	cfg       config.Config
	registry  *scenario.Registry
	baseURL   string
	log       *zap.SugaredLogger
	throttle  *throttle.Throttle
	outcomes  chan<- metrics.Outcome
	loadHash  uint32
	weightOff int // weightedUsersIndex offset, used by workers allotted a slice

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger (defaults to the package
// logger).
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithThrottle installs a shared throttle every hatched user draws from.
func WithThrottle(t *throttle.Throttle) Option {
	return func(s *Scheduler) { s.throttle = t }
}

// WithLoadTestHash records the run's load_test_hash on every hatched user.
func WithLoadTestHash(hash uint32) Option {
	return func(s *Scheduler) { s.loadHash = hash }
}

// WithWeightedUserOffset shifts the weightedUsersIndex assigned to hatched
// users, used by a worker running a slice of the full population so its
// users don't collide with another worker's indices.
func WithWeightedUserOffset(offset int) Option {
	return func(s *Scheduler) { s.weightOff = offset }
}

// New returns a Scheduler for the given registry, target, and outcome
// sink. cfg.Users governs how many users this scheduler hatches; for a
// worker running an allotment, pass a copy of the config with Users set to
// the allotted count.
func New(cfg config.Config, registry *scenario.Registry, baseURL string, outcomes chan<- metrics.Outcome, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		registry: registry,
		baseURL:  baseURL,
		outcomes: outcomes,
		log:      logger.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.throttle == nil {
		s.throttle = throttle.New(cfg.ThrottleRequests)
	}
	return s
}

// Run hatches the configured user population at cfg.HatchRate users/sec,
// runs them until ctx is cancelled or cfg.RunTime elapses, then waits for
// every user to reach Terminated before returning. External cancellation
// (OS signals, the "second interrupt forces immediate exit" rule) is
// cmd/goload's responsibility; the Scheduler only ever reacts to the
// context it's given.
func (s *Scheduler) Run(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if s.cfg.RunTime > 0 {
		timer := time.AfterFunc(s.cfg.RunTime, cancel)
		defer timer.Stop()
	}

	shutdown := make(chan struct{})
	defer close(shutdown)

	scenarios := s.registry.All()
	if len(scenarios) == 0 {
		return errNoScenarios
	}

	limiter := rate.NewLimiter(rate.Limit(s.cfg.HatchRate), 1)

	for i := 0; i < s.cfg.Users; i++ {
		if err := limiter.Wait(ctx); err != nil {
			break // cancelled mid-hatch; already-hatched users still run to completion
		}

		scenariosIndex := i % len(scenarios)
		weightedIdx := s.weightOff + i
		baseURL := s.baseURL
		if host := scenarios[scenariosIndex].Host; host != "" {
			baseURL = host
		}
		u := vuser.New(scenariosIndex, weightedIdx, &s.cfg, baseURL)
		u.SetLogger(s.log)
		u.SetThrottle(s.throttle)
		u.SetMetricsChannel(s.outcomes)
		u.SetLoadTestHash(s.loadHash)
		u.SetShutdownChannel(shutdown)

		s.wg.Add(1)
		go s.runUser(ctx, u, scenarios[scenariosIndex])
	}

	s.wg.Wait()

	if parentCtx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func (s *Scheduler) runUser(ctx context.Context, u *vuser.User, sc *scenario.Scenario) {
	defer s.wg.Done()

	u.SetState(vuser.OnStart)
	if sc.OnStart != nil {
		runHook(u, sc.OnStart)
	}

	u.SetState(vuser.Looping)
	s.runSequential(ctx, u, sc)
	s.runWeightedLoop(ctx, u, sc)

	u.SetState(vuser.OnStop)
	if sc.OnStop != nil {
		runHook(u, sc.OnStop)
	}

	u.SetState(vuser.Terminated)
}

func (s *Scheduler) runSequential(ctx context.Context, u *vuser.User, sc *scenario.Scenario) {
	for _, t := range sc.Sequential {
		if ctx.Err() != nil {
			return
		}
		if err := u.Throttle().Acquire(ctx); err != nil {
			return
		}
		invoke(u, t)
	}
}

func (s *Scheduler) runWeightedLoop(ctx context.Context, u *vuser.User, sc *scenario.Scenario) {
	if sc.WeightedLen() == 0 {
		return
	}

	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return
		}

		t, ok := sc.TransactionAt(i)
		if !ok {
			return
		}

		if err := u.Throttle().Acquire(ctx); err != nil {
			return
		}

		u.UpdateRequestCadence(time.Now())
		invoke(u, t)
		u.AddIteration()

		if !s.waitSleep(ctx, u, sc) {
			return
		}
	}
}

// waitSleep sleeps a uniformly sampled duration in the scenario's wait-time
// range, recording the slept time on the user. A zero WaitMax means the
// scenario has no wait-time configured, so this is a no-op. Returns false if
// the context was cancelled during the sleep.
func (s *Scheduler) waitSleep(ctx context.Context, u *vuser.User, sc *scenario.Scenario) bool {
	if sc.WaitMax <= 0 {
		return ctx.Err() == nil
	}

	d := sc.WaitMin
	if span := sc.WaitMax - sc.WaitMin; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		u.AddSleptTime(d)
		return true
	case <-ctx.Done():
		return false
	}
}

func runHook(u *vuser.User, fn scenario.TransactionFunc) {
	result := fn(u)
	if result == scenario.ResultFailure {
		u.SetFailure("on_start/on_stop", errHookFailed)
	}
}

// invoke runs one transaction. Request-level metrics are recorded by the
// transaction itself via the user's Get/Post/Do methods, not here — a
// transaction may issue zero, one, or several requests, so there's no
// single request outcome to attribute to the transaction as a whole.
func invoke(u *vuser.User, t scenario.Transaction) {
	u.SetTransactionName(t.Name)
	result := t.Fn(u)

	switch result {
	case scenario.ResultSuccess:
		u.SetSuccess(t.Name)
	case scenario.ResultFailure:
		u.SetFailure(t.Name, errTransactionFailed)
	case scenario.ResultFatalConfig:
		u.SetFailure(t.Name, errFatalConfig)
	}
}
