// Package vuser models a single virtual user: its lifecycle state, its
// Goose-trait-derived accessors, and the coordinated-omission correction
// applied when a target stalls under load.
package vuser

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/goload/config"
	"github.com/teranos/goload/metrics"
	"github.com/teranos/goload/requester"
	"github.com/teranos/goload/throttle"
)

// State is a point in a virtual user's lifecycle.
type State int

const (
	Starting State = iota
	OnStart
	Looping
	OnStop
	Terminated
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case OnStart:
		return "on_start"
	case Looping:
		return "looping"
	case OnStop:
		return "on_stop"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Cadence tracks the rolling average time between a user's iterations, used
// to decide how many synthetic outcomes to backfill when a target stalls.
type Cadence struct {
	mu      sync.Mutex
	samples []time.Duration
	max     int
}

// NewCadence returns a Cadence tracker retaining the last max samples.
func NewCadence(max int) *Cadence {
	if max <= 0 {
		max = 10
	}
	return &Cadence{max: max}
}

// Record adds a new inter-iteration duration sample.
func (c *Cadence) Record(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, d)
	if len(c.samples) > c.max {
		c.samples = c.samples[len(c.samples)-c.max:]
	}
}

// Average returns the mean of the retained samples, or 0 if none recorded.
func (c *Cadence) Average() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range c.samples {
		total += s
	}
	return total / time.Duration(len(c.samples))
}

// User is one virtual user: the runtime state the scheduler drives through
// its scenario's transactions, carrying the full Goose-trait surface so
// user-authored TransactionFuncs can act on it directly.
type User struct {
	mu sync.Mutex

	scenariosIndex     int
	weightedUsersIndex int
	state              State

	config *config.Config
	logger *zap.SugaredLogger

	throttle  *throttle.Throttle
	metrics   chan<- metrics.Outcome
	shutdown  <-chan struct{}
	requester requester.Requester

	cadence      *Cadence
	lastIterAt   time.Time
	iterations   uint64
	sleptTotal   time.Duration
	transaction  string
	loadTestHash uint32
	baseURL      string

	// Session is an arbitrary per-user value a scenario's on_start hook can
	// populate (an auth token, a cookie jar handle, ...) and later
	// transactions can type-assert back out.
	Session any
}

// New returns a User ready to be driven by the scheduler. scenariosIndex
// selects which registered scenario this user runs; weightedUsersIndex is
// this user's position in the manager's (or single-process run's) weighted
// user-to-scenario assignment.
func New(scenariosIndex, weightedUsersIndex int, cfg *config.Config, baseURL string) *User {
	return &User{
		scenariosIndex:     scenariosIndex,
		weightedUsersIndex: weightedUsersIndex,
		state:              Starting,
		config:             cfg,
		baseURL:            baseURL,
		cadence:            NewCadence(20),
		logger:             zap.NewNop().Sugar(),
	}
}

// State returns the user's current lifecycle state.
func (u *User) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// SetState transitions the user to a new lifecycle state.
func (u *User) SetState(s State) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state = s
}

// BaseURL returns the target host this user issues requests against.
func (u *User) BaseURL() string {
	return u.baseURL
}

// --- Goose-trait-derived accessors ---

// AddSleptTime accumulates time this user spent sleeping between
// iterations, for cadence/reporting purposes.
func (u *User) AddSleptTime(d time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sleptTotal += d
}

// SleptTotal returns the cumulative sleep time recorded.
func (u *User) SleptTotal() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sleptTotal
}

// AddIteration increments the user's completed-iteration counter.
func (u *User) AddIteration() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.iterations++
}

// Iterations returns the number of completed iterations.
func (u *User) Iterations() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.iterations
}

// UpdateRequestCadence records the time elapsed since the previous
// iteration boundary, feeding the coordinated-omission estimator.
func (u *User) UpdateRequestCadence(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.lastIterAt.IsZero() {
		u.cadence.Record(now.Sub(u.lastIterAt))
	}
	u.lastIterAt = now
}

// CadenceAverage returns the user's rolling average inter-iteration duration.
func (u *User) CadenceAverage() time.Duration {
	return u.cadence.Average()
}

// Started reports whether the user has progressed past Starting.
func (u *User) Started() bool {
	return u.State() != Starting
}

// ScenariosIndex returns which registered scenario this user runs.
func (u *User) ScenariosIndex() int {
	return u.scenariosIndex
}

// WeightedUsersIndex returns this user's position in the weighted
// user-to-scenario assignment.
func (u *User) WeightedUsersIndex() int {
	return u.weightedUsersIndex
}

// SetConfig installs the run's configuration record.
func (u *User) SetConfig(cfg *config.Config) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.config = cfg
}

// Config returns the run's configuration record.
func (u *User) Config() *config.Config {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.config
}

// SetShutdownChannel installs the channel this user watches for a
// cancellation signal alongside context cancellation.
func (u *User) SetShutdownChannel(ch <-chan struct{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.shutdown = ch
}

// ShutdownChannel returns the user's shutdown signal channel.
func (u *User) ShutdownChannel() <-chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.shutdown
}

// SetMetricsChannel installs the channel outcomes are sent to.
func (u *User) SetMetricsChannel(ch chan<- metrics.Outcome) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.metrics = ch
}

// MetricsChannel returns the channel outcomes are sent to.
func (u *User) MetricsChannel() chan<- metrics.Outcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.metrics
}

// SetLogger installs this user's scoped logger.
func (u *User) SetLogger(l *zap.SugaredLogger) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	u.logger = l
}

// Logger returns this user's scoped logger.
func (u *User) Logger() *zap.SugaredLogger {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.logger
}

// SetThrottle installs this user's shared throttle.
func (u *User) SetThrottle(t *throttle.Throttle) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.throttle = t
}

// Throttle returns this user's shared throttle, or nil if none was installed.
func (u *User) Throttle() *throttle.Throttle {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.throttle
}

// SetRequester installs the transport this user issues requests through.
func (u *User) SetRequester(r requester.Requester) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requester = r
}

// Requester returns this user's configured transport, or nil if none was
// installed (e.g. a scenario that only exercises non-network logic).
func (u *User) Requester() requester.Requester {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requester
}

// SetTransactionName records the name of the transaction currently
// executing, so request outcomes can be tagged with it.
func (u *User) SetTransactionName(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.transaction = name
}

// TakeTransactionName returns and clears the current transaction name.
func (u *User) TakeTransactionName() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	name := u.transaction
	u.transaction = ""
	return name
}

// SetLoadTestHash records the run's load_test_hash on the user. Outcomes,
// real or synthesized, do not carry the hash.
func (u *User) SetLoadTestHash(hash uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.loadTestHash = hash
}

// LoadTestHash returns the hash assigned to this run.
func (u *User) LoadTestHash() uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.loadTestHash
}

// SendRequestOutcome delivers a completed request's outcome to the
// aggregator, tagging it with the user's weighted index. It silently
// drops the outcome if no metrics channel is installed (e.g. unit tests
// exercising a transaction in isolation).
func (u *User) SendRequestOutcome(o metrics.Outcome) {
	ch := u.MetricsChannel()
	if ch == nil {
		return
	}
	o.User = u.WeightedUsersIndex()

	defer func() {
		if r := recover(); r != nil {
			u.Logger().Warnw("dropped outcome", "error", metrics.ErrChannelClosed, "endpoint", o.Endpoint)
		}
	}()
	ch <- o
}

// SetFailure logs a failed transaction at warn level; request-level
// failure is recorded separately via SendRequestOutcome.
func (u *User) SetFailure(transaction string, err error) {
	u.Logger().Warnw("transaction failed", "transaction", transaction, "error", err)
}

// SetSuccess logs a successful transaction at debug level.
func (u *User) SetSuccess(transaction string) {
	u.Logger().Debugw("transaction succeeded", "transaction", transaction)
}

// LogDebug logs at debug level scoped to this user.
func (u *User) LogDebug(msg string, keysAndValues ...any) {
	u.Logger().Debugw(msg, keysAndValues...)
}

// Single blocks a transaction's effect to run exactly once across however
// many times the enclosing scenario loops it, using sync.Once semantics
// keyed by name. It's a convenience for TransactionFuncs that want
// idempotent one-time setup without a dedicated on_start hook.
type Single struct {
	mu   sync.Mutex
	done map[string]struct{}
}

// NewSingle returns an empty Single gate.
func NewSingle() *Single {
	return &Single{done: make(map[string]struct{})}
}

// Do runs fn only the first time Do is called for the given key.
func (s *Single) Do(key string, fn func()) {
	s.mu.Lock()
	_, already := s.done[key]
	if !already {
		s.done[key] = struct{}{}
	}
	s.mu.Unlock()

	if !already {
		fn()
	}
}
