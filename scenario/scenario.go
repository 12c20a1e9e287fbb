// Package scenario defines the registration surface load tests use to
// describe the transactions a virtual user runs, and the weighted
// selection list the scheduler walks at runtime.
package scenario

import (
	"sync"
	"time"

	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/vuser"
)

// TransactionResult is the outcome a TransactionFunc reports back to the
// scheduler, distinct from the HTTP-level success/failure recorded in
// metrics.Outcome: it governs what the user does next, not what gets
// counted.
type TransactionResult int

const (
	// ResultSuccess continues the user's loop normally.
	ResultSuccess TransactionResult = iota
	// ResultFailure records a failed iteration but continues looping.
	ResultFailure
	// ResultCancelled means the context was cancelled mid-transaction. The
	// scheduler takes no action on it: the user leaves its loop for OnStop
	// only at its next context check, and a live context keeps it looping.
	ResultCancelled
	// ResultFatalConfig means the transaction hit a condition that makes
	// the whole scenario unusable (e.g. a missing required session value).
	// The scheduler records it as a failed transaction and the user keeps
	// looping; it does not terminate the user or the run.
	ResultFatalConfig
)

func (r TransactionResult) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultCancelled:
		return "cancelled"
	case ResultFatalConfig:
		return "fatal_config"
	default:
		return "unknown"
	}
}

// TransactionFunc is a unit of work a virtual user runs. It receives the
// user running it so it can issue requests, sleep, and read/write session
// state through the user's Goose-trait-derived methods.
type TransactionFunc func(u *vuser.User) TransactionResult

// Transaction is a single named, weighted unit of work within a Scenario.
type Transaction struct {
	Name   string
	Weight int
	Fn     TransactionFunc

	// Sequential transactions run once, in declaration order, strictly
	// before the weighted pool is entered, and never again.
	Sequential bool
}

// TransactionOption customizes a Transaction at registration time.
type TransactionOption func(*Transaction)

// WithWeight sets the relative frequency of a transaction within the
// weighted pool. The default weight is 1.
func WithWeight(weight int) TransactionOption {
	return func(t *Transaction) { t.Weight = weight }
}

// Sequential marks a transaction as running once, in order, before the
// weighted pool starts — used for login-style setup steps.
func Sequential() TransactionOption {
	return func(t *Transaction) { t.Sequential = true }
}

// Scenario is a named collection of transactions plus optional on_start /
// on_stop hooks that run once per user outside the throttle.
type Scenario struct {
	Name        string
	Weight      int
	OnStart     TransactionFunc
	OnStop      TransactionFunc
	Sequential  []Transaction
	Weighted    []Transaction
	weightedIdx []int // flattened index -> Weighted slot, built by Build()

	// WaitMin/WaitMax bound the interval the weighted loop sleeps between
	// iterations, sampled uniformly per iteration. Zero WaitMax means no
	// wait-time sleep at all.
	WaitMin time.Duration
	WaitMax time.Duration

	// Host overrides the scheduler's shared base URL for every user running
	// this scenario, when non-empty.
	Host string
}

// Build flattens the weighted transaction pool into a deterministic index
// list sized to the sum of weights, so the scheduler can select the next
// transaction with a single modular index into a plain slice instead of a
// weighted-random draw on every iteration.
func (s *Scenario) Build() {
	s.weightedIdx = s.weightedIdx[:0]
	for i, t := range s.Weighted {
		weight := t.Weight
		if weight <= 0 {
			weight = 1
		}
		for n := 0; n < weight; n++ {
			s.weightedIdx = append(s.weightedIdx, i)
		}
	}
}

// TransactionAt returns the weighted transaction at flattened index i,
// wrapping modulo the flattened pool size. Build must have been called
// first; an empty weighted pool returns false.
func (s *Scenario) TransactionAt(i int) (Transaction, bool) {
	if len(s.weightedIdx) == 0 {
		return Transaction{}, false
	}
	slot := s.weightedIdx[i%len(s.weightedIdx)]
	return s.Weighted[slot], true
}

// WeightedLen returns the size of the flattened weighted pool.
func (s *Scenario) WeightedLen() int {
	return len(s.weightedIdx)
}

// Builder accumulates transactions onto a Scenario under construction.
type Builder struct {
	scenario *Scenario
}

// New starts building a Scenario with the given name and relative weight
// (how often it's picked against sibling scenarios; default 1).
func New(name string, weight int) *Builder {
	if weight <= 0 {
		weight = 1
	}
	return &Builder{scenario: &Scenario{Name: name, Weight: weight}}
}

// OnStart registers a hook that runs once per user, before the weighted
// loop, unthrottled.
func (b *Builder) OnStart(fn TransactionFunc) *Builder {
	b.scenario.OnStart = fn
	return b
}

// OnStop registers a hook that runs once per user, after the weighted loop
// ends (including on cancellation), unthrottled.
func (b *Builder) OnStop(fn TransactionFunc) *Builder {
	b.scenario.OnStop = fn
	return b
}

// WaitTime sets the inter-transaction wait-time range: after each weighted
// loop iteration, the user sleeps a uniformly sampled duration in [min, max]
// before selecting the next transaction. Leaving this unset (the default)
// means no inter-transaction sleep at all.
func (b *Builder) WaitTime(min, max time.Duration) *Builder {
	b.scenario.WaitMin = min
	b.scenario.WaitMax = max
	return b
}

// OnHost overrides the scheduler's shared base URL for every user running
// this scenario.
func (b *Builder) OnHost(host string) *Builder {
	b.scenario.Host = host
	return b
}

// Transaction adds a weighted transaction to the pool.
func (b *Builder) Transaction(name string, fn TransactionFunc, opts ...TransactionOption) *Builder {
	t := Transaction{Name: name, Weight: 1, Fn: fn}
	for _, opt := range opts {
		opt(&t)
	}
	if t.Sequential {
		b.scenario.Sequential = append(b.scenario.Sequential, t)
	} else {
		b.scenario.Weighted = append(b.scenario.Weighted, t)
	}
	return b
}

// Build finalizes the scenario, flattening its weighted pool, and returns
// it for registration.
func (b *Builder) Build() *Scenario {
	b.scenario.Build()
	return b.scenario
}

// Registry holds the scenarios a load test registers, keyed by name.
// Thread-safe so a scenario package's init() can register from multiple
// files without coordination.
type Registry struct {
	mu        sync.RWMutex
	scenarios map[string]*Scenario
	order     []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{scenarios: make(map[string]*Scenario)}
}

// Register adds a scenario, erroring if its name is already taken.
func (r *Registry) Register(s *Scenario) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.scenarios[s.Name]; exists {
		return errors.Newf("scenario: %q already registered", s.Name)
	}
	r.scenarios[s.Name] = s
	r.order = append(r.order, s.Name)
	return nil
}

// Get returns the scenario registered under name, if any.
func (r *Registry) Get(name string) (*Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scenarios[name]
	return s, ok
}

// All returns the registered scenarios in registration order.
func (r *Registry) All() []*Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Scenario, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.scenarios[name])
	}
	return out
}

// Len returns the number of registered scenarios.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenarios)
}
