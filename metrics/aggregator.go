package metrics

import (
	"sync"
	"time"

	"github.com/teranos/goload/internal/clock"
)

// DefaultSnapshotInterval is how often the Aggregator emits a running
// snapshot when periodic reporting is enabled.
const DefaultSnapshotInterval = 15 * time.Second

// Report is the aggregated view of all outcomes recorded so far, keyed by
// endpoint name.
type Report struct {
	Buckets map[string]*Bucket
}

// NewReport returns an empty Report.
func NewReport() *Report {
	return &Report{Buckets: make(map[string]*Bucket)}
}

// Endpoints returns the endpoint names present in the report, sorted.
func (r *Report) Endpoints() []string {
	return sortedKeys(r.Buckets)
}

// record folds one outcome into the report's per-endpoint bucket.
func (r *Report) record(o Outcome) {
	b, ok := r.Buckets[o.Endpoint]
	if !ok {
		b = &Bucket{}
		r.Buckets[o.Endpoint] = b
	}
	b.Record(o)
}

// Merge folds the buckets of every non-nil report into a new Report. Since Bucket.Merge is associative and commutative, Merge may be
// applied to worker snapshots in any order and any grouping.
func Merge(reports ...*Report) *Report {
	result := NewReport()
	for _, rpt := range reports {
		if rpt == nil {
			continue
		}
		for endpoint, bucket := range rpt.Buckets {
			existing, ok := result.Buckets[endpoint]
			if !ok {
				merged := *bucket
				result.Buckets[endpoint] = &merged
				continue
			}
			merged := existing.Merge(*bucket)
			result.Buckets[endpoint] = &merged
		}
	}
	return result
}

// SnapshotFunc receives a read-only copy of the current report on each
// snapshot tick and at final flush.
type SnapshotFunc func(*Report)

// Aggregator is the single consumer of Outcome records from all virtual
// users in a process. It owns the only mutable copy of the running Report;
// everything else only ever sees snapshots.
type Aggregator struct {
	outcomes chan Outcome
	snapshot SnapshotFunc
	interval time.Duration
	clock    clock.Clock

	mu     sync.Mutex
	report *Report

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithSnapshotInterval overrides DefaultSnapshotInterval. An interval <= 0
// disables periodic snapshots (the --only-summary behavior); the final
// snapshot on Close is unaffected.
func WithSnapshotInterval(d time.Duration) Option {
	return func(a *Aggregator) { a.interval = d }
}

// WithClock injects a clock for deterministic snapshot-timing tests.
func WithClock(c clock.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// New starts an Aggregator with the given outcome-channel buffer size and
// snapshot callback. Call Close to stop it and obtain the final report.
func New(bufferSize int, onSnapshot SnapshotFunc, opts ...Option) *Aggregator {
	a := &Aggregator{
		outcomes: make(chan Outcome, bufferSize),
		snapshot: onSnapshot,
		interval: DefaultSnapshotInterval,
		clock:    clock.New(),
		report:   NewReport(),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.wg.Add(1)
	go a.run()
	return a
}

// Outcomes returns the channel Users should send Outcome records to.
func (a *Aggregator) Outcomes() chan<- Outcome {
	return a.outcomes
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	var tick <-chan time.Time
	var ticker clock.Ticker
	if a.interval > 0 {
		ticker = a.clock.NewTicker(a.interval)
		tick = ticker.C()
		defer ticker.Stop()
	}

	for {
		select {
		case o, ok := <-a.outcomes:
			if !ok {
				a.emitFinal()
				return
			}
			a.mu.Lock()
			a.report.record(o)
			a.mu.Unlock()
		case <-tick:
			a.emitSnapshot()
		case <-a.done:
			a.drainRemaining()
			a.emitFinal()
			return
		}
	}
}

func (a *Aggregator) drainRemaining() {
	for {
		select {
		case o, ok := <-a.outcomes:
			if !ok {
				return
			}
			a.mu.Lock()
			a.report.record(o)
			a.mu.Unlock()
		default:
			return
		}
	}
}

func (a *Aggregator) emitSnapshot() {
	if a.snapshot == nil {
		return
	}
	a.snapshot(a.Snapshot())
}

func (a *Aggregator) emitFinal() {
	if a.snapshot != nil {
		a.snapshot(a.Snapshot())
	}
}

// Snapshot returns a deep copy of the current report, safe to read
// concurrently with further recording.
func (a *Aggregator) Snapshot() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	copyReport := NewReport()
	for endpoint, bucket := range a.report.Buckets {
		b := *bucket
		copyReport.Buckets[endpoint] = &b
	}
	return copyReport
}

// Close stops the Aggregator and blocks until the final snapshot has been
// emitted. Safe to call once.
func (a *Aggregator) Close() *Report {
	close(a.done)
	a.wg.Wait()
	return a.Snapshot()
}
