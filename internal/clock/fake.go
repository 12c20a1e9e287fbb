package clock

import "time"

// Fake is a manually-advanced Clock for deterministic tests. Advance() moves
// the clock forward and fires any tickers/timers whose deadline has passed.
type Fake struct {
	now     time.Time
	waiters []fakeWaiter
	tickers []*fakeTicker
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake returns a Fake clock set to the given starting time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) Sleep(d time.Duration) {
	ch := f.After(d)
	<-ch
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	deadline := f.now.Add(d)
	if !deadline.After(f.now) {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, fakeWaiter{deadline: deadline, ch: ch})
	return ch
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{clock: f, period: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the fake clock forward by d, firing any waiters and tickers
// whose deadline falls within the new window. Like time.Ticker, a ticker
// channel holds at most one pending tick; further ticks are dropped.
func (f *Fake) Advance(d time.Duration) {
	target := f.now.Add(d)
	f.now = target

	remaining := f.waiters[:0]
	for _, w := range f.waiters {
		if !w.deadline.After(target) {
			w.ch <- target
			continue
		}
		remaining = append(remaining, w)
	}
	f.waiters = remaining

	for _, t := range f.tickers {
		for !t.next.After(target) {
			select {
			case t.ch <- target:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

type fakeTicker struct {
	clock  *Fake
	period time.Duration
	next   time.Time
	ch     chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	for i, existing := range t.clock.tickers {
		if existing == t {
			t.clock.tickers = append(t.clock.tickers[:i], t.clock.tickers[i+1:]...)
			break
		}
	}
}
