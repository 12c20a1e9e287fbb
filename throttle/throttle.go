// Package throttle caps the aggregate request rate across all virtual users
// in a process to at most N requests per second.
package throttle

import (
	"context"
	"time"

	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/internal/clock"
)

// ErrClosed is returned by Acquire once the throttle has been shut down.
// Callers treat this as a cancellation signal, not a failure.
var ErrClosed = errors.New("throttle: closed")

// Throttle caps requests per second across a process. Capacity tokens are
// held in a buffered channel; a dedicated drainer goroutine removes one
// token every 1s/throttleRequests, refilling the channel at the target rate.
type Throttle struct {
	tokens  chan struct{}
	done    chan struct{}
	clock   clock.Clock
	rate    int
}

// New creates a Throttle capped at requestsPerSecond requests/second. A
// requestsPerSecond of 0 means unthrottled: Acquire always returns
// immediately.
func New(requestsPerSecond int) *Throttle {
	return NewWithClock(requestsPerSecond, clock.New())
}

// NewWithClock is New with an injectable clock, for deterministic tests.
func NewWithClock(requestsPerSecond int, c clock.Clock) *Throttle {
	t := &Throttle{
		rate: requestsPerSecond,
		done: make(chan struct{}),
		clock: c,
	}

	if requestsPerSecond <= 0 {
		return t
	}

	// The channel starts empty: each Acquire sends one token into it,
	// occupying capacity. The drainer periodically receives one token,
	// freeing a slot at the configured rate.
	t.tokens = make(chan struct{}, requestsPerSecond)

	go t.drain()
	return t
}

// drain removes one token every 1s/rate, freeing capacity for the next
// Acquire at the configured rate. It exits when Close is called.
func (t *Throttle) drain() {
	interval := time.Second / time.Duration(t.rate)
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C():
			select {
			case <-t.tokens:
			default:
				// Channel already empty; nothing to drain this tick.
			}
		}
	}
}

// Acquire blocks until a token is available, ctx is cancelled, or the
// throttle is closed. Unthrottled throttles (rate == 0) return immediately.
func (t *Throttle) Acquire(ctx context.Context) error {
	if t.tokens == nil {
		return nil
	}

	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	select {
	case t.tokens <- struct{}{}:
		return nil
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unthrottled is a no-op pass-through used by on_start/on_stop transactions,
// which are explicitly exempt from the rate cap.
func Unthrottled(context.Context) error { return nil }

// Close shuts the throttle down. Users blocked in Acquire observe ErrClosed
// and treat it as a cancellation signal.
func (t *Throttle) Close() {
	select {
	case <-t.done:
		// already closed
	default:
		close(t.done)
	}
}
