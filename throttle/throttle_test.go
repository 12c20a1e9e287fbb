package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/goload/internal/clock"
)

func TestUnthrottledCapacityNeverBlocks(t *testing.T) {
	th := New(0)
	defer th.Close()

	for i := 0; i < 1000; i++ {
		require.NoError(t, th.Acquire(context.Background()))
	}
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	th := NewWithClock(2, fake)
	defer th.Close()

	ctx := context.Background()
	require.NoError(t, th.Acquire(ctx))
	require.NoError(t, th.Acquire(ctx))

	blocked := make(chan error, 1)
	go func() {
		blocked <- th.Acquire(ctx)
	}()

	select {
	case <-blocked:
		t.Fatal("Acquire returned before any capacity was drained")
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(500 * time.Millisecond)

	select {
	case err := <-blocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Acquire never unblocked after the drainer freed capacity")
	}
}

func TestAcquireReturnsErrClosedAfterClose(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	th := NewWithClock(1, fake)

	require.NoError(t, th.Acquire(context.Background()))
	th.Close()

	err := th.Acquire(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	th := NewWithClock(1, fake)
	defer th.Close()

	require.NoError(t, th.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := th.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// TestThrottleRateOverWindow mirrors the basic-throttle end-to-end scenario:
// over a run of roughly runTime+1 seconds, total issued requests stay within
// (runTime+1) * throttleRequests, matching the documented invariant, plus
// one for an Acquire that started before the deadline and completed after.
func TestThrottleRateOverWindow(t *testing.T) {
	const throttleRequests = 25
	const runTime = 1 * time.Second

	th := New(throttleRequests)
	defer th.Close()

	ctx := context.Background()
	deadline := time.Now().Add(runTime)
	issued := 0

	var mu sync.Mutex
	for time.Now().Before(deadline) {
		if err := th.Acquire(ctx); err != nil {
			break
		}
		mu.Lock()
		issued++
		mu.Unlock()
	}

	require.LessOrEqual(t, issued, int((runTime+time.Second)/time.Second)*throttleRequests+1)
}

func TestUnthrottledHelperAlwaysSucceeds(t *testing.T) {
	require.NoError(t, Unthrottled(context.Background()))
}
