package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))

	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("timer fired before advancing the clock")
	default:
	}

	fake.Advance(5 * time.Second)

	select {
	case fired := <-ch:
		require.Equal(t, fake.Now(), fired)
	default:
		t.Fatal("timer did not fire after advancing the clock")
	}
}

func TestFakeTickerFiresRepeatedly(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	defer ticker.Stop()

	count := 0
	for i := 0; i < 3; i++ {
		fake.Advance(time.Second)
		select {
		case <-ticker.C():
			count++
		default:
		}
	}
	require.Equal(t, 3, count)
}

func TestFakeTickerStopsDelivering(t *testing.T) {
	fake := NewFake(time.Unix(0, 0))
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(5 * time.Second)

	select {
	case <-ticker.C():
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}
