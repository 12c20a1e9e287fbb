package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBucketRecordCounters(t *testing.T) {
	var b Bucket

	b.Record(Outcome{Success: true, Elapsed: 10 * time.Millisecond})
	b.Record(Outcome{Success: false, Elapsed: 20 * time.Millisecond})
	b.Record(Outcome{Success: true, Elapsed: 5 * time.Millisecond})

	require.Equal(t, uint64(3), b.Total)
	require.Equal(t, uint64(2), b.Successes)
	require.Equal(t, uint64(1), b.Failures)
	require.Equal(t, 5*time.Millisecond, b.Min)
	require.Equal(t, 20*time.Millisecond, b.Max)
}

func TestBucketMergeIsAssociativeAndCommutative(t *testing.T) {
	var a, b, c Bucket
	a.Record(Outcome{Success: true, Elapsed: 1 * time.Millisecond})
	b.Record(Outcome{Success: true, Elapsed: 100 * time.Millisecond})
	c.Record(Outcome{Success: false, Elapsed: 2 * time.Second})

	leftAssoc := a.Merge(b).Merge(c)
	rightAssoc := a.Merge(b.Merge(c))
	require.Equal(t, leftAssoc, rightAssoc)

	commuted := c.Merge(b).Merge(a)
	require.Equal(t, leftAssoc.Total, commuted.Total)
	require.Equal(t, leftAssoc.Successes, commuted.Successes)
	require.Equal(t, leftAssoc.Failures, commuted.Failures)
	require.Equal(t, leftAssoc.Histogram, commuted.Histogram)
	require.Equal(t, leftAssoc.Min, commuted.Min)
	require.Equal(t, leftAssoc.Max, commuted.Max)
}

func TestBucketMergeSumsHistogramElementwise(t *testing.T) {
	var a, b Bucket
	for i := 0; i < 1000; i++ {
		a.Record(Outcome{Success: true, Elapsed: time.Millisecond})
	}
	for i := 0; i < 1000; i++ {
		b.Record(Outcome{Success: true, Elapsed: time.Millisecond})
	}

	merged := a.Merge(b)
	require.Equal(t, uint64(2000), merged.Total)
	for i := range merged.Histogram {
		require.Equal(t, a.Histogram[i]+b.Histogram[i], merged.Histogram[i])
	}
}

func TestBucketPercentileWithinRange(t *testing.T) {
	var b Bucket
	for i := 1; i <= 100; i++ {
		b.Record(Outcome{Success: true, Elapsed: time.Duration(i) * time.Millisecond})
	}

	p50 := b.Percentile(50)
	p99 := b.Percentile(99)

	require.Greater(t, p50, time.Duration(0))
	require.GreaterOrEqual(t, p99, p50)
	require.LessOrEqual(t, p99, b.Max+time.Second) // interpolation can round up within the bucket
}

func TestBucketOverflowBucketCatchesLargeLatencies(t *testing.T) {
	var b Bucket
	b.Record(Outcome{Success: true, Elapsed: 90 * time.Second})

	require.Equal(t, uint64(1), b.Histogram[numHistogramBuckets])
}

func TestEmptyBucketPercentileIsZero(t *testing.T) {
	var b Bucket
	require.Equal(t, time.Duration(0), b.Percentile(99))
}
