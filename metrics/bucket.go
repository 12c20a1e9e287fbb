package metrics

import (
	"math/bits"
	"sort"
	"time"
)

// numHistogramBuckets covers latencies from 1ms (bucket 0) up to just under
// 2^numHistogramBuckets ms (~65.5s), comfortably spanning the spec's
// documented 1ms..60s range. Anything at or beyond that falls into the
// overflow bucket.
const numHistogramBuckets = 16

// Bucket holds the per-endpoint counters and a log2-scaled latency
// histogram. All fields are monotone non-decreasing within one process and
// the zero value is a valid, empty Bucket. Merge is associative and
// commutative, which is what lets a Manager fold worker snapshots in any
// order.
type Bucket struct {
	Total     uint64
	Successes uint64
	Failures  uint64
	Histogram [numHistogramBuckets + 1]uint64 // last slot is overflow
	Min       time.Duration
	Max       time.Duration
}

// bucketIndex returns the histogram slot for d, floor(log2(ms)) clamped to
// the overflow slot for anything at or beyond 2^numHistogramBuckets ms.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	idx := bits.Len64(uint64(ms)) - 1
	if idx >= numHistogramBuckets || idx < 0 {
		return numHistogramBuckets
	}
	return idx
}

// Record folds one outcome's latency and status into the bucket.
func (b *Bucket) Record(o Outcome) {
	b.Total++
	if o.Success {
		b.Successes++
	} else {
		b.Failures++
	}

	b.Histogram[bucketIndex(o.Elapsed)]++

	if b.Total == 1 || o.Elapsed < b.Min {
		b.Min = o.Elapsed
	}
	if o.Elapsed > b.Max {
		b.Max = o.Elapsed
	}
}

// Merge returns a new Bucket whose counters are the element-wise sum of b
// and other, and whose Min/Max are the element-wise min/max. Merge is
// associative and commutative: the order buckets are folded in never
// changes the result.
func (b Bucket) Merge(other Bucket) Bucket {
	result := Bucket{
		Total:     b.Total + other.Total,
		Successes: b.Successes + other.Successes,
		Failures:  b.Failures + other.Failures,
	}

	for i := range result.Histogram {
		result.Histogram[i] = b.Histogram[i] + other.Histogram[i]
	}

	result.Min = minDuration(b.Min, other.Min, b.Total, other.Total)
	result.Max = maxDuration(b.Max, other.Max)

	return result
}

func minDuration(a, bDur time.Duration, aCount, bCount uint64) time.Duration {
	switch {
	case aCount == 0:
		return bDur
	case bCount == 0:
		return a
	case a < bDur:
		return a
	default:
		return bDur
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// bucketUpperBoundMS returns the exclusive upper bound, in milliseconds, of
// histogram slot i (used for percentile interpolation).
func bucketUpperBoundMS(i int) int64 {
	if i >= numHistogramBuckets {
		return 1 << numHistogramBuckets
	}
	return int64(1) << uint(i+1)
}

func bucketLowerBoundMS(i int) int64 {
	if i == 0 {
		return 1
	}
	return int64(1) << uint(i)
}

// Percentile estimates the pth percentile (0..100) latency via linear
// interpolation within the bucket that contains it.
func (b Bucket) Percentile(p float64) time.Duration {
	if b.Total == 0 {
		return 0
	}

	target := uint64((p / 100.0) * float64(b.Total))
	if target == 0 {
		target = 1
	}

	var cumulative uint64
	for i, count := range b.Histogram {
		if count == 0 {
			continue
		}
		cumulative += count
		if cumulative >= target {
			lower := bucketLowerBoundMS(i)
			upper := bucketUpperBoundMS(i)
			// Fraction of the way through this bucket's samples.
			into := target - (cumulative - count)
			frac := float64(into) / float64(count)
			ms := float64(lower) + frac*float64(upper-lower)
			return time.Duration(ms) * time.Millisecond
		}
	}

	return b.Max
}

// sortedKeys returns the endpoint names of a bucket map in sorted order.
func sortedKeys(m map[string]*Bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
