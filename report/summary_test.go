package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teranos/goload/metrics"
)

func TestSummarizeComputesFailRateAndPercentiles(t *testing.T) {
	r := metrics.NewReport()
	agg := metrics.New(16, func(snap *metrics.Report) { r = snap }, metrics.WithSnapshotInterval(0))

	for i := 0; i < 8; i++ {
		agg.Outcomes() <- metrics.Outcome{Endpoint: "/login", Success: true, Elapsed: 10 * time.Millisecond}
	}
	for i := 0; i < 2; i++ {
		agg.Outcomes() <- metrics.Outcome{Endpoint: "/login", Success: false, Elapsed: 20 * time.Millisecond}
	}
	final := agg.Close()

	summary := Summarize(final)
	require.Len(t, summary.Endpoints, 1)
	require.Equal(t, uint64(10), summary.Endpoints[0].Requests)
	require.Equal(t, uint64(2), summary.Endpoints[0].Failures)
	require.InDelta(t, 0.2, summary.Endpoints[0].FailRate, 0.001)
}

func TestSummarizeEmptyReportHasNoEndpoints(t *testing.T) {
	summary := Summarize(metrics.NewReport())
	require.Empty(t, summary.Endpoints)
}
