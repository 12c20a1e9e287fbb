// Package report renders a run's aggregated metrics.Report either as an
// interactive pterm table (the default, for a human watching the run) or
// as JSON (for scripted/CI consumers), matching the two output modes the
// rest of the CLI offers.
package report

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/teranos/goload/metrics"
)

// EndpointSummary is the JSON-friendly, per-endpoint view of a Bucket
// used by both the table renderer and --json output.
type EndpointSummary struct {
	Endpoint  string  `json:"endpoint"`
	Requests  uint64  `json:"requests"`
	Successes uint64  `json:"successes"`
	Failures  uint64  `json:"failures"`
	FailRate  float64 `json:"fail_rate"`
	MinMS     int64   `json:"min_ms"`
	MaxMS     int64   `json:"max_ms"`
	P50MS     int64   `json:"p50_ms"`
	P95MS     int64   `json:"p95_ms"`
	P99MS     int64   `json:"p99_ms"`
}

// Summary is the top-level JSON-friendly view of a full run's report.
type Summary struct {
	Endpoints []EndpointSummary `json:"endpoints"`
}

// Summarize converts a metrics.Report into the JSON/table-friendly shape.
func Summarize(r *metrics.Report) Summary {
	s := Summary{}
	for _, name := range r.Endpoints() {
		b := r.Buckets[name]
		failRate := 0.0
		if b.Total > 0 {
			failRate = float64(b.Failures) / float64(b.Total)
		}
		s.Endpoints = append(s.Endpoints, EndpointSummary{
			Endpoint:  name,
			Requests:  b.Total,
			Successes: b.Successes,
			Failures:  b.Failures,
			FailRate:  failRate,
			MinMS:     b.Min.Milliseconds(),
			MaxMS:     b.Max.Milliseconds(),
			P50MS:     b.Percentile(50).Milliseconds(),
			P95MS:     b.Percentile(95).Milliseconds(),
			P99MS:     b.Percentile(99).Milliseconds(),
		})
	}
	return s
}

// RenderTable prints a run's summary as a pterm table, one row per
// endpoint, followed by an aggregate totals line printed below the table.
func RenderTable(r *metrics.Report) error {
	summary := Summarize(r)

	rows := pterm.TableData{
		{"Endpoint", "Requests", "Failures", "Fail %", "Min", "p50", "p95", "p99", "Max"},
	}

	var totalRequests, totalFailures uint64
	for _, e := range summary.Endpoints {
		totalRequests += e.Requests
		totalFailures += e.Failures
		rows = append(rows, []string{
			e.Endpoint,
			fmt.Sprintf("%d", e.Requests),
			fmt.Sprintf("%d", e.Failures),
			fmt.Sprintf("%.2f%%", e.FailRate*100),
			formatMS(e.MinMS),
			formatMS(e.P50MS),
			formatMS(e.P95MS),
			formatMS(e.P99MS),
			formatMS(e.MaxMS),
		})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return err
	}

	failRate := 0.0
	if totalRequests > 0 {
		failRate = float64(totalFailures) / float64(totalRequests)
	}
	pterm.Info.Printf("%d requests, %d failures (%.2f%%)\n", totalRequests, totalFailures, failRate*100)
	return nil
}

func formatMS(ms int64) string {
	return time.Duration(ms * int64(time.Millisecond)).String()
}
