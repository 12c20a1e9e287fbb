package vuser

import (
	"time"

	"github.com/teranos/goload/metrics"
)

// SynthesizeStallOutcomes backfills the gap between a transaction's
// expected cadence and its actual elapsed time with synthetic outcome
// records, correcting the coordinated-omission bias a naive "record only
// what actually happened" measurement would produce: if the target stalls
// for 10s while the user's cadence is normally 100ms, a load test that
// blocks silently during the stall and then records one slow request
// understates how many requests *should* have happened during the outage.
//
// It emits one synthetic Outcome per cadence-sized slice of the stall,
// each with a decreasing latency from the full stall duration down to
// roughly one cadence interval, tagged CoordinatedOmission so they can be
// excluded from percentile reporting if desired. actual is the transaction
// whose real outcome already gets reported separately by the caller.
func SynthesizeStallOutcomes(endpoint, method string, cadence, actual time.Duration, startedAt time.Time) []metrics.Outcome {
	if cadence <= 0 || actual <= cadence {
		return nil
	}

	var out []metrics.Outcome
	remaining := actual
	for remaining > cadence {
		out = append(out, metrics.Outcome{
			Endpoint:            endpoint,
			Method:              method,
			StartedAt:           startedAt,
			Elapsed:             remaining,
			Success:             true,
			CoordinatedOmission: true,
		})
		remaining -= cadence
	}
	return out
}

// MaybeSynthesizeAndSend records a transaction's real outcome plus any
// coordinated-omission backfill implied by comparing its elapsed time
// against the user's rolling cadence average.
func (u *User) MaybeSynthesizeAndSend(o metrics.Outcome) {
	cadence := u.CadenceAverage()
	for _, synth := range SynthesizeStallOutcomes(o.Endpoint, o.Method, cadence, o.Elapsed, o.StartedAt) {
		u.SendRequestOutcome(synth)
	}
	u.SendRequestOutcome(o)
}
