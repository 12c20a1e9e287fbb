// Package metrics aggregates per-request outcome records into per-endpoint
// histograms and global counters, and merges partial aggregates from
// distributed workers.
package metrics

import "time"

// Outcome is the record emitted for every request a virtual user issues.
// Once produced it is never mutated.
type Outcome struct {
	Endpoint            string
	Method              string
	URL                 string
	StartedAt           time.Time
	Elapsed             time.Duration
	Status              int
	Success             bool
	Error               string
	User                int
	CoordinatedOmission bool
}
