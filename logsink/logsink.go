// Package logsink writes one JSON object per line to the configured
// --metrics-file, giving operators a raw, greppable record of every
// request outcome alongside the aggregated summary goload prints at the
// end of a run.
package logsink

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/metrics"
)

// record is the exact JSON shape written per line; field names are part
// of the on-disk format and intentionally stable.
type record struct {
	Endpoint            string `json:"endpoint"`
	Method              string `json:"method"`
	URL                 string `json:"url"`
	StartedAtMS         int64  `json:"started_at_ms"`
	ElapsedMS           int64  `json:"elapsed_ms"`
	Status              int    `json:"status"`
	Success             bool   `json:"success"`
	User                int    `json:"user"`
	CoordinatedOmission bool   `json:"coordinated_omission"`
	Error               string `json:"error"`
}

// Sink appends one JSON line per Outcome to a file, opened in append
// mode so a worker restarted mid-run doesn't clobber prior output.
type Sink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// Open opens (creating if necessary) the file at path for append-only
// JSON-lines writing.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "logsink: opening %s", path)
	}
	return &Sink{file: f, enc: json.NewEncoder(f)}, nil
}

// Write appends one Outcome as a JSON line.
func (s *Sink) Write(o metrics.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := record{
		Endpoint:            o.Endpoint,
		Method:              o.Method,
		URL:                 o.URL,
		StartedAtMS:         o.StartedAt.UnixMilli(),
		ElapsedMS:           o.Elapsed.Milliseconds(),
		Status:              o.Status,
		Success:             o.Success,
		User:                o.User,
		CoordinatedOmission: o.CoordinatedOmission,
		Error:               o.Error,
	}

	if err := s.enc.Encode(r); err != nil {
		return errors.Wrap(err, "logsink: encoding outcome")
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Tee consumes outcomes from in, writes each to the sink (reporting write
// errors to onError), forwards it on out, and closes out once in is
// closed. It runs as its own goroutine between the scheduler and the
// metrics.Aggregator; a write error does not stop forwarding.
func Tee(sink *Sink, in <-chan metrics.Outcome, out chan<- metrics.Outcome, onError func(error)) {
	defer close(out)
	for o := range in {
		if sink != nil {
			if err := sink.Write(o); err != nil && onError != nil {
				onError(err)
			}
		}
		out <- o
	}
}
