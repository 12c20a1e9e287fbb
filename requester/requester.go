// Package requester defines the transport abstraction a virtual user
// issues requests through: an HTTP client (requester/httpreq) for typical
// load tests, or a persistent framed connection (requester/framed) for
// protocols that keep one connection open per user.
package requester

import (
	"context"
	"time"

	"github.com/teranos/goload/errors"
)

// ErrTimeout is returned by a Requester's Do when the request's deadline
// (ctx or the requester's own configured timeout) elapsed before a response
// was received.
var ErrTimeout = errors.New("requester: timed out waiting for response")

// Result is what a Requester reports back for one request, independent of
// the transport used to make it.
type Result struct {
	Endpoint string
	Method   string
	URL      string
	Status   int
	Success  bool
	Err      error
	Elapsed  time.Duration
}

// Requester issues a single request and reports its outcome. Scenarios
// don't call Requester directly — they call methods on *vuser.User, which
// delegate to whichever Requester the run was configured with.
type Requester interface {
	// Do issues one request and blocks until it completes, times out, or
	// ctx is cancelled.
	Do(ctx context.Context, req Request) (Result, error)

	// Close releases any resources the requester holds open (persistent
	// connections, cookie jars, ...).
	Close() error
}

// Request describes one request to issue, transport-agnostic enough to
// cover both HTTP and a framed binary protocol.
type Request struct {
	Endpoint string // logical name used for metrics bucketing
	Method   string
	Path     string // relative to the requester's configured base URL
	Body     []byte
	Headers  map[string]string
}
