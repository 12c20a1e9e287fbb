package vuser

import (
	"context"
	"time"

	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/metrics"
	"github.com/teranos/goload/requester"
)

// errNoRequester is returned by Do when a scenario issues a request
// without a requester.Requester having been configured for the run.
var errNoRequester = errors.New("vuser: no requester configured")

// Do issues req through the user's configured requester and records the
// resulting metrics.Outcome, applying the same coordinated-omission
// backfill as any other recorded request. It returns the raw
// requester.Result so the calling TransactionFunc can branch on
// status/body without re-deriving it from the recorded outcome.
func (u *User) Do(ctx context.Context, req requester.Request) (requester.Result, error) {
	r := u.Requester()
	if r == nil {
		return requester.Result{}, errNoRequester
	}

	start := time.Now()
	result, err := r.Do(ctx, req)
	if err != nil {
		return result, errors.Wrap(err, "vuser: issuing request")
	}

	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	u.MaybeSynthesizeAndSend(metrics.Outcome{
		Endpoint:  result.Endpoint,
		Method:    result.Method,
		URL:       result.URL,
		StartedAt: start,
		Elapsed:   result.Elapsed,
		Status:    result.Status,
		Success:   result.Success,
		Error:     errMsg,
	})

	return result, nil
}

// Get issues a GET request against path, recorded under endpoint for
// metrics bucketing.
func (u *User) Get(ctx context.Context, endpoint, path string) (requester.Result, error) {
	return u.Do(ctx, requester.Request{Endpoint: endpoint, Method: "GET", Path: path})
}

// Post issues a POST request with the given body against path, recorded
// under endpoint for metrics bucketing.
func (u *User) Post(ctx context.Context, endpoint, path string, body []byte) (requester.Result, error) {
	return u.Do(ctx, requester.Request{Endpoint: endpoint, Method: "POST", Path: path, Body: body})
}
