// Package httpreq implements requester.Requester over net/http, giving
// each virtual user its own client and cookie jar so session state
// (login cookies, CSRF tokens) doesn't leak between users.
package httpreq

import (
	"bytes"
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/requester"
)

// Requester issues HTTP requests against a fixed base URL using a
// dedicated *http.Client per instance.
type Requester struct {
	client  *http.Client
	baseURL string
}

// New returns an httpreq.Requester targeting baseURL, with its own cookie
// jar and the given timeout applied per request.
func New(baseURL string, timeout time.Duration) (*Requester, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "httpreq: creating cookie jar")
	}

	return &Requester{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}, nil
}

// Do issues one HTTP request and reports its outcome.
func (r *Requester) Do(ctx context.Context, req requester.Request) (requester.Result, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body *bytes.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, r.baseURL+req.Path, body)
	if err != nil {
		return requester.Result{}, errors.Wrap(err, "httpreq: building request")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	elapsed := time.Since(start)

	result := requester.Result{
		Endpoint: req.Endpoint,
		Method:   method,
		URL:      httpReq.URL.String(),
		Elapsed:  elapsed,
	}

	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			result.Err = requester.ErrTimeout
		} else {
			result.Err = err
		}
		result.Success = false
		return result, nil
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.Success = resp.StatusCode < 400
	return result, nil
}

// Close releases idle connections held by the underlying client.
func (r *Requester) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
