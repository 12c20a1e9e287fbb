// Package framed implements requester.Requester over a persistent
// net.Conn with length-prefixed CBOR framing, for load tests targeting a
// binary protocol rather than HTTP — modeled on the original
// implementation's CodecGooseUser, which keeps one Framed connection open
// per user for the duration of its session instead of dialing per
// request.
package framed

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/teranos/goload/errors"
	"github.com/teranos/goload/requester"
)

const maxFrameBytes = 16 << 20

// Requester issues requests over a single persistent connection, encoding
// each request as a length-prefixed CBOR frame and decoding the matching
// response the same way. One Requester serves exactly one virtual user;
// concurrent Do calls on the same Requester are serialized since the
// underlying protocol is a simple request/response exchange over one
// connection, not a multiplexed one.
type Requester struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// Dial opens a persistent connection to addr for framed request/response
// traffic.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Requester, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "framed: dialing")
	}
	return &Requester{conn: conn, timeout: timeout}, nil
}

// requestFrame and responseFrame are the payload shapes carried over the
// connection; they're local to this transport and unrelated to the
// manager/worker gaggle protocol in package wire.
type requestFrame struct {
	Path    string            `cbor:"path"`
	Method  string            `cbor:"method"`
	Body    []byte            `cbor:"body"`
	Headers map[string]string `cbor:"headers"`
}

type responseFrame struct {
	Status int    `cbor:"status"`
	Body   []byte `cbor:"body"`
}

// Do sends req as a requestFrame and blocks for the matching
// responseFrame.
func (r *Requester) Do(ctx context.Context, req requester.Request) (requester.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		r.conn.SetDeadline(deadline)
	} else if r.timeout > 0 {
		r.conn.SetDeadline(time.Now().Add(r.timeout))
	}
	defer r.conn.SetDeadline(time.Time{})

	start := time.Now()

	if err := writeFrame(r.conn, requestFrame{
		Path:    req.Path,
		Method:  req.Method,
		Body:    req.Body,
		Headers: req.Headers,
	}); err != nil {
		return requester.Result{}, errors.Wrap(err, "framed: writing request")
	}

	resp, err := readResponseFrame(r.conn)
	elapsed := time.Since(start)
	if err != nil {
		reportErr := err
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			reportErr = requester.ErrTimeout
		}
		return requester.Result{
			Endpoint: req.Endpoint,
			Method:   req.Method,
			Elapsed:  elapsed,
			Err:      reportErr,
		}, nil
	}

	return requester.Result{
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Status:   resp.Status,
		Success:  resp.Status < 400,
		Elapsed:  elapsed,
	}, nil
}

// Close closes the persistent connection.
func (r *Requester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Close()
}

func writeFrame(w io.Writer, f requestFrame) error {
	b, err := cbor.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "framed: encoding request frame")
	}
	if len(b) > maxFrameBytes {
		return errors.Newf("framed: request frame of %d bytes exceeds max %d", len(b), maxFrameBytes)
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(b)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func readResponseFrame(r io.Reader) (responseFrame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return responseFrame{}, err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameBytes {
		return responseFrame{}, errors.Newf("framed: response frame of %d bytes exceeds max %d", n, maxFrameBytes)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return responseFrame{}, err
	}

	var resp responseFrame
	if err := cbor.Unmarshal(buf, &resp); err != nil {
		return responseFrame{}, errors.Wrap(err, "framed: decoding response frame")
	}
	return resp, nil
}
